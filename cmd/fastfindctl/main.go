// Command fastfindctl is the operator-facing client for a running
// fastfindsvc instance: it dials the service's named pipe and issues
// search/status/benchmark requests, per SPEC_FULL.md §4.11.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ntfsearch/fastfind/internal/ipcclient"
)

const (
	exitOK             = 0
	exitGenericFailure = 1
)

const pipeName = `\\.\pipe\fastfind`

var (
	dialTimeout time.Duration
	asJSON      bool
)

func main() {
	root := &cobra.Command{
		Use:   "fastfindctl",
		Short: "Query and inspect a running fastfindsvc instance",
	}
	root.PersistentFlags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "dial and request timeout")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print the raw JSON response instead of a table")

	root.AddCommand(searchCommand, statusCommand, benchmarkCommand)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitGenericFailure)
	}
}

func call(method string, params ipcclient.Params) (ipcclient.Params, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client, err := ipcclient.Dial(ctx, pipeName, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to fastfindsvc: %w", err)
	}
	defer client.Close()

	return client.Call(ctx, method, params)
}

func printJSON(result ipcclient.Params) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

var searchCommand = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search for files by name pattern",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		drive, _ := cmd.Flags().GetString("drive")
		path, _ := cmd.Flags().GetString("path")
		maxResults, _ := cmd.Flags().GetInt("max-results")
		includeHidden, _ := cmd.Flags().GetBool("include-hidden")
		caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")

		params := ipcclient.Params{
			"pattern":        args[0],
			"max_results":    maxResults,
			"include_hidden": includeHidden,
			"case_sensitive": caseSensitive,
		}
		if drive != "" {
			params["drive"] = drive
		}
		if path != "" {
			params["path"] = path
		}

		result, err := call("search", params)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitGenericFailure)
		}
		if asJSON {
			printJSON(result)
			return
		}
		printSearchResults(result)
	},
}

var benchmarkCommand = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure search latency for a set of patterns",
	Run: func(cmd *cobra.Command, args []string) {
		drive, _ := cmd.Flags().GetString("drive")
		iterations, _ := cmd.Flags().GetInt("iterations")
		patterns, _ := cmd.Flags().GetStringSlice("pattern")

		params := ipcclient.Params{"iterations": iterations}
		if drive != "" {
			params["drive"] = drive
		}
		if len(patterns) > 0 {
			params["test_patterns"] = patterns
		}

		result, err := call("benchmark", params)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitGenericFailure)
		}
		if asJSON {
			printJSON(result)
			return
		}
		printBenchmarkResults(result)
	},
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Report service and per-volume health",
	Run: func(cmd *cobra.Command, args []string) {
		result, err := call("status", ipcclient.Params{})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitGenericFailure)
		}
		if asJSON {
			printJSON(result)
			return
		}
		printStatus(result)
	},
}

func init() {
	searchCommand.Flags().String("drive", "", "restrict the search to one drive letter, e.g. C:")
	searchCommand.Flags().String("path", "", "restrict the search to a subtree")
	searchCommand.Flags().Int("max-results", 1000, "maximum number of results to return")
	searchCommand.Flags().Bool("include-hidden", false, "include hidden and system files")
	searchCommand.Flags().Bool("case-sensitive", false, "match the pattern case-sensitively")

	benchmarkCommand.Flags().String("drive", "", "restrict the benchmark to one drive letter")
	benchmarkCommand.Flags().Int("iterations", 3, "repetitions per pattern")
	benchmarkCommand.Flags().StringSlice("pattern", nil, "patterns to benchmark (repeatable)")
}

func printSearchResults(result ipcclient.Params) {
	results, _ := result["results"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSIZE\tMODIFIED\tATTRIBUTES")
	for _, r := range results {
		row, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n",
			row["path"], row["size"], row["modified"], joinAttrs(row["attributes"]))
	}
	_ = w.Flush()

	if stats, ok := result["stats"].(map[string]interface{}); ok {
		fmt.Printf("\n%v result(s)", stats["count"])
		if truncated, _ := stats["truncated"].(bool); truncated {
			fmt.Print(" (truncated)")
		}
		fmt.Println()
	}
}

func printStatus(result ipcclient.Params) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "VOLUME\tAVAILABLE\tENTRIES\tMEMORY\tGENERATION\tNOTE")
	volumes, _ := result["volumes"].([]interface{})
	for _, v := range volumes {
		row, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n",
			row["volume"], row["available"], row["entries"],
			row["memory_bytes"], row["generation"], row["unavailable_reason"])
	}
	_ = w.Flush()
	fmt.Printf("\nuptime: %.0fs, total memory: %v bytes\n", result["uptime_s"], result["memory_bytes"])
}

func printBenchmarkResults(result ipcclient.Params) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "PATTERN\tHITS\tBEST_MS\tMEAN_MS\tWORST_MS")
	perPattern, _ := result["per_pattern"].([]interface{})
	for _, p := range perPattern {
		row, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%.2f\t%.2f\t%.2f\n",
			row["pattern"], row["hits"], row["best_ms"], row["mean_ms"], row["worst_ms"])
	}
	_ = w.Flush()

	if system, ok := result["system"].(map[string]interface{}); ok {
		fmt.Printf("\noverall mean: %.2fms across %v run(s)\n", system["mean_ms"], system["total_runs"])
	}
}

func joinAttrs(v interface{}) string {
	items, ok := v.([]interface{})
	if !ok || len(items) == 0 {
		return "-"
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%v", it)
	}
	return strings.Join(parts, ",")
}
