package ipc

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/query"
)

// StatusProvider is the narrow seam into the Supervisor the status
// method needs: per-volume health plus process-wide facts. Kept as an
// interface rather than importing internal/supervisor directly.
type StatusProvider interface {
	VolumeStatuses() []VolumeStatus
	UptimeSeconds() float64
	MemoryBytes() uint64
}

// VolumeStatus is one volume's row in the status response.
type VolumeStatus struct {
	Volume          string `json:"volume"`
	Available       bool   `json:"available"`
	Entries         int64  `json:"entries"`
	MemoryBytes     uint64 `json:"memory_bytes"`
	LastAppliedUSN  int64  `json:"last_applied_usn"`
	Generation      uint64 `json:"generation"`
	Orphans         int64  `json:"orphans"`
	UnavailableNote string `json:"unavailable_reason,omitempty"`
}

// RegisterMethods wires the four IPC methods named in SPEC_FULL.md §4.7
// against a live Engine and StatusProvider. The Supervisor calls this
// once at startup, after both dependencies exist.
func RegisterMethods(registry *Registry, engine *query.Engine, status StatusProvider, startedAt time.Time) {
	registry.Add(Call{
		Path:  "search",
		Title: "Search for files by name pattern",
		Fn:    searchHandler(engine),
	})
	registry.Add(Call{
		Path:  "find_large_files",
		Title: "Find files above a size threshold",
		Fn:    findLargeFilesHandler(engine),
	})
	registry.Add(Call{
		Path:  "status",
		Title: "Report service and per-volume health",
		Fn:    statusHandler(status, startedAt),
	})
	registry.Add(Call{
		Path:  "benchmark",
		Title: "Measure search latency for a set of patterns",
		Fn:    benchmarkHandler(engine),
	})
}

func searchHandler(engine *query.Engine) Fn {
	return func(ctx context.Context, in Params) (Params, error) {
		req, err := requestFromParams(in)
		if err != nil {
			return nil, err
		}
		plan, err := query.Compile(req)
		if err != nil {
			return nil, err
		}
		result := engine.Run(ctx, plan)
		return Params{
			"results": toFileInfos(result.Hits),
			"stats": Params{
				"truncated":  result.Truncated,
				"restarted":  result.Restarted,
				"count":      len(result.Hits),
			},
		}, nil
	}
}

func findLargeFilesHandler(engine *query.Engine) Fn {
	return func(ctx context.Context, in Params) (Params, error) {
		minMB := in.GetInt64OrDefault("min_size_mb", 100)
		minSize := uint64(minMB) * 1024 * 1024
		maxResults := int(in.GetInt64OrDefault("max_results", 50))
		excludeSystem := in.GetBoolOrDefault("exclude_system", true)
		drive, _ := in.GetString("drive")

		req := query.Request{
			Pattern:    "*",
			Drive:      drive,
			MaxResults: maxResults,
			MinSize:    &minSize,
		}
		if fileTypes, err := in.GetStringSlice("file_types"); err == nil && len(fileTypes) > 0 {
			req.Pattern = "*.{" + strings.Join(fileTypes, ",") + "}"
		}

		plan, err := query.Compile(req)
		if err != nil {
			return nil, err
		}
		result := engine.Run(ctx, plan)

		hits := result.Hits
		if excludeSystem {
			filtered := hits[:0]
			for _, h := range hits {
				if !h.Flags.Has(index.FlagSystem) {
					filtered = append(filtered, h)
				}
			}
			hits = filtered
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].Size > hits[j].Size })

		var totalSize uint64
		for _, h := range hits {
			totalSize += h.Size
		}

		return Params{
			"results": toFileInfos(hits),
			"summary": Params{
				"count":      len(hits),
				"total_size": totalSize,
				"truncated":  result.Truncated,
			},
		}, nil
	}
}

func statusHandler(provider StatusProvider, startedAt time.Time) Fn {
	return func(ctx context.Context, in Params) (Params, error) {
		volumes := provider.VolumeStatuses()
		out := make([]Params, len(volumes))
		for i, v := range volumes {
			out[i] = Params{
				"volume":           v.Volume,
				"available":        v.Available,
				"entries":          v.Entries,
				"memory_bytes":     v.MemoryBytes,
				"last_applied_usn": v.LastAppliedUSN,
				"generation":       v.Generation,
				"orphans":          v.Orphans,
			}
			if v.UnavailableNote != "" {
				out[i]["unavailable_reason"] = v.UnavailableNote
			}
		}
		return Params{
			"volumes":      out,
			"uptime_s":     provider.UptimeSeconds(),
			"memory_bytes": provider.MemoryBytes(),
		}, nil
	}
}

func benchmarkHandler(engine *query.Engine) Fn {
	return func(ctx context.Context, in Params) (Params, error) {
		drive, _ := in.GetString("drive")
		iterations := int(in.GetInt64OrDefault("iterations", 3))
		if iterations <= 0 {
			iterations = 1
		}
		patterns, err := in.GetStringSlice("test_patterns")
		if err != nil || len(patterns) == 0 {
			patterns = []string{"*.txt", "*.jpg", "*.exe", "notes"}
		}

		perPattern := make([]Params, 0, len(patterns))
		var totalElapsed time.Duration
		var totalRuns int

		for _, pattern := range patterns {
			req := query.Request{Pattern: pattern, Drive: drive, MaxResults: 1000}
			plan, compileErr := query.Compile(req)
			if compileErr != nil {
				perPattern = append(perPattern, Params{"pattern": pattern, "error": compileErr.Error()})
				continue
			}

			var best, worst, sum time.Duration
			var hits int
			for i := 0; i < iterations; i++ {
				start := now()
				result := engine.Run(ctx, plan)
				elapsed := now().Sub(start)
				hits = len(result.Hits)
				sum += elapsed
				totalElapsed += elapsed
				totalRuns++
				if i == 0 || elapsed < best {
					best = elapsed
				}
				if i == 0 || elapsed > worst {
					worst = elapsed
				}
			}
			perPattern = append(perPattern, Params{
				"pattern":     pattern,
				"hits":        hits,
				"best_ms":     float64(best.Microseconds()) / 1000,
				"worst_ms":    float64(worst.Microseconds()) / 1000,
				"mean_ms":     float64(sum.Microseconds()) / 1000 / float64(iterations),
				"iterations":  iterations,
			})
		}

		var meanMS float64
		if totalRuns > 0 {
			meanMS = float64(totalElapsed.Microseconds()) / 1000 / float64(totalRuns)
		}
		return Params{
			"per_pattern": perPattern,
			"system": Params{
				"mean_ms":     meanMS,
				"total_runs":  totalRuns,
			},
		}, nil
	}
}

// now is the clock benchmarkHandler times each run with; it is time.Now.
var now = time.Now

func requestFromParams(in Params) (query.Request, error) {
	pattern, err := in.GetString("pattern")
	if err != nil {
		return query.Request{}, err
	}
	req := query.Request{
		Pattern:       pattern,
		MaxResults:    int(in.GetInt64OrDefault("max_results", 1000)),
		IncludeHidden: in.GetBoolOrDefault("include_hidden", false),
		CaseSensitive: in.GetBoolOrDefault("case_sensitive", false),
	}
	req.Scope, _ = in.GetString("path")
	req.Drive, _ = in.GetString("drive")
	if v, err := in.GetUint64("min_size"); err == nil {
		req.MinSize = &v
	}
	if v, err := in.GetUint64("max_size"); err == nil {
		req.MaxSize = &v
	}
	return req, nil
}

func toFileInfos(hits []query.Hit) []Params {
	out := make([]Params, len(hits))
	for i, h := range hits {
		out[i] = Params{
			"path":         h.Path,
			"name":         h.Name,
			"size":         h.Size,
			"modified":     index.Time(h.MTime).UTC().Format(time.RFC3339),
			"created":      index.Time(h.BTime).UTC().Format(time.RFC3339),
			"extension":    strings.TrimPrefix(filepath.Ext(h.Name), "."),
			"is_directory": h.Flags.Has(index.FlagDirectory),
			"is_hidden":    h.Flags.Has(index.FlagHidden),
			"attributes":   attributeNames(h.Flags),
		}
	}
	return out
}

func attributeNames(f index.Flags) []string {
	var out []string
	if f.Has(index.FlagDirectory) {
		out = append(out, "directory")
	}
	if f.Has(index.FlagHidden) {
		out = append(out, "hidden")
	}
	if f.Has(index.FlagSystem) {
		out = append(out, "system")
	}
	if f.Has(index.FlagReparse) {
		out = append(out, "reparse")
	}
	if f.Has(index.FlagCompressed) {
		out = append(out, "compressed")
	}
	if f.Has(index.FlagEncrypted) {
		out = append(out, "encrypted")
	}
	if f.Has(index.FlagSparse) {
		out = append(out, "sparse")
	}
	return out
}
