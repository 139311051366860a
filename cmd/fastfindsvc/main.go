// Command fastfindsvc is the Windows service process that hosts the
// search engine: it opens every configured volume, tails its USN journal,
// and serves search queries over a named pipe, per SPEC_FULL.md §4.8.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ntfsearch/fastfind/internal/apperrors"
	"github.com/ntfsearch/fastfind/internal/config"
	"github.com/ntfsearch/fastfind/internal/logging"
	"github.com/ntfsearch/fastfind/internal/supervisor"
	"github.com/ntfsearch/fastfind/internal/svcctl"
)

// Exit codes per SPEC_FULL.md §6.
const (
	exitOK              = 0
	exitGenericFailure  = 1
	exitAccessDenied    = 2
	exitInvalidConfig   = 3
)

const serviceName = "fastfindsvc"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "fastfindsvc",
		Short: "NTFS filename search service",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to an explicit config file")

	root.AddCommand(runCommand, installCommand, uninstallCommand)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitGenericFailure)
	}
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the service (also the entrypoint the SCM launches)",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runService(cmd.Flags()))
	},
}

var installCommand = &cobra.Command{
	Use:   "install",
	Short: "Register fastfindsvc with the Service Control Manager",
	Run: func(cmd *cobra.Command, args []string) {
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitGenericFailure)
		}
		if err := svcctl.Install(serviceName, "FastFind NTFS Search Service", exe, "run"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitGenericFailure)
		}
	},
}

var uninstallCommand = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove fastfindsvc's Service Control Manager registration",
	Run: func(cmd *cobra.Command, args []string) {
		if err := svcctl.Uninstall(serviceName); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitGenericFailure)
		}
	},
}

// runService builds the Config and Supervisor, then hands control to the
// SCM if running as a service, or to an interactive Ctrl+C-cancellable
// context otherwise (local debugging, per SPEC_FULL.md §4.8).
func runService(flags *pflag.FlagSet) int {
	cfg, err := config.Load(config.Options{ConfigFile: configFile, Flags: flags})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidConfig
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidConfig
	}

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to construct supervisor")
		return exitGenericFailure
	}

	isService, err := svcctl.IsWindowsService()
	if err != nil {
		log.WithError(err).Error("failed to determine SCM launch context")
		return exitGenericFailure
	}

	var runErr error
	if isService {
		runErr = svcctl.RunService(context.Background(), serviceName, sup)
	} else {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		runErr = sup.Run(ctx)
	}

	if runErr == nil {
		return exitOK
	}
	log.WithError(runErr).Error("service exited with an error")
	if apperrors.CodeFor(runErr) == apperrors.CodeAccessDenied {
		return exitAccessDenied
	}
	return exitGenericFailure
}
