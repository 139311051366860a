//go:build windows

// Package svcctl wires the service into the Windows Service Control
// Manager: start/stop/pause/continue, and the exit-code contract in
// SPEC_FULL.md §6 (0 normal, 1 generic failure, 2 access denied opening a
// volume, 3 configuration invalid).
package svcctl

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// Runner is the lifecycle the Supervisor exposes to the service wrapper:
// Run blocks until ctx is cancelled (stop requested) or a fatal error
// occurs, and Pause/Continue stop and resume accepting new IPC
// connections without tearing the process down.
type Runner interface {
	Run(ctx context.Context) error
	Pause()
	Continue()
}

// IsWindowsService reports whether the process was started by the Service
// Control Manager (as opposed to an interactive console, e.g. during
// `fastfindsvc run` for local debugging).
func IsWindowsService() (bool, error) {
	return svc.IsWindowsService()
}

// Execute implements svc.Handler, translating SCM control requests into
// calls on Runner.
type handler struct {
	runner Runner
	cancel context.CancelFunc
}

func (h *handler) Execute(args []string, r <-chan svc.ChangeRequest, s chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown | svc.AcceptPauseAndContinue
	s <- svc.Status{State: svc.StartPending}
	s <- svc.Status{State: svc.Running, Accepts: accepted}

	for req := range r {
		switch req.Cmd {
		case svc.Interrogate:
			s <- req.CurrentStatus
		case svc.Stop, svc.Shutdown:
			s <- svc.Status{State: svc.StopPending}
			h.cancel()
			return false, 0
		case svc.Pause:
			h.runner.Pause()
			s <- svc.Status{State: svc.Paused, Accepts: accepted}
		case svc.Continue:
			h.runner.Continue()
			s <- svc.Status{State: svc.Running, Accepts: accepted}
		}
	}
	return false, 0
}

// RunService blocks the calling goroutine for the lifetime of the service,
// dispatching SCM control requests to runner until a stop is requested or
// ctx is cancelled by the caller (e.g. a fatal startup error).
func RunService(ctx context.Context, serviceName string, runner Runner) error {
	runCtx, cancel := context.WithCancel(ctx)
	h := &handler{runner: runner, cancel: cancel}

	errc := make(chan error, 1)
	go func() { errc <- svc.Run(serviceName, h) }()

	runErr := runner.Run(runCtx)
	cancel()
	svcErr := <-errc
	if runErr != nil {
		return runErr
	}
	return svcErr
}

// Install registers the service with the SCM, pointing at exePath with the
// given startup args (typically just "run").
func Install(serviceName, displayName, exePath string, args ...string) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err == nil {
		s.Close()
		return fmt.Errorf("svcctl: service %q already exists", serviceName)
	}

	s, err = m.CreateService(serviceName, exePath, mgr.Config{
		DisplayName: displayName,
		StartType:   mgr.StartAutomatic,
	}, args...)
	if err != nil {
		return err
	}
	defer s.Close()
	return nil
}

// Uninstall removes the service registration from the SCM.
func Uninstall(serviceName string) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return fmt.Errorf("svcctl: service %q not found: %w", serviceName, err)
	}
	defer s.Close()
	return s.Delete()
}
