// Package supervisor wires together one process's full set of per-volume
// pipelines, the Query Engine, and the IPC Server, and implements the
// start/stop/pause/continue lifecycle the Windows Service Control Manager
// drives, per SPEC_FULL.md §4.8.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/apperrors"
	"github.com/ntfsearch/fastfind/internal/config"
	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/ipc"
	"github.com/ntfsearch/fastfind/internal/logging"
	"github.com/ntfsearch/fastfind/internal/metrics"
	"github.com/ntfsearch/fastfind/internal/query"
	"github.com/ntfsearch/fastfind/internal/snapshot"
	"github.com/ntfsearch/fastfind/internal/volume"
)

const serviceIdentity = "fastfind"

func pipeName() string { return `\\.\pipe\` + serviceIdentity }

// Supervisor is the process-wide object wired up by cmd/fastfindsvc,
// owning every volume pipeline plus the shared Query Engine, Metrics
// Registry, and IPC Server.
type Supervisor struct {
	cfg config.Config
	log *logrus.Entry

	metricsReg  *metrics.Registry
	metricsSink metricsSink
	engine      *query.Engine
	snapshots   *snapshot.Store

	startedAt time.Time
	paused    atomic.Bool

	pipelinesMu sync.RWMutex
	pipelines   map[string]*volumePipeline

	ipcMu       sync.Mutex
	ipcServer   *ipc.Server
	ipcListener ipc.Listener
	runCtx      context.Context
}

// New builds a Supervisor against cfg, wiring the Query Engine, Metrics
// Registry, and (if enabled) the warm-start Snapshot Store, but does not
// yet open any volume or start the IPC server; that happens in Run.
func New(cfg config.Config, log *logrus.Entry) (*Supervisor, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	reg := metrics.New()

	var snapStore *snapshot.Store
	if cfg.WarmstartEnabled {
		store, err := snapshot.New(cfg.DataDir+`\snapshots`, snapshot.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("supervisor: open snapshot store: %w", err)
		}
		snapStore = store
	}

	return &Supervisor{
		cfg:         cfg,
		log:         logging.ForComponent(log, "supervisor"),
		metricsReg:  reg,
		metricsSink: newMetricsSink(reg),
		engine:      query.New(log),
		snapshots:   snapStore,
		pipelines:   make(map[string]*volumePipeline),
	}, nil
}

// Metrics exposes the Registry for the Operator CLI's local metrics
// surface and for tests asserting on published series.
func (s *Supervisor) Metrics() *metrics.Registry { return s.metricsReg }

// Run implements svcctl.Runner: bring up every configured volume's
// pipeline (isolating failures per-volume), start the IPC server, and
// block until ctx is cancelled, then shut down gracefully.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	s.runCtx = ctx

	drives, err := volume.EnumerateFixedNTFS(s.cfg.VolumesInclude, s.cfg.VolumesExclude)
	if err != nil {
		return fmt.Errorf("supervisor: enumerate volumes: %w", err)
	}
	if len(drives) == 0 {
		s.log.Warn("no fixed NTFS volumes matched the configured include/exclude lists")
	}

	rcfg := rebuildConfig{
		parallelism:      s.cfg.RebuildParallelism,
		budget:           index.Budget{Bytes: s.cfg.MemoryBudgetBytes, HighWaterFraction: 0.95},
		warmstartEnabled: s.cfg.WarmstartEnabled,
	}

	var anyStarted bool
	var accessDenied bool
	for _, drive := range drives {
		p := newVolumePipeline(drive, s.log)
		s.registerPipeline(drive, p)

		if err := p.start(ctx, rcfg, s.cfg.DataDir, s.engine, s.metricsSink, s.snapshots); err != nil {
			p.markUnavailable(err.Error())
			s.metricsSink.setVolumeHealth(drive, false, 0, 0)
			if errAccessDeniedVolume(err) {
				accessDenied = true
			}
			s.log.WithError(err).WithField("volume", drive).Error("volume pipeline failed to start")
			continue
		}
		anyStarted = true
	}

	if !anyStarted && len(drives) > 0 {
		if accessDenied {
			return fmt.Errorf("supervisor: no volume pipeline could start: %w", apperrors.ErrAccessDenied)
		}
		return errors.New("supervisor: no volume pipeline could start")
	}

	ipc.RegisterMethods(ipc.Calls, s.engine, s, s.startedAt)
	s.ipcServer = ipc.NewServer(ipc.Calls, ipc.Options{MaxConcurrency: s.cfg.QueryMaxConcurrency}, s.log)
	if err := s.openIPCListener(); err != nil {
		s.log.WithError(err).Error("failed to start IPC listener")
	}

	go s.healthLoop(ctx)

	<-ctx.Done()
	s.shutdown()
	return nil
}

// openIPCListener starts (or restarts, after a Pause) accepting IPC
// connections. A non-Windows build or a denied pipe ACL leaves the
// service running with every volume pipeline still healthy but no IPC
// surface, logged rather than fatal, since journal tailing and rebuilds
// are independent of the IPC layer.
func (s *Supervisor) openIPCListener() error {
	s.ipcMu.Lock()
	defer s.ipcMu.Unlock()
	if s.ipcListener != nil {
		return nil
	}
	l, err := ipc.ListenPipe(pipeName(), s.cfg.IPCAllowedPrincipals)
	if err != nil {
		return err
	}
	s.ipcListener = l
	go func() {
		if err := s.ipcServer.Serve(s.runCtx, l); err != nil {
			s.log.WithError(err).Debug("ipc server stopped")
		}
	}()
	return nil
}

// Pause implements svcctl.Runner: stop accepting new IPC connections
// without tearing down any volume pipeline, per SPEC_FULL.md §4.8's SCM
// pause semantics. In-flight requests are allowed to finish.
func (s *Supervisor) Pause() {
	s.paused.Store(true)
	s.ipcMu.Lock()
	defer s.ipcMu.Unlock()
	if s.ipcListener != nil {
		_ = s.ipcListener.Close()
		s.ipcListener = nil
	}
	s.log.Info("paused: IPC listener closed, volume pipelines keep tailing their journals")
}

// Continue implements svcctl.Runner: resume accepting IPC connections.
func (s *Supervisor) Continue() {
	s.paused.Store(false)
	if err := s.openIPCListener(); err != nil {
		s.log.WithError(err).Error("failed to reopen IPC listener on continue")
	}
	s.log.Info("resumed: IPC listener reopened")
}

// shutdown implements the graceful sequence from SPEC_FULL.md §4.8: stop
// accepting new IPC connections, give in-flight requests a grace period,
// then stop every volume's journal consumer at a safe cursor boundary and
// close its handle.
func (s *Supervisor) shutdown() {
	s.log.Info("shutting down")

	s.ipcMu.Lock()
	if s.ipcListener != nil {
		_ = s.ipcListener.Close()
		s.ipcListener = nil
	}
	s.ipcMu.Unlock()
	if s.ipcServer != nil {
		s.ipcServer.ShutdownGrace(10 * time.Second)
		_ = s.ipcServer.Close()
	}

	s.pipelinesMu.RLock()
	pipelines := make([]*volumePipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		pipelines = append(pipelines, p)
	}
	s.pipelinesMu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range pipelines {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.stop()
		}()
	}
	wg.Wait()
	s.log.Info("shutdown complete")
}

func (s *Supervisor) registerPipeline(volume string, p *volumePipeline) {
	s.pipelinesMu.Lock()
	defer s.pipelinesMu.Unlock()
	s.pipelines[volume] = p
}

func (s *Supervisor) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pipelinesMu.RLock()
			pipelines := make([]*volumePipeline, 0, len(s.pipelines))
			for _, p := range s.pipelines {
				pipelines = append(pipelines, p)
			}
			s.pipelinesMu.RUnlock()

			for _, p := range pipelines {
				idx := p.liveIndex()
				if idx == nil {
					continue
				}
				stats := idx.Stats()
				s.metricsSink.setVolumeHealth(p.volume, p.available.Load(), stats.MemoryBytes, stats.Entries)
			}
		}
	}
}

// VolumeStatuses implements ipc.StatusProvider.
func (s *Supervisor) VolumeStatuses() []ipc.VolumeStatus {
	s.pipelinesMu.RLock()
	defer s.pipelinesMu.RUnlock()

	out := make([]ipc.VolumeStatus, 0, len(s.pipelines))
	for name, p := range s.pipelines {
		vs := ipc.VolumeStatus{
			Volume:          name,
			Available:       p.available.Load(),
			UnavailableNote: p.unavailableReason(),
		}
		if idx := p.liveIndex(); idx != nil {
			stats := idx.Stats()
			vs.Entries = stats.Entries
			vs.MemoryBytes = stats.MemoryBytes
			vs.LastAppliedUSN = stats.LastAppliedUSN
			vs.Generation = stats.Generation
			vs.Orphans = stats.Orphans
		}
		out = append(out, vs)
	}
	return out
}

// UptimeSeconds implements ipc.StatusProvider.
func (s *Supervisor) UptimeSeconds() float64 {
	return time.Since(s.startedAt).Seconds()
}

// MemoryBytes implements ipc.StatusProvider: the sum of every live
// volume's index memory estimate.
func (s *Supervisor) MemoryBytes() uint64 {
	s.pipelinesMu.RLock()
	defer s.pipelinesMu.RUnlock()

	var total uint64
	for _, p := range s.pipelines {
		if idx := p.liveIndex(); idx != nil {
			total += idx.Stats().MemoryBytes
		}
	}
	return total
}
