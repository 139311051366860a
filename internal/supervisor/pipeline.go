package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/apperrors"
	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/journal"
	"github.com/ntfsearch/fastfind/internal/logging"
	"github.com/ntfsearch/fastfind/internal/mft"
	"github.com/ntfsearch/fastfind/internal/pathresolver"
	"github.com/ntfsearch/fastfind/internal/query"
	"github.com/ntfsearch/fastfind/internal/snapshot"
	"github.com/ntfsearch/fastfind/internal/volume"
)

// volumePipeline owns one volume's full chain: Volume Reader, MFT Parser,
// Index, Path Resolver, and Journal Consumer, per SPEC_FULL.md §2's
// per-volume pipeline diagram. A rebuild swap replaces idx/resolver under
// mu without tearing down the reader, parser, or consumer goroutine.
type volumePipeline struct {
	volume string
	log    *logrus.Entry

	handle *volume.Handle
	source journal.Source

	mu       sync.RWMutex
	idx      *index.Index
	resolver *pathresolver.Resolver
	parser   *mft.Parser

	available atomic.Bool
	reasonMu  sync.Mutex
	reason    string

	consumer *journal.Consumer
	cancel   context.CancelFunc
	doneCh   chan error
}

// newVolumePipeline allocates a pipeline shell for volume; start still
// needs to be called to open the handle and bring the chain up.
func newVolumePipeline(vol string, log *logrus.Entry) *volumePipeline {
	return &volumePipeline{
		volume: vol,
		log:    logging.ForComponent(logging.ForVolume(log, vol), "pipeline"),
		doneCh: make(chan error, 1),
	}
}

func (p *volumePipeline) liveIndex() *index.Index {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idx
}

func (p *volumePipeline) liveResolver() *pathresolver.Resolver {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.resolver
}

func (p *volumePipeline) liveParser() *mft.Parser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parser
}

func (p *volumePipeline) setParser(parser *mft.Parser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parser = parser
}

// setLive publishes a freshly built shadow Index/Resolver pair as the
// pipeline's current generation, following a rebuild swap.
func (p *volumePipeline) setLive(idx *index.Index, resolver *pathresolver.Resolver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = idx
	p.resolver = resolver
}

func (p *volumePipeline) markAvailable() {
	p.available.Store(true)
	p.reasonMu.Lock()
	p.reason = ""
	p.reasonMu.Unlock()
}

func (p *volumePipeline) markUnavailable(reason string) {
	p.available.Store(false)
	p.reasonMu.Lock()
	p.reason = reason
	p.reasonMu.Unlock()
}

func (p *volumePipeline) unavailableReason() string {
	p.reasonMu.Lock()
	defer p.reasonMu.Unlock()
	return p.reason
}

// sidecarPath returns the on-disk path for this volume's journal cursor,
// named after the drive letter with its colon stripped so it is a valid
// filename on every filesystem the service's data_dir might live on.
func sidecarPath(dataDir, vol string) string {
	safe := strings.TrimSuffix(vol, ":")
	return filepath.Join(dataDir, "journal", safe+".cursor")
}

// start opens the volume, builds its MFT Parser, runs the pipeline's
// initial rebuild synchronously (so a volume that fails to come up never
// gets registered with the Query Engine), then launches the Journal
// Consumer's steady-state loop in the background. Per SPEC_FULL.md §4.8,
// a failure here is this volume's alone: the caller marks it unavailable
// and moves on to the next.
func (p *volumePipeline) start(ctx context.Context, cfg rebuildConfig, dataDir string, engine *query.Engine, metrics metricsSink, snapshots *snapshot.Store) error {
	handle, err := volume.Open(p.volume, p.log)
	if err != nil {
		return err
	}
	p.handle = handle

	boot := handle.BootSector()
	parser, err := mft.NewParser(ctx, handle, mft.BootSectorInfo{
		BytesPerSector:    boot.BytesPerSector,
		SectorsPerCluster: boot.SectorsPerCluster,
		ClusterSize:       boot.ClusterSize,
		MFTStartLCN:       boot.MFTStartLCN,
		MFTRecordSize:     boot.MFTRecordSize,
	}, p.log)
	if err != nil {
		_ = handle.Close()
		return err
	}
	p.setParser(parser)
	p.source = newJournalSource(handle)

	worker := &rebuildWorker{pipeline: p, engine: engine, metrics: metrics, snapshots: snapshots, cfg: cfg}
	if err := worker.Rebuild(ctx); err != nil {
		_ = handle.Close()
		return err
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.consumer = journal.NewConsumer(p.volume, sidecarPath(dataDir, p.volume), p.source, &indexSink{pipeline: p}, worker, p.log)

	go func() {
		p.doneCh <- p.consumer.Run(consumerCtx)
	}()

	p.markAvailable()
	return nil
}

// stop cancels the Journal Consumer and closes the volume handle, waiting
// for the consumer goroutine to return first so the cursor sidecar's last
// write always happens before the handle is released.
func (p *volumePipeline) stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.doneCh
	}
	if p.handle != nil {
		if err := p.handle.Close(); err != nil {
			p.log.WithError(err).Warn("error closing volume handle during shutdown")
		}
	}
}

// errAccessDeniedVolume classifies a pipeline startup failure for the
// Supervisor's process exit-code contract (SPEC_FULL.md §6: exit 2 when
// opening any configured volume is denied).
func errAccessDeniedVolume(err error) bool {
	return errors.Is(err, apperrors.ErrAccessDenied)
}
