package persistence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
)

// Persister writes snapshots of a Source to a Sink. MarkDirty schedules a batched
// background write; Flush writes synchronously and is used before acknowledging
// claim and close.
type Persister struct {
	source   Source
	sink     Sink
	codec    Codec
	logger   *zap.Logger
	interval time.Duration

	dirty   chan struct{}
	writeMu sync.Mutex
	// generation counts MarkDirty calls; written is the generation last persisted.
	generation atomic.Uint64
	written    atomic.Uint64
	failures   atomic.Int64
}

// NewPersister builds a persister. interval is the batching window for MarkDirty.
func NewPersister(source Source, sink Sink, codec Codec, interval time.Duration, logger *zap.Logger) *Persister {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Persister{
		source:   source,
		sink:     sink,
		codec:    codec,
		logger:   logger.Named("persister"),
		interval: interval,
		dirty:    make(chan struct{}, 1),
	}
}

// MarkDirty records a state change to be written by the background loop.
func (p *Persister) MarkDirty() {
	p.generation.Add(1)
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Flush writes the current snapshot now. Errors wrap domain.ErrPersistenceWriteFailure.
func (p *Persister) Flush(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	gen := p.generation.Load()
	snap := p.source.Snapshot()
	snap.Version = SnapshotVersion
	snap.TakenAt = time.Now().UTC()

	data, err := p.codec.Encode(snap)
	if err != nil {
		p.failures.Add(1)
		return fmt.Errorf("%w: encode: %v", domain.ErrPersistenceWriteFailure, err)
	}
	if err := p.sink.Write(ctx, data); err != nil {
		p.failures.Add(1)
		return fmt.Errorf("%w: %v", domain.ErrPersistenceWriteFailure, err)
	}
	p.written.Store(gen)
	return nil
}

// Pending reports whether changes were marked since the last successful write.
func (p *Persister) Pending() bool {
	return p.generation.Load() != p.written.Load()
}

// Failures returns the number of failed writes since start.
func (p *Persister) Failures() int64 {
	return p.failures.Load()
}

// Load reads and decodes the stored snapshot. ok is false when nothing was stored.
func (p *Persister) Load(ctx context.Context) (Snapshot, bool, error) {
	data, err := p.sink.Read(ctx)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return NewSnapshot(), false, nil
	}
	snap, err := p.codec.Decode(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Run batches dirty marks into writes until ctx is cancelled, then flushes once more.
func (p *Persister) Run(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			if p.Pending() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := p.Flush(flushCtx); err != nil {
					p.logger.Error("final snapshot flush failed", zap.Error(err))
				}
				cancel()
			}
			return nil
		case <-p.dirty:
			if !armed {
				timer.Reset(p.interval)
				armed = true
			}
		case <-timer.C:
			armed = false
			if !p.Pending() {
				continue
			}
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("snapshot write failed", zap.Error(err))
				// retry on the next window
				p.MarkDirty()
			}
		}
	}
}
