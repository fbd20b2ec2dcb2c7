package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/nulzo/modelmart/internal/store"
	"github.com/nulzo/modelmart/internal/store/model"
	"go.uber.org/zap"
)

// Ingestor handles the asynchronous persistence of audit events.
type Ingestor interface {
	Log(event *model.AuditEvent)
	Start(ctx context.Context)
	Stop()
}

type IngestorOptions struct {
	BufferSize int
	BatchSize  int
	FlushEvery time.Duration
}

func DefaultIngestorOptions() IngestorOptions {
	return IngestorOptions{
		BufferSize: 10000,
		BatchSize:  50,
		FlushEvery: 5 * time.Second,
	}
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	eventChan chan *model.AuditEvent
	batchSize int
	flushTime time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	exited  bool
	done    chan struct{}
}

func NewIngestor(logger *zap.Logger, repo store.Repository, opts IngestorOptions) Ingestor {
	def := DefaultIngestorOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = def.FlushEvery
	}

	return &ingestor{
		logger:    logger,
		repo:      repo,
		eventChan: make(chan *model.AuditEvent, opts.BufferSize),
		batchSize: opts.BatchSize,
		flushTime: opts.FlushEvery,
		done:      make(chan struct{}),
	}
}

// Log enqueues event without blocking. Events are dropped when the buffer is
// full or the ingestor has been stopped. Once the worker has exited on context
// cancellation, events are written synchronously instead.
func (i *ingestor) Log(event *model.AuditEvent) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		i.logger.Warn("Audit ingestor stopped, dropping event", zap.String("event_id", event.ID))
		return
	}
	if i.exited {
		i.persist([]*model.AuditEvent{event})
		return
	}

	select {
	case i.eventChan <- event:
	default:
		i.logger.Warn("Audit buffer full, dropping event", zap.String("event_id", event.ID))
	}
}

func (i *ingestor) Start(ctx context.Context) {
	i.mu.Lock()
	i.started = true
	i.mu.Unlock()

	go i.worker(ctx)
}

// Stop flushes buffered events and waits for the worker to exit.
func (i *ingestor) Stop() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.eventChan)
	started := i.started
	i.mu.Unlock()

	if started {
		<-i.done
	}
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.AuditEvent, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		i.persist(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-i.eventChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// late events bypass the channel from here on
			i.mu.Lock()
			i.exited = true
			i.mu.Unlock()

			for {
				select {
				case e, ok := <-i.eventChan:
					if !ok {
						flush()
						return
					}
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// persist writes events in one transaction. The request context is gone by
// the time a batch is flushed, so it runs on a fresh one.
func (i *ingestor) persist(events []*model.AuditEvent) {
	err := i.repo.WithTx(context.Background(), func(tx store.Repository) error {
		for _, e := range events {
			if err := tx.Audit().Log(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		i.logger.Error("Failed to persist audit batch", zap.Int("size", len(events)), zap.Error(err))
	}
}
