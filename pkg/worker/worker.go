// Package worker is the async ingestion pipeline: the HTTP handler
// enqueues turns on a bounded channel and acknowledges immediately; a
// single consumer drains the queue through insert, extraction,
// organization, and agentic materialization. Per-item failures are logged
// and skipped; the worker exits only when the queue is closed.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/agentic"
	"github.com/ashvinar/memory-layer/pkg/extraction"
	"github.com/ashvinar/memory-layer/pkg/organizer"
)

// DefaultQueueSize bounds the turn queue when the config leaves it zero.
const DefaultQueueSize = 256

// Config holds the pipeline's dependencies.
type Config struct {
	Store     store.Storer
	Extractor *extraction.Service
	Agentic   *agentic.Service
	Logger    *zap.SugaredLogger
	QueueSize int
}

// Pipeline owns the bounded queue and its consumer goroutine.
type Pipeline struct {
	queue     chan *store.Turn
	store     store.Storer
	extractor *extraction.Service
	agentic   *agentic.Service
	logger    *zap.SugaredLogger

	closeOnce sync.Once
	done      chan struct{}
}

// New builds the pipeline and starts its consumer.
func New(cfg Config) *Pipeline {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	p := &Pipeline{
		queue:     make(chan *store.Turn, size),
		store:     cfg.Store,
		extractor: cfg.Extractor,
		agentic:   cfg.Agentic,
		logger:    logger,
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue hands a turn to the worker without blocking the caller. A full
// queue is an Internal error the handler surfaces as 500; the ack-latency
// budget does not allow waiting for drain.
func (p *Pipeline) Enqueue(t *store.Turn) error {
	select {
	case p.queue <- t:
		return nil
	default:
		return apperr.WrapInternal(nil, "ingestion queue full")
	}
}

// Close stops accepting turns and blocks until the consumer has drained
// everything already queued.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() { close(p.queue) })
	<-p.done
}

func (p *Pipeline) run() {
	defer close(p.done)
	for turn := range p.queue {
		p.process(turn)
	}
}

// process runs one turn through the full pipeline. Every failure past the
// turn insert is per-item: logged at warn, remaining memories continue.
func (p *Pipeline) process(turn *store.Turn) {
	if err := p.store.CreateTurn(turn); err != nil {
		p.logger.Warnw("turn insert failed, dropping turn", "turn", turn.ID, "error", err)
		return
	}

	memories := p.extractor.ExtractAsync(context.Background(), turn)
	touchedTopics := make(map[string]bool)
	for _, m := range memories {
		if _, err := organizer.Organize(p.store, m, turn); err != nil {
			p.logger.Warnw("organize failed, skipping memory", "turn", turn.ID, "memory", m.ID, "error", err)
			continue
		}
		if err := p.store.CreateMemory(m); err != nil {
			p.logger.Warnw("memory insert failed, skipping memory", "turn", turn.ID, "memory", m.ID, "error", err)
			continue
		}
		if m.TopicID != nil {
			touchedTopics[*m.TopicID] = true
		}
		if _, err := p.agentic.Upsert(m); err != nil {
			p.logger.Warnw("agentic upsert failed", "memory", m.ID, "error", err)
		}
	}

	for topicID := range touchedTopics {
		if _, err := p.store.RefreshIndexNote(topicID); err != nil {
			p.logger.Warnw("index note refresh failed", "topic", topicID, "error", err)
		}
	}
}
