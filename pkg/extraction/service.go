package extraction

import (
	"context"

	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/store"
)

// Config holds the extraction service's dependencies.
type Config struct {
	// Strategy defaults to hybrid when a provider is configured, else
	// heuristic-only.
	Strategy Strategy
	Provider Provider
	Logger   *zap.SugaredLogger
}

// Service coordinates turn-to-memory extraction across strategies. The
// heuristic path is always available; the LLM path requires a configured
// provider and never propagates its failures.
type Service struct {
	heuristic *Heuristic
	provider  Provider
	strategy  Strategy
	logger    *zap.SugaredLogger
}

// New builds the extraction service from config, applying the strategy
// default.
func New(cfg Config) *Service {
	strategy := cfg.Strategy
	if strategy == "" {
		if cfg.Provider != nil {
			strategy = StrategyHybrid
		} else {
			strategy = StrategyHeuristic
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		heuristic: NewHeuristic(),
		provider:  cfg.Provider,
		strategy:  strategy,
		logger:    logger,
	}
}

// Strategy returns the resolved extraction strategy.
func (s *Service) Strategy() Strategy {
	return s.strategy
}

// Extract converts a turn into memories using only the heuristic extractor.
// Synchronous, deterministic, no side effects.
func (s *Service) Extract(turn *store.Turn) []*store.Memory {
	return toMemories(dedupe(s.heuristic.candidates(turn)), turn)
}

// ExtractAsync converts a turn into memories using the configured strategy.
// LLM failures are logged at warn and the heuristic output is returned
// instead; this method never fails.
func (s *Service) ExtractAsync(ctx context.Context, turn *store.Turn) []*store.Memory {
	heuristic := s.heuristic.candidates(turn)

	var fromLLM []candidate
	switch s.strategy {
	case StrategyLLM:
		cands, err := llmCandidates(ctx, s.provider, turn)
		if err != nil {
			s.logger.Warnw("llm extraction failed, falling back to heuristics",
				"turn", turn.ID, "error", err)
			break
		}
		// llm-with-fallback: the LLM output replaces the heuristic pass.
		return toMemories(dedupe(cands), turn)
	case StrategyHybrid:
		if s.provider == nil || !isComplex(turn.UserText) {
			break
		}
		cands, err := llmCandidates(ctx, s.provider, turn)
		if err != nil {
			s.logger.Warnw("llm extraction failed, keeping heuristic output",
				"turn", turn.ID, "error", err)
			break
		}
		fromLLM = cands
	}

	merged := dedupe(append(heuristic, fromLLM...))
	return toMemories(merged, turn)
}
