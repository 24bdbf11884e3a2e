// Package scoring runs the full risk-scoring pipeline for a transaction:
// feature extraction, rule evaluation, anomaly detection, and the
// optional semantic classifier, aggregated into a bounded verdict.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/classifier"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

// Scorer orchestrates the scoring stages.
type Scorer struct {
	cfg        domain.ScoringConfig
	engine     *rules.Engine
	detector   *anomaly.Detector
	classifier *classifier.BestEffort
	aggregator *verdict.Aggregator
	logger     *slog.Logger

	// Clock supplies the evaluation time for the hour and weekday
	// features. Tests pin it; nil means time.Now.
	Clock func() time.Time
}

// NewScorer wires the pipeline stages together.
func NewScorer(cfg domain.ScoringConfig, engine *rules.Engine, detector *anomaly.Detector, cls *classifier.BestEffort, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		cfg:        cfg,
		engine:     engine,
		detector:   detector,
		classifier: cls,
		aggregator: verdict.NewAggregator(),
		logger:     logger,
	}
}

// Score runs the pipeline for one transaction against its history.
//
// Dependency failures degrade to neutral stage signals; an unrecoverable
// internal failure produces the fail-safe verdict instead of an error.
// The returned assessment is always usable.
func (s *Scorer) Score(ctx context.Context, tx *domain.Transaction, history []domain.HistoryEntry) (out *domain.Assessment) {
	start := time.Now()

	in := &verdict.Input{
		StartTime:   start,
		HistorySize: len(history),
	}
	if tx != nil {
		in.TenantID = tx.TenantID
		in.TxID = tx.ID
		in.AccountID = tx.AccountID
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scoring pipeline panic", "txId", in.TxID, "panic", r)
			out = s.aggregator.FailSafe(in, fmt.Errorf("internal error: %v", r))
		}
	}()

	if tx == nil {
		return s.aggregator.FailSafe(in, fmt.Errorf("transaction is required"))
	}

	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock()
	}

	// Classifier runs concurrently with the numeric stages
	type clsOut struct {
		sig domain.Signal
		ok  bool
		ms  int64
	}
	clsCh := make(chan clsOut, 1)
	go func() {
		clsStart := time.Now()
		var o clsOut
		if s.classifier != nil {
			o.sig, o.ok = s.classifier.Judge(ctx, tx.Description)
		}
		o.ms = time.Since(clsStart).Milliseconds()
		clsCh <- o
	}()

	fv := features.Extract(tx, history, now)

	rulesStart := time.Now()
	ruleResults, err := s.engine.EvaluateAll(ctx, &rules.EvaluateInput{
		TenantID: tx.TenantID,
		TxID:     tx.ID,
		Tx:       tx,
		History:  history,
		Features: fv,
	})
	in.RulesMs = time.Since(rulesStart).Milliseconds()
	if err != nil {
		return s.aggregator.FailSafe(in, fmt.Errorf("rule evaluation: %w", err))
	}
	in.RuleResults = ruleResults

	anomalyStart := time.Now()
	s.scoreAnomaly(in, fv, history, now)
	in.AnomalyMs = time.Since(anomalyStart).Milliseconds()

	cls := <-clsCh
	in.ClassifierMs = cls.ms
	if cls.ok {
		in.ClassifierDelta = cls.sig.Delta()
		in.ClassifierAlert = cls.sig.Alert()
	}

	return s.aggregator.Aggregate(in)
}

// scoreAnomaly runs the anomaly stage when enough history exists.
// Detector errors are neutral, not fatal.
func (s *Scorer) scoreAnomaly(in *verdict.Input, fv domain.FeatureVector, history []domain.HistoryEntry, now time.Time) {
	minHistory := s.cfg.AnomalyMinHistory
	if minHistory <= 0 {
		minHistory = 10
	}
	if s.detector == nil || len(history) < minHistory {
		return
	}

	training := features.TrainingMatrix(history, now)
	res, err := s.detector.Score(fv, training)
	if err != nil {
		s.logger.Debug("anomaly stage skipped", "txId", in.TxID, "error", err)
		return
	}
	if res.Flagged {
		in.AnomalyDelta = anomaly.FlagDelta
		in.AnomalyAlert = anomaly.FlagAlert
	}
}
