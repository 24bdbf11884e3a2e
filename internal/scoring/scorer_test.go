package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/classifier"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

type fixedClassifier struct {
	signal domain.Signal
	err    error
}

func (f *fixedClassifier) Classify(ctx context.Context, description string) (domain.Signal, error) {
	return f.signal, f.err
}

// afternoonClock is a Wednesday at 14:00, inside normal hours.
func afternoonClock() time.Time {
	return time.Date(2025, 4, 16, 14, 0, 0, 0, time.UTC)
}

// nightClock is a Wednesday at 02:00, an odd hour.
func nightClock() time.Time {
	return time.Date(2025, 4, 16, 2, 0, 0, 0, time.UTC)
}

func newScorer(t *testing.T, cls domain.SemanticClassifier, clock func() time.Time) *Scorer {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtins: %v", err)
	}

	var wrapped *classifier.BestEffort
	if cls != nil {
		wrapped = classifier.NewBestEffort(cls, time.Second, nil)
	}

	s := NewScorer(
		domain.DefaultScoringConfig(),
		engine,
		anomaly.NewDetector(anomaly.DefaultConfig()),
		wrapped,
		nil,
	)
	s.Clock = clock
	return s
}

func tx(amount float64, description, toAccount string) *domain.Transaction {
	return &domain.Transaction{
		ID:              "tx-001",
		TenantID:        "tenant-001",
		AccountID:       "acc-001",
		Amount:          decimal.NewFromFloat(amount),
		Description:     description,
		ToAccountNumber: toAccount,
	}
}

func flatHistory(n int, amount float64, toAccount string) []domain.HistoryEntry {
	entries := make([]domain.HistoryEntry, n)
	for i := range entries {
		// Slight jitter keeps the training matrix non-degenerate
		entries[i] = domain.HistoryEntry{
			Amount:          decimal.NewFromFloat(amount + float64(i%5)),
			ToAccountNumber: toAccount,
		}
	}
	return entries
}

func TestScoreCleanTransaction(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	a := s.Score(context.Background(), tx(102, "", "acc-known"), flatHistory(20, 100, "acc-known"))

	if a.Verdict.FraudScore != 0 {
		t.Errorf("score = %d, want 0 (alerts: %v)", a.Verdict.FraudScore, a.Verdict.Alerts)
	}
	if a.Verdict.IsFraudulent {
		t.Error("clean transaction marked fraudulent")
	}
	if a.Verdict.Recommendation != domain.RecommendationApprove {
		t.Errorf("recommendation = %q, want Approve", a.Verdict.Recommendation)
	}
}

func TestScoreEmptyHistory(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	// No history: no baseline for the amount rule, no anomaly stage
	a := s.Score(context.Background(), tx(50000, "", ""), nil)

	if a.Verdict.FraudScore != 0 {
		t.Errorf("score = %d, want 0 (alerts: %v)", a.Verdict.FraudScore, a.Verdict.Alerts)
	}
	if a.Metadata.HistorySize != 0 {
		t.Errorf("historySize = %d, want 0", a.Metadata.HistorySize)
	}
}

func TestScoreOddHourOnly(t *testing.T) {
	s := newScorer(t, nil, nightClock)

	a := s.Score(context.Background(), tx(100, "", ""), nil)

	if a.Verdict.FraudScore != 10 {
		t.Errorf("score = %d, want 10 (alerts: %v)", a.Verdict.FraudScore, a.Verdict.Alerts)
	}
	if a.Verdict.Recommendation != domain.RecommendationApprove {
		t.Errorf("recommendation = %q, want Approve", a.Verdict.Recommendation)
	}
	if len(a.Verdict.Alerts) != 1 || a.Verdict.Alerts[0] != "Transaction at unusual hour" {
		t.Errorf("alerts = %v", a.Verdict.Alerts)
	}
}

func TestScoreLargeAmountToNewRecipient(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	history := flatHistory(5, 100, "acc-known")
	a := s.Score(context.Background(), tx(700, "", "acc-new"), history)

	// 30 for the amount, 20 for the new recipient
	if a.RuleDelta != 50 {
		t.Errorf("ruleDelta = %d, want 50 (alerts: %v)", a.RuleDelta, a.Verdict.Alerts)
	}
	if a.Verdict.FraudScore != 50 {
		t.Errorf("score = %d, want 50", a.Verdict.FraudScore)
	}
	// Exactly at the review threshold still approves
	if a.Verdict.Recommendation != domain.RecommendationApprove {
		t.Errorf("recommendation = %q, want Approve at score 50", a.Verdict.Recommendation)
	}

	want := []string{
		"Unusually large transaction amount",
		"First time transacting with this recipient",
	}
	if len(a.Verdict.Alerts) != 2 || a.Verdict.Alerts[0] != want[0] || a.Verdict.Alerts[1] != want[1] {
		t.Errorf("alerts = %v, want %v", a.Verdict.Alerts, want)
	}
}

func TestScoreCrossesReviewThreshold(t *testing.T) {
	s := newScorer(t, nil, nightClock)

	history := flatHistory(5, 100, "acc-known")
	a := s.Score(context.Background(), tx(700, "", "acc-new"), history)

	// 30 + 10 + 20 = 60
	if a.Verdict.FraudScore != 60 {
		t.Errorf("score = %d, want 60 (alerts: %v)", a.Verdict.FraudScore, a.Verdict.Alerts)
	}
	if a.Verdict.Recommendation != domain.RecommendationReview {
		t.Errorf("recommendation = %q, want Review transaction", a.Verdict.Recommendation)
	}
	if a.Verdict.IsFraudulent {
		t.Error("score 60 must not be fraudulent")
	}
}

func TestScoreWithSuspiciousDescription(t *testing.T) {
	s := newScorer(t, &fixedClassifier{signal: domain.SignalSuspicious}, nightClock)

	history := flatHistory(5, 100, "acc-known")
	a := s.Score(context.Background(), tx(700, "urgent wire to unknown offshore account", "acc-new"), history)

	// 60 from rules plus 50 from the classifier, fraudulent
	if a.Verdict.FraudScore != 100 {
		t.Errorf("score = %d, want 100 (alerts: %v)", a.Verdict.FraudScore, a.Verdict.Alerts)
	}
	if !a.Verdict.IsFraudulent {
		t.Error("expected fraudulent verdict")
	}
	if a.ClassifierDelta != 50 {
		t.Errorf("classifierDelta = %d, want 50", a.ClassifierDelta)
	}

	last := a.Verdict.Alerts[len(a.Verdict.Alerts)-1]
	if last != "AI flagged description as suspicious" {
		t.Errorf("classifier alert must come last, got %q", last)
	}
}

func TestScoreClassifierSkippedWithoutDescription(t *testing.T) {
	s := newScorer(t, &fixedClassifier{signal: domain.SignalSuspicious}, afternoonClock)

	a := s.Score(context.Background(), tx(100, "", ""), nil)

	if a.ClassifierDelta != 0 {
		t.Errorf("classifier must not run on an empty description, delta = %d", a.ClassifierDelta)
	}
}

func TestScoreClassifierFailureIsNeutral(t *testing.T) {
	s := newScorer(t, &fixedClassifier{err: errors.New("model unavailable")}, afternoonClock)

	a := s.Score(context.Background(), tx(100, "groceries", ""), nil)

	if a.Verdict.FraudScore != 0 {
		t.Errorf("score = %d, want 0 when classifier fails", a.Verdict.FraudScore)
	}
	if a.Verdict.Recommendation != domain.RecommendationApprove {
		t.Errorf("recommendation = %q, want Approve", a.Verdict.Recommendation)
	}
}

func TestScoreAnomalyFlagsOutlier(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	history := flatHistory(40, 100, "acc-known")
	a := s.Score(context.Background(), tx(250000, "", "acc-known"), history)

	if a.AnomalyDelta != anomaly.FlagDelta {
		t.Errorf("anomalyDelta = %d, want %d (alerts: %v)", a.AnomalyDelta, anomaly.FlagDelta, a.Verdict.Alerts)
	}

	found := false
	for _, alert := range a.Verdict.Alerts {
		if alert == anomaly.FlagAlert {
			found = true
		}
	}
	if !found {
		t.Errorf("missing anomaly alert in %v", a.Verdict.Alerts)
	}
}

func TestScoreAnomalySkippedBelowMinHistory(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	history := flatHistory(9, 100, "acc-known")
	a := s.Score(context.Background(), tx(250000, "", "acc-known"), history)

	if a.AnomalyDelta != 0 {
		t.Errorf("anomaly stage must not run below the history minimum, delta = %d", a.AnomalyDelta)
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	history := flatHistory(25, 100, "acc-known")
	candidate := tx(250000, "", "acc-new")

	first := s.Score(context.Background(), candidate, history)
	for i := 0; i < 3; i++ {
		again := s.Score(context.Background(), candidate, history)
		if again.Verdict.FraudScore != first.Verdict.FraudScore {
			t.Fatalf("run %d: score %d != %d", i, again.Verdict.FraudScore, first.Verdict.FraudScore)
		}
		if len(again.Verdict.Alerts) != len(first.Verdict.Alerts) {
			t.Fatalf("run %d: alerts %v != %v", i, again.Verdict.Alerts, first.Verdict.Alerts)
		}
	}
}

func TestScoreNilTransactionFailSafe(t *testing.T) {
	s := newScorer(t, nil, afternoonClock)

	a := s.Score(context.Background(), nil, nil)

	if a.Verdict.FraudScore != 0 {
		t.Errorf("score = %d, want 0", a.Verdict.FraudScore)
	}
	if a.Verdict.Recommendation != domain.RecommendationFailSafe {
		t.Errorf("recommendation = %q, want %q", a.Verdict.Recommendation, domain.RecommendationFailSafe)
	}
	if len(a.Verdict.Alerts) != 1 {
		t.Fatalf("expected one fail-safe alert, got %v", a.Verdict.Alerts)
	}
}
