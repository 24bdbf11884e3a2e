// Package verdict aggregates stage contributions into a final bounded
// verdict for a transaction.
package verdict

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion is stamped on every assessment.
const EngineVersion = "kestrel-1.0"

// Aggregator combines rule, anomaly, and classifier contributions.
type Aggregator struct {
	// Score strictly above which the transaction is marked fraudulent
	FraudThreshold int

	// Score strictly above which manual review is recommended
	ReviewThreshold int
}

// NewAggregator creates an aggregator with default thresholds.
func NewAggregator() *Aggregator {
	return &Aggregator{
		FraudThreshold:  domain.FraudThreshold,
		ReviewThreshold: domain.ReviewThreshold,
	}
}

// Input contains all stage outputs needed for a verdict.
type Input struct {
	TenantID  string
	TxID      string
	AccountID string
	TraceID   string

	RuleResults []domain.RuleResult

	AnomalyDelta int
	AnomalyAlert string

	ClassifierDelta int
	ClassifierAlert string

	HistorySize int
	StartTime   time.Time
	RulesMs     int64
	AnomalyMs   int64
	ClassifierMs int64
}

// Aggregate sums the stage deltas, clamps the score into [0, 100], and
// derives the decision fields. Alerts keep rule order, with the anomaly
// and classifier alerts appended last.
func (a *Aggregator) Aggregate(in *Input) *domain.Assessment {
	ruleDelta := 0
	alerts := []string{}
	for _, r := range in.RuleResults {
		if r.Triggered {
			ruleDelta += r.Delta
			if r.Alert != "" {
				alerts = append(alerts, r.Alert)
			}
		}
	}

	if in.AnomalyAlert != "" {
		alerts = append(alerts, in.AnomalyAlert)
	}
	if in.ClassifierAlert != "" {
		alerts = append(alerts, in.ClassifierAlert)
	}

	score := clamp(ruleDelta + in.AnomalyDelta + in.ClassifierDelta)

	recommendation := domain.RecommendationApprove
	if score > a.ReviewThreshold {
		recommendation = domain.RecommendationReview
	}

	assessment := a.newAssessment(in)
	assessment.Verdict = domain.Verdict{
		FraudScore:     score,
		IsFraudulent:   score > a.FraudThreshold,
		Alerts:         alerts,
		Recommendation: recommendation,
	}
	assessment.RuleDelta = ruleDelta
	assessment.AnomalyDelta = in.AnomalyDelta
	assessment.ClassifierDelta = in.ClassifierDelta
	return assessment
}

// FailSafe produces the neutral verdict for an internal pipeline error.
// The score is zero, the error is surfaced as the only alert, and the
// transaction is routed to manual review.
func (a *Aggregator) FailSafe(in *Input, err error) *domain.Assessment {
	assessment := a.newAssessment(in)
	assessment.Verdict = domain.Verdict{
		FraudScore:     0,
		IsFraudulent:   false,
		Alerts:         []string{fmt.Sprintf("Error in fraud detection: %v", err)},
		Recommendation: domain.RecommendationFailSafe,
	}
	return assessment
}

func (a *Aggregator) newAssessment(in *Input) *domain.Assessment {
	totalMs := int64(0)
	if !in.StartTime.IsZero() {
		totalMs = time.Since(in.StartTime).Milliseconds()
	}
	return &domain.Assessment{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		TxID:      in.TxID,
		AccountID: in.AccountID,
		Timestamp: time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:        in.TraceID,
			HistorySize:    in.HistorySize,
			RulesEvaluated: len(in.RuleResults),
			RulesMs:        in.RulesMs,
			AnomalyMs:      in.AnomalyMs,
			ClassifierMs:   in.ClassifierMs,
			TotalMs:        totalMs,
			EngineVersion:  EngineVersion,
		},
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > domain.FraudScoreMax {
		return domain.FraudScoreMax
	}
	return score
}

// ShouldAlert returns true if the assessment warrants an alert event.
func ShouldAlert(a *domain.Assessment) bool {
	return a.Verdict.IsFraudulent || a.Verdict.Recommendation != domain.RecommendationApprove
}
