package domain

import (
	"time"
)

// Score bounds and decision thresholds.
const (
	FraudScoreMax = 100

	// A score strictly above FraudThreshold marks the transaction fraudulent.
	FraudThreshold = 70

	// A score strictly above ReviewThreshold recommends manual review.
	ReviewThreshold = 50
)

// Recommendation strings returned on a verdict.
const (
	RecommendationApprove  = "Approve"
	RecommendationReview   = "Review transaction"
	RecommendationFailSafe = "Review"
)

// Verdict is the outcome of scoring one transaction.
type Verdict struct {
	FraudScore     int      `json:"fraudScore"`
	IsFraudulent   bool     `json:"isFraudulent"`
	Alerts         []string `json:"alerts"`
	Recommendation string   `json:"recommendation"`
}

// Assessment wraps a Verdict with identifiers and processing metadata
// for storage and the API.
type Assessment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	TxID      string    `json:"txId"`
	AccountID string    `json:"accountId"`
	Verdict   Verdict   `json:"verdict"`
	Timestamp time.Time `json:"timestamp"`

	// Per-stage contributions before clamping
	RuleDelta       int `json:"ruleDelta"`
	AnomalyDelta    int `json:"anomalyDelta"`
	ClassifierDelta int `json:"classifierDelta"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID        string `json:"traceId"`
	HistorySize    int    `json:"historySize"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	RulesMs        int64  `json:"rulesMs"`
	AnomalyMs      int64  `json:"anomalyMs"`
	ClassifierMs   int64  `json:"classifierMs"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}

// AssessmentResponse is the API response for a scoring request.
type AssessmentResponse struct {
	AssessmentID   string             `json:"assessmentId"`
	TxID           string             `json:"txId"`
	TenantID       string             `json:"tenantId"`
	AccountID      string             `json:"accountId"`
	FraudScore     int                `json:"fraudScore"`
	IsFraudulent   bool               `json:"isFraudulent"`
	Alerts         []string           `json:"alerts"`
	Recommendation string             `json:"recommendation"`
	Metadata       AssessmentMetadata `json:"metadata"`
}

// ToResponse converts an Assessment to an API response.
func (a *Assessment) ToResponse() *AssessmentResponse {
	alerts := a.Verdict.Alerts
	if alerts == nil {
		alerts = []string{}
	}
	return &AssessmentResponse{
		AssessmentID:   a.ID,
		TxID:           a.TxID,
		TenantID:       a.TenantID,
		AccountID:      a.AccountID,
		FraudScore:     a.Verdict.FraudScore,
		IsFraudulent:   a.Verdict.IsFraudulent,
		Alerts:         alerts,
		Recommendation: a.Verdict.Recommendation,
		Metadata:       a.Metadata,
	}
}
