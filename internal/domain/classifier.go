package domain

import "context"

// Signal is the semantic classifier's judgment of a transaction description.
type Signal string

const (
	SignalSuspicious Signal = "suspicious"
	SignalPossible   Signal = "possible"
	SignalNone       Signal = "none"
)

// Delta returns the score contribution of a signal.
func (s Signal) Delta() int {
	switch s {
	case SignalSuspicious:
		return 50
	case SignalPossible:
		return 25
	default:
		return 0
	}
}

// Alert returns the verdict alert for a signal, empty when none applies.
func (s Signal) Alert() string {
	switch s {
	case SignalSuspicious:
		return "AI flagged description as suspicious"
	case SignalPossible:
		return "AI flagged description as potentially suspicious"
	default:
		return ""
	}
}

// SemanticClassifier judges free-text transaction descriptions.
// Implementations may call out to external model providers; errors mean
// the signal is unavailable, never that the transaction is risky.
type SemanticClassifier interface {
	Classify(ctx context.Context, description string) (Signal, error)
}
