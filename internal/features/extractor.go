// Package features builds fixed-size numeric summaries of transactions
// against their account history.
package features

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Extract builds the feature vector for a candidate transaction.
//
// Hour and weekday come from the supplied evaluation clock rather than
// the transaction's own timestamp. The mean and standard deviation cover
// the trailing MeanWindow entries of the history; an empty history yields
// zeros for both.
func Extract(tx *domain.Transaction, history []domain.HistoryEntry, now time.Time) domain.FeatureVector {
	amount := 0.0
	if tx != nil {
		amount = tx.Amount.InexactFloat64()
	}
	return vectorFor(amount, history, now)
}

// TrainingMatrix computes the feature vector of every history entry, each
// against its own preceding trailing window, oldest first. The anomaly
// detector fits on this matrix.
func TrainingMatrix(history []domain.HistoryEntry, now time.Time) []domain.FeatureVector {
	matrix := make([]domain.FeatureVector, 0, len(history))
	for i, entry := range history {
		start := i - domain.MeanWindow
		if start < 0 {
			start = 0
		}
		matrix = append(matrix, vectorFor(entry.Amount.InexactFloat64(), history[start:i], now))
	}
	return matrix
}

func vectorFor(amount float64, window []domain.HistoryEntry, now time.Time) domain.FeatureVector {
	mean, stddev := recentAmountStats(window)

	var fv domain.FeatureVector
	fv[domain.FeatureAmount] = amount
	fv[domain.FeatureHourOfDay] = float64(now.Hour())
	fv[domain.FeatureDayOfWeek] = float64(weekday(now))
	fv[domain.FeatureMeanRecentAmount] = mean
	fv[domain.FeatureStdDevRecentAmount] = stddev
	return fv
}

// weekday maps time.Weekday to Monday=0 .. Sunday=6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// recentAmountStats returns the mean and standard deviation of the amounts
// in the trailing MeanWindow entries.
func recentAmountStats(window []domain.HistoryEntry) (float64, float64) {
	start := len(window) - domain.MeanWindow
	if start < 0 {
		start = 0
	}
	recent := window[start:]
	if len(recent) == 0 {
		return 0, 0
	}

	amounts := make([]float64, len(recent))
	for i, entry := range recent {
		amounts[i] = entry.Amount.InexactFloat64()
	}

	// Population standard deviation, matching ddof=0.
	mean := stat.Mean(amounts, nil)
	stddev := 0.0
	if len(amounts) > 1 {
		stddev = stat.PopStdDev(amounts, nil)
	}
	return mean, stddev
}
