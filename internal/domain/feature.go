package domain

// FeatureVector is the fixed-size numeric summary of a transaction in the
// context of its account history.
type FeatureVector [FeatureCount]float64

// Feature positions within a FeatureVector.
const (
	FeatureAmount = iota
	FeatureHourOfDay
	FeatureDayOfWeek
	FeatureMeanRecentAmount
	FeatureStdDevRecentAmount

	FeatureCount
)

// Trailing window sizes over account history.
const (
	// MeanWindow bounds the entries used for the amount mean and
	// standard deviation features.
	MeanWindow = 10

	// RecipientWindow bounds the entries scanned for recipient novelty.
	RecipientWindow = 20
)
