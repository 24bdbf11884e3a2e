package anomaly

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// uniformTraining builds n vectors of everyday transactions with mild
// amount jitter so the matrix is not degenerate.
func uniformTraining(n int) []domain.FeatureVector {
	out := make([]domain.FeatureVector, n)
	for i := range out {
		fv := domain.FeatureVector{}
		fv[domain.FeatureAmount] = 100 + float64(i%7)
		fv[domain.FeatureHourOfDay] = 14
		fv[domain.FeatureDayOfWeek] = 2
		fv[domain.FeatureMeanRecentAmount] = 100 + float64(i%3)
		fv[domain.FeatureStdDevRecentAmount] = 2
		out[i] = fv
	}
	return out
}

func TestScoreDeterminism(t *testing.T) {
	d := NewDetector(DefaultConfig())
	training := uniformTraining(30)

	candidate := domain.FeatureVector{104, 14, 2, 101, 2}

	first, err := d.Score(candidate, training)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		again, err := d.Score(candidate, training)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if again.Decision != first.Decision || again.Flagged != first.Flagged {
			t.Fatalf("run %d: got %+v, want %+v", i, again, first)
		}
	}
}

func TestScoreOrdinaryNotFlagged(t *testing.T) {
	d := NewDetector(DefaultConfig())
	training := uniformTraining(40)

	// Candidate indistinguishable from the training data
	candidate := domain.FeatureVector{103, 14, 2, 100, 2}

	res, err := d.Score(candidate, training)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if res.Flagged {
		t.Errorf("ordinary candidate flagged, decision %f", res.Decision)
	}
}

func TestScoreExtremeOutlierFlagged(t *testing.T) {
	d := NewDetector(DefaultConfig())
	training := uniformTraining(40)

	// Amount three orders of magnitude outside the training range,
	// at an hour never seen before
	candidate := domain.FeatureVector{250000, 3, 6, 100, 2}

	res, err := d.Score(candidate, training)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !res.Flagged {
		t.Errorf("extreme outlier not flagged, decision %f", res.Decision)
	}
	if res.Decision >= 0 {
		t.Errorf("expected negative decision for outlier, got %f", res.Decision)
	}
}

func TestScoreOutlierMoreAnomalousThanOrdinary(t *testing.T) {
	d := NewDetector(DefaultConfig())
	training := uniformTraining(40)

	ordinary, err := d.Score(domain.FeatureVector{103, 14, 2, 100, 2}, training)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	outlier, err := d.Score(domain.FeatureVector{250000, 3, 6, 100, 2}, training)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}

	if outlier.Decision >= ordinary.Decision {
		t.Errorf("outlier decision %f should be below ordinary decision %f",
			outlier.Decision, ordinary.Decision)
	}
}

func TestScoreErrors(t *testing.T) {
	d := NewDetector(DefaultConfig())

	t.Run("InsufficientData", func(t *testing.T) {
		_, err := d.Score(domain.FeatureVector{100, 14, 2, 0, 0}, nil)
		if err != ErrInsufficientData {
			t.Errorf("expected ErrInsufficientData, got %v", err)
		}
	})

	t.Run("DegenerateData", func(t *testing.T) {
		same := domain.FeatureVector{100, 14, 2, 100, 0}
		training := []domain.FeatureVector{same, same, same}
		_, err := d.Score(same, training)
		if err != ErrDegenerateData {
			t.Errorf("expected ErrDegenerateData, got %v", err)
		}
	})
}

func TestNewDetectorDefaults(t *testing.T) {
	d := NewDetector(Config{})
	if d.cfg.Trees != 100 || d.cfg.SampleSize != 256 {
		t.Errorf("zero config should fall back to defaults, got %+v", d.cfg)
	}
	if d.cfg.Threshold != -0.1 {
		t.Errorf("threshold = %f, want -0.1", d.cfg.Threshold)
	}
}
