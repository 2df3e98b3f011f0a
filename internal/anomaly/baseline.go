// Package anomaly decides whether a transaction count is anomalous for its
// status/hour bucket. A Selector gathers the historical sample, Estimate turns
// it into a mean + k·std baseline and Classify grades the deviation.
package anomaly

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientHistory means no baseline can be judged for the bucket.
// It is a terminal state, not a failure: callers report severity unknown.
var ErrInsufficientHistory = errors.New("anomaly: insufficient history")

// Severity grades how far an observation sits above the baseline mean.
type Severity string

const (
	SeverityUnknown Severity = "unknown"
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
)

// Baseline is the statistical expectation derived from a history sample.
type Baseline struct {
	Mean      float64
	Std       float64
	Threshold float64
	Points    int
}

// Describe computes mean, sample standard deviation (n-1, zero for a single
// point) and threshold = mean + k·std.
func Describe(counts []int64, k float64) (Baseline, error) {
	n := len(counts)
	if n == 0 {
		return Baseline{}, ErrInsufficientHistory
	}

	xs := make([]float64, n)
	for i, c := range counts {
		xs[i] = float64(c)
	}

	mean, std := xs[0], 0.0
	if n > 1 {
		mean, std = stat.MeanStdDev(xs, nil)
	}

	return Baseline{
		Mean:      mean,
		Std:       std,
		Threshold: mean + k*std,
		Points:    n,
	}, nil
}

// Estimate is the judged outcome for one observed count.
type Estimate struct {
	Baseline
	Alert    bool
	Severity Severity
	ZScore   float64
}

// EstimateCount evaluates observed against the baseline built from counts.
// Alert requires observed to be strictly above the threshold.
func EstimateCount(counts []int64, observed int64, k float64) (Estimate, error) {
	base, err := Describe(counts, k)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{
		Baseline: base,
		Alert:    float64(observed) > base.Threshold,
		Severity: Classify(observed, base.Mean, base.Std),
	}
	if base.Std != 0 {
		est.ZScore = stat.StdScore(float64(observed), base.Mean, base.Std)
	}
	return est, nil
}

// Classify maps the z-score of observed to a severity. A flat baseline
// (std == 0) cannot be graded.
func Classify(observed int64, mean, std float64) Severity {
	if std == 0 {
		return SeverityUnknown
	}
	z := stat.StdScore(float64(observed), mean, std)
	switch {
	case z >= 3:
		return SeverityHigh
	case z >= 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
