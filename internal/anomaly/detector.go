package anomaly

import (
	"context"
	"errors"
	"time"
)

// Assessment is the verdict for one observation. A nil Baseline is the
// "no estimate" outcome: not enough history to judge.
type Assessment struct {
	Baseline *Baseline
	Alert    bool
	Severity Severity
	ZScore   float64
	Source   Source
}

// HasEstimate reports whether a baseline was computed.
func (a Assessment) HasEstimate() bool {
	return a.Baseline != nil
}

// Detector combines history selection and estimation.
type Detector struct {
	selector *Selector
	params   Params
}

// NewDetector constructs a Detector over the given history reader.
func NewDetector(store HistoryReader, params Params) *Detector {
	return &Detector{selector: NewSelector(store, params), params: params}
}

// Params returns the detection settings in use.
func (d *Detector) Params() Params {
	return d.params
}

// Assess judges count for status at ts against history strictly before ts.
// Insufficient history yields a no-estimate assessment rather than an error;
// only store failures are returned.
func (d *Detector) Assess(ctx context.Context, status string, ts time.Time, count int64) (Assessment, error) {
	sample, err := d.selector.Select(ctx, status, ts)
	if errors.Is(err, ErrInsufficientHistory) {
		return Assessment{Severity: SeverityUnknown}, nil
	}
	if err != nil {
		return Assessment{}, err
	}

	est, err := EstimateCount(sample.Counts, count, d.params.StdMultiplier)
	if errors.Is(err, ErrInsufficientHistory) {
		return Assessment{Severity: SeverityUnknown}, nil
	}
	if err != nil {
		return Assessment{}, err
	}

	base := est.Baseline
	return Assessment{
		Baseline: &base,
		Alert:    est.Alert,
		Severity: est.Severity,
		ZScore:   est.ZScore,
		Source:   sample.Source,
	}, nil
}
