package eval

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultStep is the resolution requested from the time-series source
const DefaultStep = 60 * time.Second

// ComputeAvailability queries src for the window and returns the mean of all
// valid samples across every returned series.
// Values that do not parse as finite numbers are dropped. Zero valid samples
// yield an availability of 0.0. A source error is returned in QueryErr, never
// as a failure of the computation.
func ComputeAvailability(ctx context.Context, src TimeSeriesSource, query string, start, end time.Time, step time.Duration) AvailabilityResult {
	if step <= 0 {
		step = DefaultStep
	}

	series, err := src.QueryRange(ctx, query, start, end, step)
	if err != nil {
		return AvailabilityResult{QueryErr: err}
	}

	var sum float64
	var count int
	for _, s := range series {
		for _, sample := range s.Samples {
			v, ok := parseSample(sample.Value)
			if !ok {
				continue
			}
			sum += v
			count++
		}
	}

	if count == 0 {
		return AvailabilityResult{}
	}

	return AvailabilityResult{
		Value:       sum / float64(count),
		SampleCount: count,
	}
}

// parseSample converts a raw sample value, rejecting NaN and infinities
func parseSample(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
