package entity

import (
	"fmt"
	"math"
	"time"
)

const (
	PollutantFine   = "PM2.5"
	PollutantCoarse = "PM10"

	// Alert thresholds, µg/m³.
	FineAlertThreshold   = 5.0
	CoarseAlertThreshold = 15.0

	// Moderate band used by the light indicator.
	FineModerateThreshold   = 3.0
	CoarseModerateThreshold = 10.0
)

// TimestampLayout is the asctime layout used for row timestamps and log
// filenames.
const TimestampLayout = time.ANSIC

type Reading struct {
	Fine      float64
	Coarse    float64
	Timestamp time.Time
}

// Validate rejects concentrations that are negative or not finite.
func (r Reading) Validate() error {
	if !validConcentration(r.Fine) || !validConcentration(r.Coarse) {
		return fmt.Errorf("invalid concentration (fine=%v coarse=%v)", r.Fine, r.Coarse)
	}
	return nil
}

func validConcentration(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// Rows splits a reading into its two log rows, fine first.
func (r Reading) Rows() [2]Row {
	ts := r.Timestamp.Format(TimestampLayout)
	return [2]Row{
		{Pollutant: PollutantFine, Value: r.Fine, Timestamp: ts},
		{Pollutant: PollutantCoarse, Value: r.Coarse, Timestamp: ts},
	}
}

type Row struct {
	Pollutant string
	Value     float64
	Timestamp string
}

// ExceedsAlert reports whether the row crosses its pollutant's threshold.
// Rows with an unknown pollutant never do.
func (r Row) ExceedsAlert() bool {
	switch r.Pollutant {
	case PollutantFine:
		return r.Value >= FineAlertThreshold
	case PollutantCoarse:
		return r.Value >= CoarseAlertThreshold
	default:
		return false
	}
}
