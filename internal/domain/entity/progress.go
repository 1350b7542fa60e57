package entity

import "time"

// Progress is emitted after every reading an aggregator stores.
type Progress struct {
	Interval  string
	Cycle     int
	Reading   int
	Total     int
	Fine      float64
	Coarse    float64
	Timestamp time.Time
}

// Percent is the share of the cycle's readings collected so far.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Reading) / float64(p.Total) * 100
}
