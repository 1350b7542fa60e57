package entity

import "time"

// SamplePeriod is the pause after every reading. It is not compensated for
// read latency.
const SamplePeriod = 60 * time.Second

type Interval struct {
	Name             string
	ReadingsPerCycle int
}

const (
	Hourly  = "hourly"
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

var intervals = []Interval{
	{Name: Hourly, ReadingsPerCycle: 60},
	{Name: Daily, ReadingsPerCycle: 1440},
	{Name: Weekly, ReadingsPerCycle: 10080},
	{Name: Monthly, ReadingsPerCycle: 43800},
}

// ParseInterval looks a name up in the static interval table.
func ParseInterval(name string) (Interval, error) {
	for _, i := range intervals {
		if i.Name == name {
			return i, nil
		}
	}
	return Interval{}, &ConfigError{Interval: name}
}

// Intervals returns every known interval, shortest first.
func Intervals() []Interval {
	out := make([]Interval, len(intervals))
	copy(out, intervals)
	return out
}

func IntervalNames() []string {
	names := make([]string, 0, len(intervals))
	for _, i := range intervals {
		names = append(names, i.Name)
	}
	return names
}

// CycleDuration is the nominal length of one window cycle, ignoring read
// latency.
func (i Interval) CycleDuration() time.Duration {
	return time.Duration(i.ReadingsPerCycle) * SamplePeriod
}
