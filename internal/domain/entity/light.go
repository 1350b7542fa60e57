package entity

import "time"

type LightState string

const (
	LightGreen  LightState = "GREEN"
	LightYellow LightState = "YELLOW"
	LightRed    LightState = "RED"
)

// ClassifyReading maps a live reading pair to exactly one light state.
func ClassifyReading(fine, coarse float64) LightState {
	switch {
	case fine >= FineAlertThreshold || coarse >= CoarseAlertThreshold:
		return LightRed
	case fine >= FineModerateThreshold || coarse >= CoarseModerateThreshold:
		return LightYellow
	default:
		return LightGreen
	}
}

// NotificationMessage asks the push relay to alert registered devices.
type NotificationMessage struct {
	ID        string    `json:"id"`
	Time      string    `json:"time"`
	Pollutant string    `json:"pollutant"`
	Value     string    `json:"value"`
	SentAt    time.Time `json:"sent_at"`
}
