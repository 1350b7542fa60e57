package entity

import (
	"time"

	"gorm.io/gorm"
)

// Violation is one row at or above its alert threshold.
type Violation struct {
	ObjectKey string  `json:"object_key"`
	Line      int     `json:"line"`
	Pollutant string  `json:"pollutant"`
	Value     float64 `json:"value"`
	Time      string  `json:"time"`
}

// LogEvaluation is the outcome of scanning one log.
type LogEvaluation struct {
	Rows           int
	MalformedLines []int
	Violations     []Violation
}

// ScanResult is the answer of a single alert scan. The reported alert is the
// last violation found in scan order.
type ScanResult struct {
	Alert            bool        `json:"alert"`
	Pollutant        string      `json:"pollutant"`
	Value            float64     `json:"value"`
	Time             string      `json:"time"`
	FilesSeen        []string    `json:"files_seen"`
	PrevFilesSkipped bool        `json:"prev_files_skipped"`
	NewFiles         []string    `json:"new_files"`
	FailedFiles      []string    `json:"failed_files,omitempty"`
	Violations       []Violation `json:"violations,omitempty"`
}

// AlertRecord is the persisted form of a violation.
type AlertRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ObjectKey string         `gorm:"not null;uniqueIndex:idx_alert_row" json:"object_key"`
	Line      int            `gorm:"not null;uniqueIndex:idx_alert_row" json:"line"`
	Pollutant string         `gorm:"not null;type:text" json:"pollutant"`
	Value     float64        `json:"value"`
	Time      string         `json:"time"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
