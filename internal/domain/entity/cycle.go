package entity

import (
	"time"

	"gorm.io/gorm"
)

type CycleStatus string

const (
	CycleShipped CycleStatus = "SHIPPED"
	CyclePending CycleStatus = "PENDING"
)

// WindowCycle is the ledger record of one shipped log.
type WindowCycle struct {
	CycleID   string      `gorm:"primaryKey;type:text" json:"cycle_id"`
	Interval  string      `gorm:"not null;index" json:"interval"`
	Filename  string      `gorm:"not null" json:"filename"`
	ObjectKey string      `gorm:"not null;uniqueIndex" json:"object_key"`
	Readings  int         `gorm:"not null" json:"readings"`
	Status    CycleStatus `gorm:"not null;type:text" json:"status"`
	StartedAt time.Time   `json:"started_at"`
	ShippedAt time.Time   `json:"shipped_at"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CycleCompletedMessage announces a log that reached remote storage.
type CycleCompletedMessage struct {
	CycleID   string    `json:"cycle_id"`
	Interval  string    `json:"interval"`
	ObjectKey string    `json:"object_key"`
	Readings  int       `json:"readings"`
	ShippedAt time.Time `json:"shipped_at"`
}
