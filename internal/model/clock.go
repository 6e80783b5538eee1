package model

import (
	"time"

	"github.com/google/uuid"
)

// Calendar mirroring outcome recorded on every clock entry
const (
	CalendarSyncSynced  = "synced"
	CalendarSyncFailed  = "failed"
	CalendarSyncSkipped = "skipped"
)

// ClockEntry is one work session bounded by clock-in and clock-out.
// A user has at most one entry with ClockOut unset; the partial unique index enforces it.
type ClockEntry struct {
	Base
	UserID             uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_clock_active_user,where:clock_out IS NULL" json:"user_id"`
	CustomerID         *uuid.UUID `gorm:"type:uuid;index" json:"customer_id"`
	ClockIn            time.Time  `gorm:"not null" json:"clock_in"`
	ClockOut           *time.Time `json:"clock_out"`
	CalendarEventID    *string    `gorm:"type:varchar(255)" json:"calendar_event_id"`
	CalendarSyncStatus string     `gorm:"type:varchar(20)" json:"calendar_sync_status"`
	CalendarSyncError  string     `gorm:"type:text" json:"calendar_sync_error,omitempty"`
	Notes              string     `gorm:"type:text" json:"notes"`
}

// Active reports whether the entry is still open
func (e *ClockEntry) Active() bool {
	return e.ClockOut == nil
}
