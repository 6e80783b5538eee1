package model

import "time"

const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// DatabaseConnection is a secondary relational database registered by an administrator
type DatabaseConnection struct {
	Base
	Name           string     `gorm:"type:varchar(255);not null" json:"name"`
	Host           string     `gorm:"type:varchar(255);not null" json:"host"`
	Port           int        `gorm:"not null;default:5432" json:"port"`
	Database       string     `gorm:"type:varchar(255);not null" json:"database"`
	Username       string     `gorm:"type:varchar(255);not null" json:"username"`
	Password       string     `gorm:"type:varchar(255)" json:"-"`
	SSL            bool       `gorm:"not null;default:false" json:"ssl"`
	AutoSync       bool       `gorm:"not null;default:false" json:"auto_sync"`
	SyncInterval   int        `gorm:"not null;default:60" json:"sync_interval"` // minutes
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncStatus string     `gorm:"type:varchar(20)" json:"last_sync_status"`
}
