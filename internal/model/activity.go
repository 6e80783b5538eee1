package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActivityClockIn               = "CLOCK_IN"
	ActivityClockOut              = "CLOCK_OUT"
	ActivitySubmitApproval        = "SUBMIT_APPROVAL"
	ActivityApprove               = "APPROVE_REQUEST"
	ActivityDeny                  = "DENY_REQUEST"
	ActivityCreateInvoice         = "CREATE_INVOICE_FROM_APPROVAL"
	ActivityCreatePayroll         = "CREATE_PAYROLL_FROM_APPROVAL"
	ActivityApproveAppointment    = "APPROVE_CALENDAR_APPOINTMENT"
	ActivityConnectIntegration    = "CONNECT_INTEGRATION"
	ActivityDisconnectIntegration = "DISCONNECT_INTEGRATION"
	ActivitySync                  = "SYNC"
	ActivityWebhook               = "WEBHOOK"
	ActivityCreateDBConnection    = "CREATE_DB_CONNECTION"
	ActivityUpdateDBConnection    = "UPDATE_DB_CONNECTION"
	ActivityDeleteDBConnection    = "DELETE_DB_CONNECTION"
)

// ActivityLog is the append-only audit trail. Rows are never updated or deleted.
type ActivityLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for scheduler/webhook actions
	User        *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type        string         `gorm:"type:varchar(50);not null;index" json:"type"`
	Description string         `gorm:"type:text" json:"description"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `gorm:"index" json:"timestamp"`
}

func (a *ActivityLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
