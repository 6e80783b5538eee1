package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const PayrollStatusApproved = "approved"

// WeeklyPayroll is an approved hours/rate breakdown for one employee and week
type WeeklyPayroll struct {
	Base
	EmployeeID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"employee_id"`
	Employee      *User           `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	WeekStart     time.Time       `gorm:"type:date;not null;index" json:"week_start"`
	RegularHours  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"regular_hours"`
	OvertimeHours decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"overtime_hours"`
	HourlyRate    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"hourly_rate"`
	OvertimeRate  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"overtime_rate"`
	GrossPay      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"gross_pay"`
	Status        string          `gorm:"type:varchar(20);not null" json:"status"`
	ApprovalID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"approval_id"`
	ApprovedBy    uuid.UUID       `gorm:"type:uuid;not null" json:"approved_by"`
	Notes         string          `gorm:"type:text" json:"notes"`
}
