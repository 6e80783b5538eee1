package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Form types accepted by the approval workflow
const (
	FormHoursMaterials      = "hours_materials"
	FormPayroll             = "payroll"
	FormCalendarAppointment = "calendar_appointment"
)

// Approval status values. APPROVED and DENIED are terminal.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// PendingApproval is a staged submission awaiting an administrator's decision.
// Data holds the JSON form payload, validated against its form type on submission.
type PendingApproval struct {
	Base
	FormType    string         `gorm:"type:varchar(30);not null;index" json:"form_type"`
	SubmittedBy uuid.UUID      `gorm:"type:uuid;not null;index" json:"submitted_by"`
	Submitter   *User          `gorm:"foreignKey:SubmittedBy" json:"submitter,omitempty"`
	Data        datatypes.JSON `gorm:"not null" json:"data"`
	Status      string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ApprovedBy  *uuid.UUID     `gorm:"type:uuid" json:"approved_by"`
	Approver    *User          `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at"`
	Reason      string         `gorm:"type:text" json:"reason"`
}

// Form is the closed set of approval payloads. Each form type has exactly one implementation.
type Form interface {
	FormType() string
	Validate() error
}

// LineItem is one billed line of an hours & materials submission
type LineItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// Total is quantity × rate
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.Rate)
}

// HoursMaterialsForm bills a customer for labour and materials
type HoursMaterialsForm struct {
	CustomerName   string     `json:"customer_name" validate:"required,max=255"`
	CustomerEmail  string     `json:"customer_email" validate:"omitempty,email"`
	JobDescription string     `json:"job_description"`
	WorkDate       string     `json:"work_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems      []LineItem `json:"line_items" validate:"required,min=1,dive"`
}

func (HoursMaterialsForm) FormType() string { return FormHoursMaterials }

func (f HoursMaterialsForm) Validate() error {
	if err := validate.Struct(f); err != nil {
		return err
	}
	for i, line := range f.LineItems {
		if !line.Quantity.IsPositive() {
			return fmt.Errorf("line_items[%d]: quantity must be positive", i)
		}
		if line.Rate.IsNegative() {
			return fmt.Errorf("line_items[%d]: rate must not be negative", i)
		}
	}
	return nil
}

// Subtotal sums every line total
func (f HoursMaterialsForm) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range f.LineItems {
		subtotal = subtotal.Add(line.Total())
	}
	return subtotal
}

// PayrollForm carries one employee's hours for a week
type PayrollForm struct {
	EmployeeID    string          `json:"employee_id" validate:"required,uuid"`
	WeekStart     string          `json:"week_start" validate:"required,datetime=2006-01-02"`
	RegularHours  decimal.Decimal `json:"regular_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	OvertimeRate  decimal.Decimal `json:"overtime_rate"` // defaults to 1.5 × hourly_rate
	Notes         string          `json:"notes"`
}

func (PayrollForm) FormType() string { return FormPayroll }

func (f PayrollForm) Validate() error {
	if err := validate.Struct(f); err != nil {
		return err
	}
	if f.RegularHours.IsNegative() || f.OvertimeHours.IsNegative() {
		return errors.New("hours must not be negative")
	}
	if !f.HourlyRate.IsPositive() {
		return errors.New("hourly_rate must be positive")
	}
	if f.OvertimeRate.IsNegative() {
		return errors.New("overtime_rate must not be negative")
	}
	return nil
}

// EffectiveOvertimeRate falls back to time-and-a-half
func (f PayrollForm) EffectiveOvertimeRate() decimal.Decimal {
	if f.OvertimeRate.IsZero() {
		return f.HourlyRate.Mul(decimal.NewFromFloat(1.5))
	}
	return f.OvertimeRate
}

// GrossPay is regular + overtime pay
func (f PayrollForm) GrossPay() decimal.Decimal {
	regular := f.RegularHours.Mul(f.HourlyRate)
	overtime := f.OvertimeHours.Mul(f.EffectiveOvertimeRate())
	return regular.Add(overtime)
}

// CalendarAppointmentForm requests approval of a change to a calendar event
type CalendarAppointmentForm struct {
	EventID       string `json:"event_id" validate:"required"`
	CalendarOwner string `json:"calendar_owner" validate:"required,uuid"` // user whose calendar holds the event
	Title         string `json:"title"`
	Start         string `json:"start" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	End           string `json:"end" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (CalendarAppointmentForm) FormType() string { return FormCalendarAppointment }

func (f CalendarAppointmentForm) Validate() error {
	return validate.Struct(f)
}

var validate = validator.New()

// ErrUnknownFormType is returned when a payload names a form type outside the closed set
var ErrUnknownFormType = errors.New("unknown form type")

// DecodeForm parses and validates a raw payload for the given form type.
func DecodeForm(formType string, raw []byte) (Form, error) {
	var form Form
	switch formType {
	case FormHoursMaterials:
		var f HoursMaterialsForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", formType, err)
		}
		form = f
	case FormPayroll:
		var f PayrollForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", formType, err)
		}
		form = f
	case FormCalendarAppointment:
		var f CalendarAppointmentForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", formType, err)
		}
		form = f
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormType, formType)
	}

	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", formType, err)
	}
	return form, nil
}

// Form decodes the stored payload of this approval
func (a *PendingApproval) Form() (Form, error) {
	return DecodeForm(a.FormType, a.Data)
}
