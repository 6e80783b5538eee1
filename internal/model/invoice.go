package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice sources
const (
	InvoiceSourceApproval   = "approval"
	InvoiceSourceQuickBooks = "quickbooks"
)

// Invoice statuses
const (
	InvoiceStatusOpen   = "open"
	InvoiceStatusPaid   = "paid"
	InvoiceStatusVoided = "voided"
)

// Invoice is a bill to a customer, either materialized from an approved
// hours & materials submission or pulled from the accounting provider.
type Invoice struct {
	Base
	InvoiceNo  string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	OwnerID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer   *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	QBID       *string         `gorm:"column:qb_id;type:varchar(64);index" json:"qb_id"`
	Source     string          `gorm:"type:varchar(20);not null" json:"source"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	Total      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Balance    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"balance"`
	Status     string          `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	ApprovalID *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"approval_id"` // at most one invoice per approval
	DueDate    *time.Time      `json:"due_date"`
	Note       string          `gorm:"type:text" json:"note"`
	Items      []InvoiceItem   `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

// InvoiceItem is one line of an invoice. Total = Quantity × Rate.
type InvoiceItem struct {
	Base
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ItemID      *uuid.UUID      `gorm:"type:uuid" json:"item_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Rate        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate"`
	Total       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
}
