package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is a billable client. QBID links it to the accounting provider once synced.
type Customer struct {
	Base
	OwnerID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_customer_owner_name" json:"owner_id"`
	QBID        *string         `gorm:"column:qb_id;type:varchar(64);index" json:"qb_id"`
	DisplayName string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_customer_owner_name" json:"display_name"`
	Email       string          `gorm:"type:varchar(255)" json:"email"`
	Phone       string          `gorm:"type:varchar(50)" json:"phone"`
	Balance     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"balance"`
	Active      bool            `gorm:"not null;default:true" json:"active"`
}

// Item is a product or service billable on invoices
type Item struct {
	Base
	OwnerID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	QBID        *string         `gorm:"column:qb_id;type:varchar(64);index" json:"qb_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Type        string          `gorm:"type:varchar(30)" json:"type"` // Service, Inventory, NonInventory
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"unit_price"`
	Active      bool            `gorm:"not null;default:true" json:"active"`
}
