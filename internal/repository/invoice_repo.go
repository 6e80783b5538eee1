package repository

import (
	"context"

	"backoffice/internal/model"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceListFilter narrows List. A zero OwnerID lists every owner.
type InvoiceListFilter struct {
	OwnerID uuid.UUID
	Status  string
	Source  string
	Page    int
	Limit   int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByQBID(ctx context.Context, ownerID uuid.UUID, qbID string) (*model.Invoice, error)
	FindByApproval(ctx context.Context, approvalID uuid.UUID) (*model.Invoice, error)
	Save(ctx context.Context, invoice *model.Invoice) error
	ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	NextNumber(ctx context.Context, prefix string) (int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create inserts the invoice together with its Items
func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("Items").Preload("Customer").First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByQBID(ctx context.Context, ownerID uuid.UUID, qbID string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "owner_id = ? AND qb_id = ?", ownerID, qbID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByApproval(ctx context.Context, approvalID uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("Items").First(&invoice, "approval_id = ?", approvalID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// Save updates the invoice header only; use ReplaceItems for lines.
func (r *invoiceRepository) Save(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Items", "Customer").Save(invoice).Error
}

func (r *invoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("invoice_id = ?", invoiceID).Delete(&model.InvoiceItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
	}
	return db.Create(&items).Error
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	applyFilters := func(q *gorm.DB) *gorm.DB {
		if filter.OwnerID != uuid.Nil {
			q = q.Where("owner_id = ?", filter.OwnerID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Source != "" {
			q = q.Where("source = ?", filter.Source)
		}
		return q
	}

	if err := applyFilters(db.Model(&model.Invoice{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := applyFilters(db.Preload("Customer")).
		Order("created_at DESC").
		Scopes(pagination.Paginate(filter.Page, filter.Limit)).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// NextNumber returns the next sequence for invoice numbers sharing prefix.
// On Postgres an advisory lock serializes concurrent generators inside the caller's transaction.
func (r *invoiceRepository) NextNumber(ctx context.Context, prefix string) (int64, error) {
	db := GetDB(ctx, r.db)
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return 0, err
		}
	}

	var count int64
	if err := db.Model(&model.Invoice{}).Where("invoice_no LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count + 1, nil
}
