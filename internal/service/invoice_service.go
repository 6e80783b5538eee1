package service

import (
	"context"
	"fmt"

	"backoffice/internal/domain"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type InvoiceFilter struct {
	OwnerID string // empty for every owner
	Status  string
	Source  string
	Page    int
	Limit   int
}

// --- Interface ---

// InvoiceService reads invoices created by approvals and by accounting sync
type InvoiceService interface {
	List(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	GetByApproval(ctx context.Context, approvalID uuid.UUID) (*model.Invoice, error)
}

type invoiceService struct {
	invoices repository.InvoiceRepository
}

func NewInvoiceService(invoices repository.InvoiceRepository) InvoiceService {
	return &invoiceService{invoices: invoices}
}

func (s *invoiceService) List(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, int64, error) {
	switch filter.Status {
	case "", model.InvoiceStatusOpen, model.InvoiceStatusPaid, model.InvoiceStatusVoided:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidationFailed, filter.Status)
	}
	switch filter.Source {
	case "", model.InvoiceSourceApproval, model.InvoiceSourceQuickBooks:
	default:
		return nil, 0, fmt.Errorf("%w: unknown source %q", domain.ErrValidationFailed, filter.Source)
	}

	repoFilter := repository.InvoiceListFilter{
		Status: filter.Status,
		Source: filter.Source,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}
	if filter.OwnerID != "" {
		ownerID, err := parseID(filter.OwnerID, "owner_id")
		if err != nil {
			return nil, 0, err
		}
		repoFilter.OwnerID = ownerID
	}

	invoices, total, err := s.invoices.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	return invoices, total, nil
}

func (s *invoiceService) Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.invoices.FindByIDWithItems(ctx, id)
	if err != nil {
		return nil, notFound(err, "invoice")
	}
	return invoice, nil
}

func (s *invoiceService) GetByApproval(ctx context.Context, approvalID uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.invoices.FindByApproval(ctx, approvalID)
	if err != nil {
		return nil, notFound(err, "invoice for approval")
	}
	return invoice, nil
}
