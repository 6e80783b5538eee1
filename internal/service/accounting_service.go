package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/quickbooks"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// QuickBooksAPI is the subset of the accounting client the sync needs
type QuickBooksAPI interface {
	QueryCustomers(ctx context.Context, ts oauth2.TokenSource, realmID string) ([]quickbooks.Customer, error)
	QueryItems(ctx context.Context, ts oauth2.TokenSource, realmID string) ([]quickbooks.Item, error)
	QueryInvoices(ctx context.Context, ts oauth2.TokenSource, realmID string) ([]quickbooks.Invoice, error)
	GetCustomer(ctx context.Context, ts oauth2.TokenSource, realmID, id string) (*quickbooks.Customer, error)
	GetItem(ctx context.Context, ts oauth2.TokenSource, realmID, id string) (*quickbooks.Item, error)
	GetInvoice(ctx context.Context, ts oauth2.TokenSource, realmID, id string) (*quickbooks.Invoice, error)
}

// --- DTOs ---

type SyncResult struct {
	Customers int       `json:"customers"`
	Items     int       `json:"items"`
	Invoices  int       `json:"invoices"`
	SyncedAt  time.Time `json:"synced_at"`
}

type WebhookResult struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// --- Interface ---

type AccountingService interface {
	SyncCustomers(ctx context.Context, userID uuid.UUID) (int, error)
	SyncItems(ctx context.Context, userID uuid.UUID) (int, error)
	SyncInvoices(ctx context.Context, userID uuid.UUID) (int, error)
	// FullSync runs customers, items and invoices in order and stops at the first failure
	FullSync(ctx context.Context, userID uuid.UUID) (SyncResult, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
	ProcessWebhook(ctx context.Context, payload []byte) (WebhookResult, error)
}

type AccountingConfig struct {
	DefaultRealmID  string
	WebhookVerifier string
}

type accountingService struct {
	cfg          AccountingConfig
	api          QuickBooksAPI
	integrations IntegrationService
	customers    repository.CustomerRepository
	items        repository.ItemRepository
	invoices     repository.InvoiceRepository
	webhooks     repository.WebhookEventRepository
	activity     ActivityService
	txManager    repository.TransactionManager
	now          func() time.Time
}

func NewAccountingService(
	cfg AccountingConfig,
	api QuickBooksAPI,
	integrations IntegrationService,
	customers repository.CustomerRepository,
	items repository.ItemRepository,
	invoices repository.InvoiceRepository,
	webhooks repository.WebhookEventRepository,
	activity ActivityService,
	txManager repository.TransactionManager,
) AccountingService {
	return &accountingService{
		cfg:          cfg,
		api:          api,
		integrations: integrations,
		customers:    customers,
		items:        items,
		invoices:     invoices,
		webhooks:     webhooks,
		activity:     activity,
		txManager:    txManager,
		now:          time.Now,
	}
}

// session is a connected company ready for API calls
type session struct {
	integration *model.Integration
	owner       uuid.UUID
	realmID     string
	ts          oauth2.TokenSource
}

func (s *accountingService) connect(ctx context.Context, integration *model.Integration) (*session, error) {
	realmID := s.cfg.DefaultRealmID
	if integration.RealmID != nil && *integration.RealmID != "" {
		realmID = *integration.RealmID
	}
	if realmID == "" {
		return nil, fmt.Errorf("quickbooks company id unknown: %w", domain.ErrIntegrationNotConnected)
	}

	ts, err := s.integrations.TokenSource(ctx, integration)
	if err != nil {
		return nil, err
	}
	return &session{integration: integration, owner: integration.UserID, realmID: realmID, ts: ts}, nil
}

func (s *accountingService) sessionFor(ctx context.Context, userID uuid.UUID) (*session, error) {
	integration, err := s.integrations.Active(ctx, userID, model.ProviderQuickBooks)
	if err != nil {
		return nil, err
	}
	return s.connect(ctx, integration)
}

func (s *accountingService) SyncCustomers(ctx context.Context, userID uuid.UUID) (int, error) {
	sess, err := s.sessionFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.syncCustomers(ctx, sess)
}

func (s *accountingService) SyncItems(ctx context.Context, userID uuid.UUID) (int, error) {
	sess, err := s.sessionFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.syncItems(ctx, sess)
}

func (s *accountingService) SyncInvoices(ctx context.Context, userID uuid.UUID) (int, error) {
	sess, err := s.sessionFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.syncInvoices(ctx, sess)
}

func (s *accountingService) FullSync(ctx context.Context, userID uuid.UUID) (SyncResult, error) {
	var result SyncResult

	sess, err := s.sessionFor(ctx, userID)
	if err != nil {
		return result, err
	}

	start := s.now()
	log := logger.FromContext(ctx).With(slog.String("user_id", userID.String()), slog.String("realm_id", sess.realmID))

	if result.Customers, err = s.syncCustomers(ctx, sess); err != nil {
		return result, fmt.Errorf("customer sync failed: %w", err)
	}
	if result.Items, err = s.syncItems(ctx, sess); err != nil {
		return result, fmt.Errorf("item sync failed: %w", err)
	}
	if result.Invoices, err = s.syncInvoices(ctx, sess); err != nil {
		return result, fmt.Errorf("invoice sync failed: %w", err)
	}

	result.SyncedAt = s.now()
	if err := s.integrations.MarkSynced(ctx, sess.integration, result.SyncedAt); err != nil {
		return result, err
	}
	metrics.SyncDuration.WithLabelValues(model.ProviderQuickBooks).Observe(result.SyncedAt.Sub(start).Seconds())

	if err := s.activity.Record(ctx, userRef(userID), model.ActivitySync, "QuickBooks full sync", map[string]interface{}{
		"provider":  model.ProviderQuickBooks,
		"customers": result.Customers,
		"items":     result.Items,
		"invoices":  result.Invoices,
	}); err != nil {
		log.Warn("Failed to record activity", slog.Any("error", err))
	}

	log.Info("QuickBooks sync completed",
		slog.Int("customers", result.Customers),
		slog.Int("items", result.Items),
		slog.Int("invoices", result.Invoices))
	return result, nil
}

func (s *accountingService) syncCustomers(ctx context.Context, sess *session) (int, error) {
	remote, err := s.api.QueryCustomers(ctx, sess.ts, sess.realmID)
	if err != nil {
		return 0, err
	}
	for i := range remote {
		if _, err := s.upsertCustomer(ctx, sess.owner, &remote[i]); err != nil {
			return 0, err
		}
	}
	return len(remote), nil
}

func (s *accountingService) syncItems(ctx context.Context, sess *session) (int, error) {
	remote, err := s.api.QueryItems(ctx, sess.ts, sess.realmID)
	if err != nil {
		return 0, err
	}
	for i := range remote {
		if err := s.upsertItem(ctx, sess.owner, &remote[i]); err != nil {
			return 0, err
		}
	}
	return len(remote), nil
}

func (s *accountingService) syncInvoices(ctx context.Context, sess *session) (int, error) {
	remote, err := s.api.QueryInvoices(ctx, sess.ts, sess.realmID)
	if err != nil {
		return 0, err
	}
	for i := range remote {
		if err := s.upsertInvoice(ctx, sess, &remote[i]); err != nil {
			return 0, err
		}
	}
	return len(remote), nil
}

// upsertCustomer matches by QuickBooks id first, then links an unsynced local customer of the same name
func (s *accountingService) upsertCustomer(ctx context.Context, owner uuid.UUID, qc *quickbooks.Customer) (*model.Customer, error) {
	customer, err := s.customers.FindByQBID(ctx, owner, qc.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		customer, err = s.customers.FindByName(ctx, owner, qc.DisplayName)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			customer, err = &model.Customer{OwnerID: owner}, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %s: %w", qc.ID, err)
	}

	qbID := qc.ID
	customer.QBID = &qbID
	customer.DisplayName = qc.DisplayName
	customer.Balance = qc.Balance
	customer.Active = qc.Active
	if qc.PrimaryEmailAddr != nil {
		customer.Email = qc.PrimaryEmailAddr.Address
	}
	if qc.PrimaryPhone != nil {
		customer.Phone = qc.PrimaryPhone.FreeFormNumber
	}

	if err := s.customers.Save(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to save customer %s: %w", qc.ID, err)
	}
	return customer, nil
}

func (s *accountingService) upsertItem(ctx context.Context, owner uuid.UUID, qi *quickbooks.Item) error {
	item, err := s.items.FindByQBID(ctx, owner, qi.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		item, err = &model.Item{OwnerID: owner}, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", qi.ID, err)
	}

	qbID := qi.ID
	item.QBID = &qbID
	item.Name = qi.Name
	item.Description = qi.Description
	item.Type = qi.Type
	item.UnitPrice = qi.UnitPrice
	item.Active = qi.Active

	if err := s.items.Save(ctx, item); err != nil {
		return fmt.Errorf("failed to save item %s: %w", qi.ID, err)
	}
	return nil
}

func (s *accountingService) upsertInvoice(ctx context.Context, sess *session, qi *quickbooks.Invoice) error {
	customer, err := s.customers.FindByQBID(ctx, sess.owner, qi.CustomerRef.Value)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Referenced customer was created after the customer pass
		var qc *quickbooks.Customer
		if qc, err = s.api.GetCustomer(ctx, sess.ts, sess.realmID, qi.CustomerRef.Value); err != nil {
			return err
		}
		customer, err = s.upsertCustomer(ctx, sess.owner, qc)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve customer for invoice %s: %w", qi.ID, err)
	}

	lines := make([]model.InvoiceItem, 0, len(qi.Line))
	subtotal := decimal.Zero
	for _, line := range qi.Line {
		if line.SalesItemLineDetail == nil {
			continue
		}
		detail := line.SalesItemLineDetail
		entry := model.InvoiceItem{
			Description: line.Description,
			Quantity:    detail.Qty,
			Rate:        detail.UnitPrice,
			Total:       line.Amount,
		}
		if detail.ItemRef != nil {
			if item, err := s.items.FindByQBID(ctx, sess.owner, detail.ItemRef.Value); err == nil {
				entry.ItemID = &item.ID
			}
			if entry.Description == "" {
				entry.Description = detail.ItemRef.Name
			}
		}
		subtotal = subtotal.Add(line.Amount)
		lines = append(lines, entry)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoices.FindByQBID(txCtx, sess.owner, qi.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			invoice, err = &model.Invoice{
				OwnerID:   sess.owner,
				InvoiceNo: fmt.Sprintf("QB-%s-%s", sess.owner.String()[:8], qi.ID),
				Source:    model.InvoiceSourceQuickBooks,
			}, nil
		}
		if err != nil {
			return fmt.Errorf("failed to load invoice %s: %w", qi.ID, err)
		}

		qbID := qi.ID
		invoice.QBID = &qbID
		invoice.CustomerID = customer.ID
		invoice.Subtotal = subtotal
		invoice.Total = qi.TotalAmt
		invoice.Balance = qi.Balance
		invoice.Note = qi.DocNumber
		invoice.Status = model.InvoiceStatusOpen
		if qi.Balance.IsZero() && qi.TotalAmt.IsPositive() {
			invoice.Status = model.InvoiceStatusPaid
		}
		invoice.DueDate = nil
		if due, err := time.Parse("2006-01-02", qi.DueDate); err == nil {
			invoice.DueDate = &due
		}
		invoice.Items = nil

		if err := s.invoices.Save(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to save invoice %s: %w", qi.ID, err)
		}
		return s.invoices.ReplaceItems(txCtx, invoice.ID, lines)
	})
}

func (s *accountingService) VerifyWebhookSignature(payload []byte, signature string) bool {
	return quickbooks.VerifySignature(s.cfg.WebhookVerifier, payload, signature)
}

// ProcessWebhook applies each entity change once. Changes for entities outside
// Customer, Item and Invoice are recorded and skipped. Per-entity failures are
// recorded on the event row and do not abort the rest of the notification.
func (s *accountingService) ProcessWebhook(ctx context.Context, payload []byte) (WebhookResult, error) {
	var result WebhookResult

	notification, err := quickbooks.ParseNotification(payload)
	if err != nil {
		return result, fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	}

	log := logger.FromContext(ctx)
	for _, ev := range notification.EventNotifications {
		integrations, err := s.realmIntegrations(ctx, ev.RealmID)
		if err != nil {
			return result, fmt.Errorf("failed to load integrations for realm %s: %w", ev.RealmID, err)
		}

		for _, change := range ev.DataChangeEvent.Entities {
			record := &model.WebhookEvent{
				RealmID:     ev.RealmID,
				EntityName:  change.Name,
				EntityID:    change.ID,
				Operation:   change.Operation,
				LastUpdated: change.LastUpdated.UTC(),
			}
			claimed, err := s.webhooks.Claim(ctx, record)
			if err != nil {
				return result, fmt.Errorf("failed to record webhook event: %w", err)
			}
			if !claimed {
				result.Duplicates++
				metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
				continue
			}

			procErr := ""
			outcome := model.WebhookApplied
			switch {
			case !supportedEntity(change.Name):
				procErr = "unsupported entity"
				outcome = model.WebhookSkipped
				result.Skipped++
			case len(integrations) == 0:
				procErr = "no active integration for realm"
				outcome = model.WebhookSkipped
				result.Skipped++
			default:
				if err := s.applyChange(ctx, integrations, change); err != nil {
					procErr = err.Error()
					outcome = model.WebhookFailed
					result.Failed++
					log.Warn("Webhook change failed",
						slog.String("realm_id", ev.RealmID),
						slog.String("entity", change.Name),
						slog.String("entity_id", change.ID),
						slog.Any("error", err))
				} else {
					result.Processed++
				}
			}
			metrics.WebhookEventsTotal.WithLabelValues(webhookMetricResult[outcome]).Inc()

			if err := s.webhooks.MarkProcessed(ctx, record.ID, s.now(), outcome, procErr); err != nil {
				return result, fmt.Errorf("failed to mark webhook event: %w", err)
			}
		}
	}

	if result.Processed > 0 || result.Failed > 0 {
		if err := s.activity.Record(ctx, nil, model.ActivityWebhook, "QuickBooks webhook", map[string]interface{}{
			"processed": result.Processed,
			"failed":    result.Failed,
			"skipped":   result.Skipped,
		}); err != nil {
			log.Warn("Failed to record activity", slog.Any("error", err))
		}
	}
	return result, nil
}

var webhookMetricResult = map[string]string{
	model.WebhookApplied: metrics.ResultSuccess,
	model.WebhookSkipped: metrics.ResultSkipped,
	model.WebhookFailed:  metrics.ResultError,
}

// realmIntegrations returns the integrations owning realmID. Integrations with no
// stored realm belong to the configured default company.
func (s *accountingService) realmIntegrations(ctx context.Context, realmID string) ([]model.Integration, error) {
	integrations, err := s.integrations.ListActiveByRealm(ctx, realmID)
	if err != nil {
		return nil, err
	}
	if realmID == "" || realmID != s.cfg.DefaultRealmID {
		return integrations, nil
	}

	active, err := s.integrations.ListActive(ctx, model.ProviderQuickBooks)
	if err != nil {
		return nil, err
	}
	for _, integration := range active {
		if integration.RealmID == nil || *integration.RealmID == "" {
			integrations = append(integrations, integration)
		}
	}
	return integrations, nil
}

func supportedEntity(name string) bool {
	switch name {
	case quickbooks.EntityCustomer, quickbooks.EntityItem, quickbooks.EntityInvoice:
		return true
	}
	return false
}

func (s *accountingService) applyChange(ctx context.Context, integrations []model.Integration, change quickbooks.EntityChange) error {
	var errs []error
	for i := range integrations {
		sess, err := s.connect(ctx, &integrations[i])
		if err == nil {
			err = s.applyTo(ctx, sess, change)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", integrations[i].UserID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *accountingService) applyTo(ctx context.Context, sess *session, change quickbooks.EntityChange) error {
	if change.Operation == quickbooks.OperationDelete {
		return s.deactivate(ctx, sess.owner, change)
	}

	switch change.Name {
	case quickbooks.EntityCustomer:
		qc, err := s.api.GetCustomer(ctx, sess.ts, sess.realmID, change.ID)
		if err != nil {
			return err
		}
		_, err = s.upsertCustomer(ctx, sess.owner, qc)
		return err
	case quickbooks.EntityItem:
		qi, err := s.api.GetItem(ctx, sess.ts, sess.realmID, change.ID)
		if err != nil {
			return err
		}
		return s.upsertItem(ctx, sess.owner, qi)
	case quickbooks.EntityInvoice:
		inv, err := s.api.GetInvoice(ctx, sess.ts, sess.realmID, change.ID)
		if err != nil {
			return err
		}
		return s.upsertInvoice(ctx, sess, inv)
	}
	return nil
}

// deactivate keeps the local row for history and marks it inactive
func (s *accountingService) deactivate(ctx context.Context, owner uuid.UUID, change quickbooks.EntityChange) error {
	switch change.Name {
	case quickbooks.EntityCustomer:
		customer, err := s.customers.FindByQBID(ctx, owner, change.ID)
		if err != nil {
			return ignoreMissing(err)
		}
		customer.Active = false
		return s.customers.Save(ctx, customer)
	case quickbooks.EntityItem:
		item, err := s.items.FindByQBID(ctx, owner, change.ID)
		if err != nil {
			return ignoreMissing(err)
		}
		item.Active = false
		return s.items.Save(ctx, item)
	case quickbooks.EntityInvoice:
		invoice, err := s.invoices.FindByQBID(ctx, owner, change.ID)
		if err != nil {
			return ignoreMissing(err)
		}
		invoice.Status = model.InvoiceStatusVoided
		invoice.Items = nil
		return s.invoices.Save(ctx, invoice)
	}
	return nil
}

func ignoreMissing(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
