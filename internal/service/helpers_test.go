package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"backoffice/internal/concurrency"
	"backoffice/internal/model"
	"backoffice/internal/notify"
	"backoffice/internal/quickbooks"
	"backoffice/internal/repository"
	"backoffice/internal/testing/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// fakeOAuth completes every authorization-code exchange with a static token
type fakeOAuth struct {
	exchangeErr error
}

func (f *fakeOAuth) Configured() bool { return true }

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeOAuth) TokenSource(_ context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(tok)
}

// fakeQuickBooks serves a fixed company
type fakeQuickBooks struct {
	mu        sync.Mutex
	customers []quickbooks.Customer
	items     []quickbooks.Item
	invoices  []quickbooks.Invoice
	failOn    string // entity name whose query fails
	reads     []string
}

func (f *fakeQuickBooks) fail(entity string) error {
	if f.failOn == entity {
		return fmt.Errorf("query %s: boom", entity)
	}
	return nil
}

func (f *fakeQuickBooks) QueryCustomers(context.Context, oauth2.TokenSource, string) ([]quickbooks.Customer, error) {
	return f.customers, f.fail(quickbooks.EntityCustomer)
}

func (f *fakeQuickBooks) QueryItems(context.Context, oauth2.TokenSource, string) ([]quickbooks.Item, error) {
	return f.items, f.fail(quickbooks.EntityItem)
}

func (f *fakeQuickBooks) QueryInvoices(context.Context, oauth2.TokenSource, string) ([]quickbooks.Invoice, error) {
	return f.invoices, f.fail(quickbooks.EntityInvoice)
}

func (f *fakeQuickBooks) read(entity, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, entity+":"+id)
}

func (f *fakeQuickBooks) GetCustomer(_ context.Context, _ oauth2.TokenSource, _, id string) (*quickbooks.Customer, error) {
	f.read(quickbooks.EntityCustomer, id)
	for i := range f.customers {
		if f.customers[i].ID == id {
			return &f.customers[i], nil
		}
	}
	return nil, fmt.Errorf("customer %s not found", id)
}

func (f *fakeQuickBooks) GetItem(_ context.Context, _ oauth2.TokenSource, _, id string) (*quickbooks.Item, error) {
	f.read(quickbooks.EntityItem, id)
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, fmt.Errorf("item %s not found", id)
}

func (f *fakeQuickBooks) GetInvoice(_ context.Context, _ oauth2.TokenSource, _, id string) (*quickbooks.Invoice, error) {
	f.read(quickbooks.EntityInvoice, id)
	for i := range f.invoices {
		if f.invoices[i].ID == id {
			return &f.invoices[i], nil
		}
	}
	return nil, fmt.Errorf("invoice %s not found", id)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockAppointments struct {
	mock.Mock
}

func (m *mockAppointments) MarkEventApproved(ctx context.Context, ownerID uuid.UUID, eventID string) error {
	args := m.Called(ctx, ownerID, eventID)
	return args.Error(0)
}

type mockClockCalendar struct {
	mock.Mock
}

func (m *mockClockCalendar) SetCredentials(ctx context.Context, userID uuid.UUID) bool {
	return m.Called(ctx, userID).Bool(0)
}

func (m *mockClockCalendar) CreateClockEvent(ctx context.Context, details ClockEventDetails) (string, error) {
	args := m.Called(ctx, details)
	return args.String(0), args.Error(1)
}

func (m *mockClockCalendar) UpdateClockEvent(ctx context.Context, eventID string, details ClockEventDetails) error {
	args := m.Called(ctx, eventID, details)
	return args.Error(0)
}

type published struct {
	eventType string
	data      interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{eventType, data})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

// env wires the repositories against a fresh in-memory database
type env struct {
	db           *gorm.DB
	tx           repository.TransactionManager
	users        repository.UserRepository
	integrations repository.IntegrationRepository
	approvals    repository.ApprovalRepository
	activity     repository.ActivityRepository
	customers    repository.CustomerRepository
	items        repository.ItemRepository
	invoices     repository.InvoiceRepository
	payrolls     repository.PayrollRepository
	clocks       repository.ClockRepository
	connections  repository.DatabaseConnectionRepository
	webhooks     repository.WebhookEventRepository
	activitySvc  ActivityService
	publisher    *recordingPublisher
	locks        *concurrency.LockManager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.New(t)
	activity := repository.NewActivityRepository(db)
	return &env{
		db:           db,
		tx:           repository.NewTransactionManager(db),
		users:        repository.NewUserRepository(db),
		integrations: repository.NewIntegrationRepository(db),
		approvals:    repository.NewApprovalRepository(db),
		activity:     activity,
		customers:    repository.NewCustomerRepository(db),
		items:        repository.NewItemRepository(db),
		invoices:     repository.NewInvoiceRepository(db),
		payrolls:     repository.NewPayrollRepository(db),
		clocks:       repository.NewClockRepository(db),
		connections:  repository.NewDatabaseConnectionRepository(db),
		webhooks:     repository.NewWebhookEventRepository(db),
		activitySvc:  NewActivityService(activity),
		publisher:    &recordingPublisher{},
		locks:        concurrency.NewLockManager(),
	}
}

func (e *env) integrationService(providers map[string]OAuthProvider) IntegrationService {
	if providers == nil {
		providers = map[string]OAuthProvider{
			model.ProviderQuickBooks:     &fakeOAuth{},
			model.ProviderGoogleCalendar: &fakeOAuth{},
		}
	}
	return NewIntegrationService(e.integrations, e.activitySvc, providers)
}

func (e *env) createUser(t *testing.T, name, role string) *model.User {
	t.Helper()
	user := &model.User{
		Username: name,
		Email:    name + "@example.com",
		Password: "x",
		Role:     role,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// connect stores an active integration directly
func (e *env) connect(t *testing.T, userID uuid.UUID, provider, realmID string) *model.Integration {
	t.Helper()
	integration := &model.Integration{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  "access",
		RefreshToken: "refresh",
		IsActive:     true,
	}
	if realmID != "" {
		integration.RealmID = &realmID
	}
	require.NoError(t, e.integrations.Save(context.Background(), integration))
	return integration
}

func (e *env) count(t *testing.T, value interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(value).Count(&n).Error)
	return n
}

func (e *env) activityTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	require.NoError(t, e.db.Model(&model.ActivityLog{}).Order("created_at").Pluck("type", &types).Error)
	return types
}
