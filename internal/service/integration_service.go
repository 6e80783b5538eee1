package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	oauthStateTTL  = 10 * time.Minute
	oauthStateSize = 1024
)

// OAuthProvider is the authorization-code surface shared by the provider clients
type OAuthProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// --- DTOs ---

// IntegrationStatus is the connection summary shown by the settings page
type IntegrationStatus struct {
	Provider   string     `json:"provider"`
	Connected  bool       `json:"connected"`
	HasTokens  bool       `json:"hasTokens"`
	RealmID    *string    `json:"realmId"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

// CallbackParams are the query parameters of an OAuth redirect back to the service
type CallbackParams struct {
	State   string
	Code    string
	RealmID string
}

// --- Interface ---

type IntegrationService interface {
	BeginConnect(ctx context.Context, userID uuid.UUID, provider string) (string, error)
	CompleteConnect(ctx context.Context, provider string, params CallbackParams) (*model.Integration, error)
	Status(ctx context.Context, userID uuid.UUID, provider string) (IntegrationStatus, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.Integration, error)
	Disconnect(ctx context.Context, userID uuid.UUID, provider string) error

	// Active returns the user's usable integration or ErrIntegrationNotConnected
	Active(ctx context.Context, userID uuid.UUID, provider string) (*model.Integration, error)
	ListActive(ctx context.Context, provider string) ([]model.Integration, error)
	ListActiveByRealm(ctx context.Context, realmID string) ([]model.Integration, error)
	// TokenSource returns a refreshing token source that persists rotated tokens back to the integration
	TokenSource(ctx context.Context, integration *model.Integration) (oauth2.TokenSource, error)
	MarkSynced(ctx context.Context, integration *model.Integration, at time.Time) error
}

type pendingAuth struct {
	userID   uuid.UUID
	provider string
}

type integrationService struct {
	repo      repository.IntegrationRepository
	activity  ActivityService
	providers map[string]OAuthProvider
	states    *lru.LRU[string, pendingAuth]
}

func NewIntegrationService(repo repository.IntegrationRepository, activity ActivityService, providers map[string]OAuthProvider) IntegrationService {
	return &integrationService{
		repo:      repo,
		activity:  activity,
		providers: providers,
		states:    lru.NewLRU[string, pendingAuth](oauthStateSize, nil, oauthStateTTL),
	}
}

func (s *integrationService) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrValidationFailed, name)
	}
	return p, nil
}

// BeginConnect returns the provider authorization URL bound to a fresh single-use state
func (s *integrationService) BeginConnect(ctx context.Context, userID uuid.UUID, provider string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	if !p.Configured() {
		return "", fmt.Errorf("%w: %s OAuth credentials are not configured", domain.ErrValidationFailed, provider)
	}

	state, err := newState()
	if err != nil {
		return "", err
	}
	s.states.Add(state, pendingAuth{userID: userID, provider: provider})

	return p.AuthCodeURL(state), nil
}

func (s *integrationService) CompleteConnect(ctx context.Context, provider string, params CallbackParams) (*model.Integration, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}

	pending, ok := s.states.Get(params.State)
	if !ok || pending.provider != provider {
		return nil, fmt.Errorf("%w: invalid or expired OAuth state", domain.ErrValidationFailed)
	}
	// Only the callback that removes the state may use it
	if !s.states.Remove(params.State) {
		return nil, fmt.Errorf("%w: OAuth state already used", domain.ErrValidationFailed)
	}

	if params.Code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", domain.ErrValidationFailed)
	}
	if provider == model.ProviderQuickBooks && params.RealmID == "" {
		return nil, fmt.Errorf("%w: missing realmId", domain.ErrValidationFailed)
	}

	tok, err := p.Exchange(ctx, params.Code)
	if err != nil {
		return nil, err
	}

	integration, err := s.repo.FindByUserAndProvider(ctx, pending.userID, provider)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load integration: %w", err)
		}
		integration = &model.Integration{UserID: pending.userID, Provider: provider}
	}

	integration.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		integration.RefreshToken = tok.RefreshToken
	}
	integration.TokenExpiry = expiryOf(tok)
	integration.IsActive = true
	if params.RealmID != "" {
		realm := params.RealmID
		integration.RealmID = &realm
	}

	if err := s.repo.Save(ctx, integration); err != nil {
		return nil, fmt.Errorf("failed to save integration: %w", err)
	}

	if err := s.activity.Record(ctx, userRef(pending.userID), model.ActivityConnectIntegration,
		fmt.Sprintf("Connected %s", provider),
		map[string]interface{}{"provider": provider, "realm_id": params.RealmID}); err != nil {
		logger.FromContext(ctx).Warn("Failed to record activity", slog.Any("error", err))
	}

	return integration, nil
}

func (s *integrationService) Status(ctx context.Context, userID uuid.UUID, provider string) (IntegrationStatus, error) {
	status := IntegrationStatus{Provider: provider}
	if _, err := s.provider(provider); err != nil {
		return status, err
	}

	integration, err := s.repo.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return status, nil
		}
		return status, fmt.Errorf("failed to load integration: %w", err)
	}

	status.HasTokens = integration.AccessToken != ""
	status.Connected = integration.Connected()
	status.RealmID = integration.RealmID
	status.LastSyncAt = integration.LastSyncAt
	return status, nil
}

func (s *integrationService) List(ctx context.Context, userID uuid.UUID) ([]model.Integration, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *integrationService) Disconnect(ctx context.Context, userID uuid.UUID, provider string) error {
	if _, err := s.provider(provider); err != nil {
		return err
	}

	found, err := s.repo.Disconnect(ctx, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to disconnect integration: %w", err)
	}
	if !found {
		return fmt.Errorf("%s integration: %w", provider, domain.ErrNotFound)
	}

	return s.activity.Record(ctx, userRef(userID), model.ActivityDisconnectIntegration,
		fmt.Sprintf("Disconnected %s", provider), map[string]interface{}{"provider": provider})
}

func (s *integrationService) Active(ctx context.Context, userID uuid.UUID, provider string) (*model.Integration, error) {
	integration, err := s.repo.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", provider, domain.ErrIntegrationNotConnected)
		}
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	if !integration.Connected() {
		return nil, fmt.Errorf("%s: %w", provider, domain.ErrIntegrationNotConnected)
	}
	return integration, nil
}

func (s *integrationService) ListActive(ctx context.Context, provider string) ([]model.Integration, error) {
	return s.repo.ListActive(ctx, provider)
}

func (s *integrationService) ListActiveByRealm(ctx context.Context, realmID string) ([]model.Integration, error) {
	return s.repo.ListActiveByRealm(ctx, realmID)
}

func (s *integrationService) TokenSource(ctx context.Context, integration *model.Integration) (oauth2.TokenSource, error) {
	p, err := s.provider(integration.Provider)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
		TokenType:    "Bearer",
	}
	if integration.TokenExpiry != nil {
		tok.Expiry = *integration.TokenExpiry
	}

	return &persistingTokenSource{
		ctx:     ctx,
		base:    p.TokenSource(ctx, tok),
		repo:    s.repo,
		id:      integration.ID,
		current: integration.AccessToken,
	}, nil
}

func (s *integrationService) MarkSynced(ctx context.Context, integration *model.Integration, at time.Time) error {
	if err := s.repo.MarkSynced(ctx, integration.ID, at); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	integration.LastSyncAt = &at
	return nil
}

// persistingTokenSource writes rotated tokens back to the integration row.
// Writes use the construction context so they join any open transaction.
type persistingTokenSource struct {
	ctx  context.Context
	base oauth2.TokenSource
	repo repository.IntegrationRepository
	id   uuid.UUID

	mu      sync.Mutex
	current string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.current {
		if err := p.repo.UpdateTokens(p.ctx, p.id, tok.AccessToken, tok.RefreshToken, expiryOf(tok)); err != nil {
			logger.FromContext(p.ctx).Warn("Failed to persist refreshed token",
				slog.String("integration_id", p.id.String()),
				slog.Any("error", err))
		} else {
			p.current = tok.AccessToken
		}
	}
	return tok, nil
}

func expiryOf(tok *oauth2.Token) *time.Time {
	if tok.Expiry.IsZero() {
		return nil
	}
	expiry := tok.Expiry
	return &expiry
}

func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
