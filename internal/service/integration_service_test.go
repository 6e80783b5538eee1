package service

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func stateOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestIntegrationService_QuickBooksConnect(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.integrationService(nil)
	user := e.createUser(t, "owner", model.RoleAdmin)

	status, err := svc.Status(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.False(t, status.HasTokens)
	assert.Nil(t, status.RealmID)

	authURL, err := svc.BeginConnect(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)

	integration, err := svc.CompleteConnect(ctx, model.ProviderQuickBooks, CallbackParams{
		State:   stateOf(t, authURL),
		Code:    "abc",
		RealmID: "9130",
	})
	require.NoError(t, err)
	assert.Equal(t, "access-abc", integration.AccessToken)

	status, err = svc.Status(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.True(t, status.HasTokens)
	require.NotNil(t, status.RealmID)
	assert.Equal(t, "9130", *status.RealmID)
	assert.Nil(t, status.LastSyncAt)

	assert.Equal(t, []string{model.ActivityConnectIntegration}, e.activityTypes(t))
}

func TestIntegrationService_CallbackState(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown state", func(t *testing.T) {
		e := newEnv(t)
		svc := e.integrationService(nil)
		_, err := svc.CompleteConnect(ctx, model.ProviderQuickBooks, CallbackParams{State: "forged", Code: "x", RealmID: "1"})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})

	t.Run("state is single use", func(t *testing.T) {
		e := newEnv(t)
		svc := e.integrationService(nil)
		user := e.createUser(t, "owner", model.RoleAdmin)
		authURL, err := svc.BeginConnect(ctx, user.ID, model.ProviderGoogleCalendar)
		require.NoError(t, err)
		params := CallbackParams{State: stateOf(t, authURL), Code: "x"}

		_, err = svc.CompleteConnect(ctx, model.ProviderGoogleCalendar, params)
		require.NoError(t, err)
		_, err = svc.CompleteConnect(ctx, model.ProviderGoogleCalendar, params)
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})

	t.Run("state bound to provider", func(t *testing.T) {
		e := newEnv(t)
		svc := e.integrationService(nil)
		user := e.createUser(t, "owner", model.RoleAdmin)
		authURL, err := svc.BeginConnect(ctx, user.ID, model.ProviderGoogleCalendar)
		require.NoError(t, err)

		_, err = svc.CompleteConnect(ctx, model.ProviderQuickBooks, CallbackParams{State: stateOf(t, authURL), Code: "x", RealmID: "1"})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})

	t.Run("quickbooks requires realm", func(t *testing.T) {
		e := newEnv(t)
		svc := e.integrationService(nil)
		user := e.createUser(t, "owner", model.RoleAdmin)
		authURL, err := svc.BeginConnect(ctx, user.ID, model.ProviderQuickBooks)
		require.NoError(t, err)

		_, err = svc.CompleteConnect(ctx, model.ProviderQuickBooks, CallbackParams{State: stateOf(t, authURL), Code: "x"})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
		assert.Zero(t, e.count(t, &model.Integration{}))
	})

	t.Run("unknown provider", func(t *testing.T) {
		e := newEnv(t)
		svc := e.integrationService(nil)
		_, err := svc.BeginConnect(ctx, e.createUser(t, "owner", model.RoleAdmin).ID, "xero")
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})
}

func TestIntegrationService_Disconnect(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.integrationService(nil)
	user := e.createUser(t, "owner", model.RoleAdmin)

	err := svc.Disconnect(ctx, user.ID, model.ProviderQuickBooks)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	e.connect(t, user.ID, model.ProviderQuickBooks, "9130")
	_, err = svc.Active(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(ctx, user.ID, model.ProviderQuickBooks))

	_, err = svc.Active(ctx, user.ID, model.ProviderQuickBooks)
	assert.ErrorIs(t, err, domain.ErrIntegrationNotConnected)

	// The row survives with its tokens cleared
	stored, err := e.integrations.FindByUserAndProvider(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Empty(t, stored.AccessToken)
	assert.Empty(t, stored.RefreshToken)
}

func TestIntegrationService_ActiveWithoutRow(t *testing.T) {
	e := newEnv(t)
	svc := e.integrationService(nil)
	_, err := svc.Active(context.Background(), e.createUser(t, "owner", model.RoleAdmin).ID, model.ProviderGoogleCalendar)
	assert.ErrorIs(t, err, domain.ErrIntegrationNotConnected)
}

// rotatingOAuth hands out a refreshed token on every TokenSource call
type rotatingOAuth struct {
	fakeOAuth
}

func (r *rotatingOAuth) TokenSource(_ context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  tok.AccessToken + "-rotated",
		RefreshToken: "refresh-rotated",
		Expiry:       time.Now().Add(time.Hour),
	})
}

func TestIntegrationService_TokenSourcePersistsRotation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.integrationService(map[string]OAuthProvider{model.ProviderQuickBooks: &rotatingOAuth{}})
	user := e.createUser(t, "owner", model.RoleAdmin)
	integration := e.connect(t, user.ID, model.ProviderQuickBooks, "9130")

	ts, err := svc.TokenSource(ctx, integration)
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-rotated", tok.AccessToken)

	stored, err := e.integrations.FindByUserAndProvider(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)
	assert.Equal(t, "access-rotated", stored.AccessToken)
	assert.Equal(t, "refresh-rotated", stored.RefreshToken)
	assert.NotNil(t, stored.TokenExpiry)
}

func TestIntegrationService_MarkSynced(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.integrationService(nil)
	user := e.createUser(t, "owner", model.RoleAdmin)
	integration := e.connect(t, user.ID, model.ProviderQuickBooks, "9130")

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkSynced(ctx, integration, at))

	status, err := svc.Status(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)
	require.NotNil(t, status.LastSyncAt)
	assert.True(t, at.Equal(*status.LastSyncAt))
}

func TestIntegrationService_ConcurrentCallbacksShareOneState(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	svc := e.integrationService(nil)
	user := e.createUser(t, "owner", model.RoleAdmin)

	authURL, err := svc.BeginConnect(ctx, user.ID, model.ProviderQuickBooks)
	require.NoError(t, err)
	params := CallbackParams{State: stateOf(t, authURL), Code: "abc", RealmID: "9130"}

	const callers = 8
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.CompleteConnect(ctx, model.ProviderQuickBooks, params); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrValidationFailed)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.Equal(t, []string{model.ActivityConnectIntegration}, e.activityTypes(t))
}
