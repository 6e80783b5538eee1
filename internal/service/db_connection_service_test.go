package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, conn *model.DatabaseConnection) (*ProbeResult, error) {
	args := m.Called(ctx, conn)
	result, _ := args.Get(0).(*ProbeResult)
	return result, args.Error(1)
}

func warehouseRequest() DatabaseConnectionRequest {
	return DatabaseConnectionRequest{
		Name:     " Warehouse ",
		Host:     "db.internal",
		Database: "warehouse",
		Username: "reporter",
		Password: "s3cret",
	}
}

func newConnectionService(t *testing.T) (*env, DatabaseConnectionService, *mockProber) {
	t.Helper()
	e := newEnv(t)
	prober := &mockProber{}
	return e, NewDatabaseConnectionService(e.connections, prober, e.activitySvc), prober
}

func TestDatabaseConnectionService_CRUD(t *testing.T) {
	ctx := context.Background()
	e, svc, _ := newConnectionService(t)
	actor := e.createUser(t, "admin", model.RoleAdmin).ID

	conn, err := svc.Create(ctx, actor, warehouseRequest())
	require.NoError(t, err)
	assert.Equal(t, "Warehouse", conn.Name)
	assert.Equal(t, 5432, conn.Port)
	assert.Equal(t, 60, conn.SyncInterval)
	assert.True(t, conn.IsActive)

	update := warehouseRequest()
	update.Password = ""
	update.Port = 6543
	updated, err := svc.Update(ctx, actor, conn.ID, update)
	require.NoError(t, err)
	assert.Equal(t, 6543, updated.Port)
	assert.Equal(t, "s3cret", updated.Password, "blank password keeps the stored one")

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, actor, conn.ID))
	_, err = svc.Get(ctx, conn.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, actor, conn.ID), domain.ErrNotFound)

	assert.Equal(t, []string{
		model.ActivityCreateDBConnection,
		model.ActivityUpdateDBConnection,
		model.ActivityDeleteDBConnection,
	}, e.activityTypes(t))
}

func TestDatabaseConnectionService_TestAndSync(t *testing.T) {
	ctx := context.Background()
	e, svc, prober := newConnectionService(t)
	conn, err := svc.Create(ctx, uuid.Nil, warehouseRequest())
	require.NoError(t, err)

	prober.On("Probe", mock.Anything, mock.Anything).
		Return(&ProbeResult{LatencyMs: 12, Tables: 7, ServerVersion: "PostgreSQL 16"}, nil).Once()
	result, err := svc.Test(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, 7, result.Probe.Tables)

	stored, err := svc.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastSyncAt, "test leaves sync bookkeeping alone")

	prober.On("Probe", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
	result, err = svc.Sync(ctx, conn.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "connection refused")

	stored, err = svc.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSyncAt)
	assert.Equal(t, model.SyncStatusError, stored.LastSyncStatus)

	_, err = svc.Test(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_ = e
}

func TestDatabaseConnectionService_AutoSync(t *testing.T) {
	ctx := context.Background()
	e, svc, prober := newConnectionService(t)
	actor := e.createUser(t, "admin", model.RoleAdmin).ID
	prober.On("Probe", mock.Anything, mock.Anything).Return(&ProbeResult{}, nil)

	conn, err := svc.Create(ctx, actor, warehouseRequest())
	require.NoError(t, err)
	_, err = svc.Create(ctx, actor, DatabaseConnectionRequest{Name: "Archive", Host: "h", Database: "d", Username: "u"})
	require.NoError(t, err)

	ran, err := svc.SyncDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran, "auto-sync is off by default")

	toggled, err := svc.ToggleAutoSync(ctx, actor, conn.ID, true)
	require.NoError(t, err)
	assert.True(t, toggled.AutoSync)

	ran, err = svc.SyncDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	// Interval has not elapsed yet
	ran, err = svc.SyncDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)

	impl := svc.(*databaseConnectionService)
	impl.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	ran, err = svc.SyncDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	_, err = svc.ToggleAutoSync(ctx, actor, conn.ID, false)
	require.NoError(t, err)
	ran, err = svc.SyncDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)
}

func TestConnectionDSN_EscapesValues(t *testing.T) {
	conn := &model.DatabaseConnection{
		Host:     "db.internal",
		Port:     6432,
		Database: "ware house",
		Username: "report@er",
		Password: "correct horse sslmode=disable host=evil",
		SSL:      true,
	}

	cfg, err := pgx.ParseConfig(connectionDSN(conn))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.EqualValues(t, 6432, cfg.Port)
	assert.Equal(t, "ware house", cfg.Database)
	assert.Equal(t, "report@er", cfg.User)
	assert.Equal(t, "correct horse sslmode=disable host=evil", cfg.Password)
	assert.NotNil(t, cfg.TLSConfig)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}
