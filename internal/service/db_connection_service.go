package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const probeTimeout = 5 * time.Second

// --- DTOs ---

type DatabaseConnectionRequest struct {
	Name         string `json:"name" binding:"required,max=255"`
	Host         string `json:"host" binding:"required"`
	Port         int    `json:"port" binding:"omitempty,min=1,max=65535"`
	Database     string `json:"database" binding:"required"`
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password"`
	SSL          bool   `json:"ssl"`
	AutoSync     bool   `json:"auto_sync"`
	SyncInterval int    `json:"sync_interval" binding:"omitempty,min=1"`
}

type ToggleAutoSyncRequest struct {
	Enabled bool `json:"enabled"`
}

// ProbeResult is what a successful connection test learned about the target
type ProbeResult struct {
	LatencyMs     int64  `json:"latency_ms"`
	Tables        int64  `json:"tables"`
	ServerVersion string `json:"server_version"`
}

type ConnectionTestResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Probe   *ProbeResult `json:"probe,omitempty"`
}

// Prober opens a short-lived connection to a registered database
type Prober interface {
	Probe(ctx context.Context, conn *model.DatabaseConnection) (*ProbeResult, error)
}

// --- Interface ---

type DatabaseConnectionService interface {
	List(ctx context.Context) ([]model.DatabaseConnection, error)
	Get(ctx context.Context, id uuid.UUID) (*model.DatabaseConnection, error)
	Create(ctx context.Context, actorID uuid.UUID, req DatabaseConnectionRequest) (*model.DatabaseConnection, error)
	Update(ctx context.Context, actorID, id uuid.UUID, req DatabaseConnectionRequest) (*model.DatabaseConnection, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
	Test(ctx context.Context, id uuid.UUID) (*ConnectionTestResult, error)
	Sync(ctx context.Context, id uuid.UUID) (*ConnectionTestResult, error)
	ToggleAutoSync(ctx context.Context, actorID, id uuid.UUID, enabled bool) (*model.DatabaseConnection, error)
	// SyncDue syncs every auto-sync connection whose interval has elapsed and returns how many ran
	SyncDue(ctx context.Context) (int, error)
}

type databaseConnectionService struct {
	repo     repository.DatabaseConnectionRepository
	prober   Prober
	activity ActivityService
	now      func() time.Time
}

func NewDatabaseConnectionService(repo repository.DatabaseConnectionRepository, prober Prober, activity ActivityService) DatabaseConnectionService {
	if prober == nil {
		prober = PostgresProber{}
	}
	return &databaseConnectionService{repo: repo, prober: prober, activity: activity, now: time.Now}
}

func (s *databaseConnectionService) List(ctx context.Context) ([]model.DatabaseConnection, error) {
	return s.repo.List(ctx)
}

func (s *databaseConnectionService) Get(ctx context.Context, id uuid.UUID) (*model.DatabaseConnection, error) {
	conn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "database connection")
	}
	return conn, nil
}

func applyConnectionRequest(conn *model.DatabaseConnection, req DatabaseConnectionRequest) {
	conn.Name = strings.TrimSpace(req.Name)
	conn.Host = strings.TrimSpace(req.Host)
	conn.Port = req.Port
	if conn.Port == 0 {
		conn.Port = 5432
	}
	conn.Database = req.Database
	conn.Username = req.Username
	if req.Password != "" {
		conn.Password = req.Password
	}
	conn.SSL = req.SSL
	conn.AutoSync = req.AutoSync
	conn.SyncInterval = req.SyncInterval
	if conn.SyncInterval <= 0 {
		conn.SyncInterval = 60
	}
}

func (s *databaseConnectionService) Create(ctx context.Context, actorID uuid.UUID, req DatabaseConnectionRequest) (*model.DatabaseConnection, error) {
	conn := &model.DatabaseConnection{IsActive: true}
	applyConnectionRequest(conn, req)

	if err := s.repo.Create(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	s.record(ctx, actorID, model.ActivityCreateDBConnection, "Added database connection "+conn.Name, conn.ID)
	return conn, nil
}

// Update keeps the stored password when the request leaves it blank
func (s *databaseConnectionService) Update(ctx context.Context, actorID, id uuid.UUID, req DatabaseConnectionRequest) (*model.DatabaseConnection, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyConnectionRequest(conn, req)

	if err := s.repo.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to update database connection: %w", err)
	}
	s.record(ctx, actorID, model.ActivityUpdateDBConnection, "Updated database connection "+conn.Name, conn.ID)
	return conn, nil
}

func (s *databaseConnectionService) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete database connection: %w", err)
	}
	if !found {
		return fmt.Errorf("database connection: %w", domain.ErrNotFound)
	}
	s.record(ctx, actorID, model.ActivityDeleteDBConnection, "Deleted database connection", id)
	return nil
}

// Test probes the connection without touching its sync bookkeeping
func (s *databaseConnectionService) Test(ctx context.Context, id uuid.UUID) (*ConnectionTestResult, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.probe(ctx, conn), nil
}

func (s *databaseConnectionService) probe(ctx context.Context, conn *model.DatabaseConnection) *ConnectionTestResult {
	probe, err := s.prober.Probe(ctx, conn)
	if err != nil {
		return &ConnectionTestResult{Success: false, Message: err.Error()}
	}
	return &ConnectionTestResult{
		Success: true,
		Message: fmt.Sprintf("Connected to %s in %dms", conn.Name, probe.LatencyMs),
		Probe:   probe,
	}
}

// Sync probes the connection and records the outcome as the latest sync
func (s *databaseConnectionService) Sync(ctx context.Context, id uuid.UUID) (*ConnectionTestResult, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, conn)
}

func (s *databaseConnectionService) sync(ctx context.Context, conn *model.DatabaseConnection) (*ConnectionTestResult, error) {
	result := s.probe(ctx, conn)

	status := model.SyncStatusSuccess
	if !result.Success {
		status = model.SyncStatusError
	}
	at := s.now()
	if err := s.repo.RecordSync(ctx, conn.ID, status, at); err != nil {
		return nil, fmt.Errorf("failed to record sync: %w", err)
	}
	conn.LastSyncAt = &at
	conn.LastSyncStatus = status

	if err := s.activity.Record(ctx, nil, model.ActivitySync, "Database connection sync: "+conn.Name, map[string]interface{}{
		"connection_id": conn.ID.String(),
		"status":        status,
	}); err != nil {
		logger.FromContext(ctx).Warn("Failed to record activity", slog.Any("error", err))
	}
	return result, nil
}

func (s *databaseConnectionService) ToggleAutoSync(ctx context.Context, actorID, id uuid.UUID, enabled bool) (*model.DatabaseConnection, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conn.AutoSync = enabled
	if err := s.repo.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to update database connection: %w", err)
	}

	state := "Disabled"
	if enabled {
		state = "Enabled"
	}
	s.record(ctx, actorID, model.ActivityUpdateDBConnection, state+" auto-sync for "+conn.Name, conn.ID)
	return conn, nil
}

func (s *databaseConnectionService) SyncDue(ctx context.Context) (int, error) {
	conns, err := s.repo.ListAutoSync(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list auto-sync connections: %w", err)
	}

	now := s.now()
	ran := 0
	for i := range conns {
		conn := &conns[i]
		interval := time.Duration(conn.SyncInterval) * time.Minute
		if conn.LastSyncAt != nil && now.Sub(*conn.LastSyncAt) < interval {
			continue
		}
		if _, err := s.sync(ctx, conn); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

func (s *databaseConnectionService) record(ctx context.Context, actorID uuid.UUID, activityType, description string, id uuid.UUID) {
	if err := s.activity.Record(ctx, userRef(actorID), activityType, description,
		map[string]interface{}{"connection_id": id.String()}); err != nil {
		logger.FromContext(ctx).Warn("Failed to record activity", slog.Any("error", err))
	}
}

// connectionDSN renders conn as a postgres:// URL so every value is escaped
func connectionDSN(conn *model.DatabaseConnection) string {
	sslMode := "disable"
	if conn.SSL {
		sslMode = "require"
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("connect_timeout", strconv.Itoa(int(probeTimeout.Seconds())))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(conn.Username, conn.Password),
		Host:     net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Path:     "/" + conn.Database,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// PostgresProber opens a pgx-backed GORM connection, pings it and counts user tables
type PostgresProber struct{}

func (PostgresProber) Probe(ctx context.Context, conn *model.DatabaseConnection) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	dsn := connectionDSN(conn)

	start := time.Now()
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	result := &ProbeResult{LatencyMs: time.Since(start).Milliseconds()}

	if err := db.WithContext(ctx).Raw("SELECT version()").Scan(&result.ServerVersion).Error; err != nil {
		return nil, fmt.Errorf("query version: %w", err)
	}
	err = db.WithContext(ctx).
		Raw("SELECT count(*) FROM information_schema.tables WHERE table_schema NOT IN ('pg_catalog', 'information_schema')").
		Scan(&result.Tables).Error
	if err != nil {
		return nil, fmt.Errorf("count tables: %w", err)
	}
	return result, nil
}
