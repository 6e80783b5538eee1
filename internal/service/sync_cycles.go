package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"backoffice/internal/logger"
	"backoffice/internal/model"
)

// SyncDatabaseConnections names the auto-sync cycle over registered databases
const SyncDatabaseConnections = "database_connections"

// SyncCycles are the per-provider jobs the scheduler runs. Each walks every
// active integration; one integration failing does not skip the others.
type SyncCycles struct {
	integrations IntegrationService
	accounting   AccountingService
	calendar     CalendarService
	connections  DatabaseConnectionService
	publisher    Publisher
}

func NewSyncCycles(integrations IntegrationService, accounting AccountingService, calendar CalendarService, connections DatabaseConnectionService, publisher Publisher) *SyncCycles {
	return &SyncCycles{
		integrations: integrations,
		accounting:   accounting,
		calendar:     calendar,
		connections:  connections,
		publisher:    publisherOrNop(publisher),
	}
}

func (c *SyncCycles) QuickBooks(ctx context.Context) error {
	return c.eachIntegration(ctx, model.ProviderQuickBooks, func(ctx context.Context, userID string, integration *model.Integration) error {
		result, err := c.accounting.FullSync(ctx, integration.UserID)
		if err != nil {
			return err
		}
		c.publisher.Publish(EventSyncCompleted, map[string]interface{}{
			"provider": model.ProviderQuickBooks,
			"user_id":  userID,
			"result":   result,
		})
		return nil
	})
}

func (c *SyncCycles) GoogleCalendar(ctx context.Context) error {
	return c.eachIntegration(ctx, model.ProviderGoogleCalendar, func(ctx context.Context, userID string, integration *model.Integration) error {
		shifts, err := c.calendar.SyncEmployeeSchedules(ctx, integration.UserID)
		if err != nil {
			return err
		}
		c.publisher.Publish(EventSyncCompleted, map[string]interface{}{
			"provider": model.ProviderGoogleCalendar,
			"user_id":  userID,
			"events":   len(shifts),
		})
		return nil
	})
}

func (c *SyncCycles) DatabaseConnections(ctx context.Context) error {
	ran, err := c.connections.SyncDue(ctx)
	if ran > 0 {
		logger.FromContext(ctx).Info("Database connections synced", slog.Int("count", ran))
	}
	return err
}

func (c *SyncCycles) eachIntegration(ctx context.Context, provider string, fn func(context.Context, string, *model.Integration) error) error {
	integrations, err := c.integrations.ListActive(ctx, provider)
	if err != nil {
		return fmt.Errorf("failed to list %s integrations: %w", provider, err)
	}

	var errs []error
	for i := range integrations {
		integration := &integrations[i]
		userID := integration.UserID.String()
		if err := fn(ctx, userID, integration); err != nil {
			logger.FromContext(ctx).Warn("Integration sync failed",
				slog.String("provider", provider),
				slog.String("user_id", userID),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}
