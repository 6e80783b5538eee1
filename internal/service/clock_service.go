package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backoffice/internal/concurrency"
	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const calendarMirrorTimeout = 10 * time.Second

// ClockCalendar mirrors work sessions to the user's calendar
type ClockCalendar interface {
	SetCredentials(ctx context.Context, userID uuid.UUID) bool
	CreateClockEvent(ctx context.Context, details ClockEventDetails) (string, error)
	UpdateClockEvent(ctx context.Context, eventID string, details ClockEventDetails) error
}

// --- DTOs ---

type ClockInRequest struct {
	CustomerID string `json:"customer_id" binding:"omitempty,uuid"`
	Notes      string `json:"notes"`
}

type ClockOutRequest struct {
	Notes string `json:"notes"`
}

// CalendarMirror reports the outcome of the secondary calendar write. The clock
// entry is committed regardless of it.
type CalendarMirror struct {
	Status  string `json:"status"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ClockResult struct {
	Entry    *model.ClockEntry `json:"entry"`
	Calendar CalendarMirror    `json:"calendar"`
}

type ClockStatus struct {
	ClockedIn bool              `json:"clocked_in"`
	Entry     *model.ClockEntry `json:"entry"`
	Elapsed   string            `json:"elapsed,omitempty"`
}

// --- Interface ---

type ClockService interface {
	ClockIn(ctx context.Context, userID uuid.UUID, req ClockInRequest) (*ClockResult, error)
	ClockOut(ctx context.Context, userID uuid.UUID, req ClockOutRequest) (*ClockResult, error)
	Status(ctx context.Context, userID uuid.UUID) (*ClockStatus, error)
	History(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ClockEntry, int64, error)
}

type clockService struct {
	clocks    repository.ClockRepository
	users     repository.UserRepository
	calendar  ClockCalendar
	activity  ActivityService
	txManager repository.TransactionManager
	locks     *concurrency.LockManager
	publisher Publisher
	now       func() time.Time
}

func NewClockService(
	clocks repository.ClockRepository,
	users repository.UserRepository,
	calendar ClockCalendar,
	activity ActivityService,
	txManager repository.TransactionManager,
	locks *concurrency.LockManager,
	publisher Publisher,
) ClockService {
	return &clockService{
		clocks:    clocks,
		users:     users,
		calendar:  calendar,
		activity:  activity,
		txManager: txManager,
		locks:     locks,
		publisher: publisherOrNop(publisher),
		now:       time.Now,
	}
}

func lockKey(userID uuid.UUID) string {
	return "clock:" + userID.String()
}

func (s *clockService) ClockIn(ctx context.Context, userID uuid.UUID, req ClockInRequest) (*ClockResult, error) {
	entry := &model.ClockEntry{
		UserID:  userID,
		ClockIn: s.now().UTC(),
		Notes:   req.Notes,
	}
	if req.CustomerID != "" {
		customerID, err := parseID(req.CustomerID, "customer_id")
		if err != nil {
			return nil, err
		}
		entry.CustomerID = &customerID
	}

	err := s.locks.WithLock(lockKey(userID), func() error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if _, err := s.clocks.FindActive(txCtx, userID); err == nil {
				return fmt.Errorf("already clocked in: %w", domain.ErrConflict)
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to check active entry: %w", err)
			}

			if err := s.clocks.Create(txCtx, entry); err != nil {
				// Another instance won the race; the partial unique index rejected this one
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("already clocked in: %w", domain.ErrConflict)
				}
				return fmt.Errorf("failed to create clock entry: %w", err)
			}

			return s.activity.Record(txCtx, userRef(userID), model.ActivityClockIn, "Clocked in",
				map[string]interface{}{"entry_id": entry.ID.String()})
		})
	})
	if err != nil {
		return nil, err
	}

	result := &ClockResult{Entry: entry}
	result.Calendar = s.mirror(ctx, entry, func(mctx context.Context, details ClockEventDetails) (string, error) {
		return s.calendar.CreateClockEvent(mctx, details)
	})
	s.publisher.Publish(EventClockChanged, map[string]interface{}{"user_id": userID, "clocked_in": true})
	return result, nil
}

func (s *clockService) ClockOut(ctx context.Context, userID uuid.UUID, req ClockOutRequest) (*ClockResult, error) {
	var entry *model.ClockEntry

	err := s.locks.WithLock(lockKey(userID), func() error {
		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			active, err := s.clocks.FindActive(txCtx, userID)
			if err != nil {
				return notFound(err, "active clock entry")
			}

			out := s.now().UTC()
			active.ClockOut = &out
			if req.Notes != "" {
				active.Notes = req.Notes
			}
			if err := s.clocks.Save(txCtx, active); err != nil {
				return fmt.Errorf("failed to close clock entry: %w", err)
			}
			entry = active

			return s.activity.Record(txCtx, userRef(userID), model.ActivityClockOut, "Clocked out", map[string]interface{}{
				"entry_id": active.ID.String(),
				"minutes":  int(out.Sub(active.ClockIn).Minutes()),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	result := &ClockResult{Entry: entry}
	result.Calendar = s.mirror(ctx, entry, func(mctx context.Context, details ClockEventDetails) (string, error) {
		if entry.CalendarEventID != nil && *entry.CalendarEventID != "" {
			eventID := *entry.CalendarEventID
			return eventID, s.calendar.UpdateClockEvent(mctx, eventID, details)
		}
		return s.calendar.CreateClockEvent(mctx, details)
	})
	s.publisher.Publish(EventClockChanged, map[string]interface{}{"user_id": userID, "clocked_in": false})
	return result, nil
}

// mirror performs the calendar side effect after the entry committed. Its
// outcome is stored on the entry and returned; it never fails the clock action.
func (s *clockService) mirror(ctx context.Context, entry *model.ClockEntry, write func(context.Context, ClockEventDetails) (string, error)) CalendarMirror {
	log := logger.FromContext(ctx).With(slog.String("user_id", entry.UserID.String()), slog.String("entry_id", entry.ID.String()))

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), calendarMirrorTimeout)
	defer cancel()

	var result CalendarMirror
	if !s.calendar.SetCredentials(mctx, entry.UserID) {
		result.Status = model.CalendarSyncSkipped
	} else {
		details := ClockEventDetails{
			UserID:   entry.UserID,
			EntryID:  entry.ID,
			ClockIn:  entry.ClockIn,
			ClockOut: entry.ClockOut,
			Notes:    entry.Notes,
		}
		if user, err := s.users.GetByID(mctx, entry.UserID); err == nil {
			details.Username = user.Username
		}

		eventID, err := write(mctx, details)
		if err != nil {
			result.Status = model.CalendarSyncFailed
			result.Error = err.Error()
			log.Warn("Calendar mirroring failed", slog.Any("error", err))
		} else {
			result.Status = model.CalendarSyncSynced
			result.EventID = eventID
			entry.CalendarEventID = &eventID
		}
	}
	metrics.CalendarMirrorTotal.WithLabelValues(result.Status).Inc()

	entry.CalendarSyncStatus = result.Status
	entry.CalendarSyncError = result.Error
	var eventID *string
	if result.EventID != "" {
		eventID = &result.EventID
	}
	if err := s.clocks.RecordCalendarSync(mctx, entry.ID, eventID, result.Status, result.Error); err != nil {
		log.Warn("Failed to record calendar mirror result", slog.Any("error", err))
	}
	return result
}

func (s *clockService) Status(ctx context.Context, userID uuid.UUID) (*ClockStatus, error) {
	entry, err := s.clocks.FindActive(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ClockStatus{ClockedIn: false}, nil
		}
		return nil, fmt.Errorf("failed to load clock status: %w", err)
	}

	return &ClockStatus{
		ClockedIn: true,
		Entry:     entry,
		Elapsed:   s.now().Sub(entry.ClockIn).Round(time.Second).String(),
	}, nil
}

func (s *clockService) History(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ClockEntry, int64, error) {
	return s.clocks.ListByUser(ctx, userID, page, limit)
}
