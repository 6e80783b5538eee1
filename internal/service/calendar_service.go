package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backoffice/internal/calendar"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	scheduleWindow = 7 * 24 * time.Hour

	// Google Calendar color ids
	colorClockedIn  = "5"  // banana
	colorClockedOut = "2"  // sage
	colorApproved   = "10" // basil
)

// CalendarAPI is the subset of the calendar client the service needs
type CalendarAPI interface {
	InsertEvent(ctx context.Context, ts oauth2.TokenSource, ev *calendar.Event) (*calendar.Event, error)
	PatchEvent(ctx context.Context, ts oauth2.TokenSource, eventID string, ev *calendar.Event) (*calendar.Event, error)
	ListEvents(ctx context.Context, ts oauth2.TokenSource, from, to time.Time) ([]calendar.Event, error)
}

// --- DTOs ---

// ClockEventDetails describes the work session mirrored to a calendar event
type ClockEventDetails struct {
	UserID   uuid.UUID
	EntryID  uuid.UUID
	Username string
	ClockIn  time.Time
	ClockOut *time.Time
	Notes    string
}

// ScheduledShift is one upcoming event from an employee's calendar
type ScheduledShift struct {
	EventID string     `json:"event_id"`
	Summary string     `json:"summary"`
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	AllDay  bool       `json:"all_day"`
}

// --- Interface ---

type CalendarService interface {
	GetAuthorizationURL(ctx context.Context, userID uuid.UUID) (string, error)
	ExchangeCodeForTokens(ctx context.Context, params CallbackParams) (*model.Integration, error)
	// SetCredentials reports whether the user has a usable calendar connection
	SetCredentials(ctx context.Context, userID uuid.UUID) bool
	CreateClockEvent(ctx context.Context, details ClockEventDetails) (string, error)
	UpdateClockEvent(ctx context.Context, eventID string, details ClockEventDetails) error
	SyncEmployeeSchedules(ctx context.Context, userID uuid.UUID) ([]ScheduledShift, error)
	MarkEventApproved(ctx context.Context, ownerID uuid.UUID, eventID string) error
}

type calendarService struct {
	api          CalendarAPI
	integrations IntegrationService
	activity     ActivityService
	now          func() time.Time
}

func NewCalendarService(api CalendarAPI, integrations IntegrationService, activity ActivityService) CalendarService {
	return &calendarService{
		api:          api,
		integrations: integrations,
		activity:     activity,
		now:          time.Now,
	}
}

func (s *calendarService) GetAuthorizationURL(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.integrations.BeginConnect(ctx, userID, model.ProviderGoogleCalendar)
}

func (s *calendarService) ExchangeCodeForTokens(ctx context.Context, params CallbackParams) (*model.Integration, error) {
	return s.integrations.CompleteConnect(ctx, model.ProviderGoogleCalendar, params)
}

func (s *calendarService) SetCredentials(ctx context.Context, userID uuid.UUID) bool {
	_, err := s.integrations.Active(ctx, userID, model.ProviderGoogleCalendar)
	return err == nil
}

func (s *calendarService) tokenSource(ctx context.Context, userID uuid.UUID) (*model.Integration, oauth2.TokenSource, error) {
	integration, err := s.integrations.Active(ctx, userID, model.ProviderGoogleCalendar)
	if err != nil {
		return nil, nil, err
	}
	ts, err := s.integrations.TokenSource(ctx, integration)
	if err != nil {
		return nil, nil, err
	}
	return integration, ts, nil
}

func (s *calendarService) CreateClockEvent(ctx context.Context, details ClockEventDetails) (string, error) {
	_, ts, err := s.tokenSource(ctx, details.UserID)
	if err != nil {
		return "", err
	}

	ev, err := s.api.InsertEvent(ctx, ts, clockEvent(details))
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

func (s *calendarService) UpdateClockEvent(ctx context.Context, eventID string, details ClockEventDetails) error {
	_, ts, err := s.tokenSource(ctx, details.UserID)
	if err != nil {
		return err
	}

	_, err = s.api.PatchEvent(ctx, ts, eventID, clockEvent(details))
	return err
}

// clockEvent renders an open session as a short block at clock-in, and a closed one as the full span
func clockEvent(d ClockEventDetails) *calendar.Event {
	ev := &calendar.Event{
		Summary:     "Clocked in",
		Description: d.Notes,
		ColorID:     colorClockedIn,
		Start:       calendar.At(d.ClockIn),
		End:         calendar.At(d.ClockIn.Add(15 * time.Minute)),
		ExtendedProperties: &calendar.ExtendedProperties{
			Private: map[string]string{"clock_entry_id": d.EntryID.String()},
		},
	}
	if d.Username != "" {
		ev.Summary = d.Username + " clocked in"
	}
	if d.ClockOut != nil {
		ev.Summary = fmt.Sprintf("Work session (%s)", d.ClockOut.Sub(d.ClockIn).Round(time.Minute))
		if d.Username != "" {
			ev.Summary = d.Username + ": " + ev.Summary
		}
		ev.ColorID = colorClockedOut
		ev.End = calendar.At(*d.ClockOut)
	}
	return ev
}

func (s *calendarService) SyncEmployeeSchedules(ctx context.Context, userID uuid.UUID) ([]ScheduledShift, error) {
	integration, ts, err := s.tokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := s.now()
	events, err := s.api.ListEvents(ctx, ts, start, start.Add(scheduleWindow))
	if err != nil {
		return nil, err
	}

	shifts := make([]ScheduledShift, 0, len(events))
	for _, ev := range events {
		shift := ScheduledShift{EventID: ev.ID, Summary: ev.Summary}
		if ev.Start != nil {
			shift.Start, shift.AllDay = eventTime(ev.Start)
		}
		if ev.End != nil {
			shift.End, _ = eventTime(ev.End)
		}
		shifts = append(shifts, shift)
	}

	finished := s.now()
	if err := s.integrations.MarkSynced(ctx, integration, finished); err != nil {
		return nil, err
	}
	metrics.SyncDuration.WithLabelValues(model.ProviderGoogleCalendar).Observe(finished.Sub(start).Seconds())

	if err := s.activity.Record(ctx, userRef(userID), model.ActivitySync, "Google Calendar schedule sync",
		map[string]interface{}{"provider": model.ProviderGoogleCalendar, "events": len(shifts)}); err != nil {
		logger.FromContext(ctx).Warn("Failed to record activity", slog.Any("error", err))
	}
	return shifts, nil
}

func eventTime(t *calendar.EventTime) (*time.Time, bool) {
	if t.DateTime != nil {
		return t.DateTime, false
	}
	if day, err := time.Parse("2006-01-02", t.Date); err == nil {
		return &day, true
	}
	return nil, false
}

// MarkEventApproved recolors the event and tags it as approved
func (s *calendarService) MarkEventApproved(ctx context.Context, ownerID uuid.UUID, eventID string) error {
	_, ts, err := s.tokenSource(ctx, ownerID)
	if err != nil {
		return err
	}

	_, err = s.api.PatchEvent(ctx, ts, eventID, &calendar.Event{
		ColorID: colorApproved,
		ExtendedProperties: &calendar.ExtendedProperties{
			Private: map[string]string{"approval_status": model.ApprovalApproved},
		},
	})
	return err
}
