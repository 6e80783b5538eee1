package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clockFixture struct {
	*env
	svc      ClockService
	calendar *mockClockCalendar
	user     *model.User
}

func newClockFixture(t *testing.T) *clockFixture {
	t.Helper()
	e := newEnv(t)
	f := &clockFixture{env: e, calendar: &mockClockCalendar{}}
	f.svc = NewClockService(e.clocks, e.users, f.calendar, e.activitySvc, e.tx, e.locks, e.publisher)
	f.user = e.createUser(t, "casey", model.RoleStaff)
	return f
}

func TestClockService_ClockInWithoutCalendar(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(false)

	result, err := f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{Notes: "morning shift"})
	require.NoError(t, err)

	assert.Equal(t, model.CalendarSyncSkipped, result.Calendar.Status)
	assert.True(t, result.Entry.Active())
	f.calendar.AssertNotCalled(t, "CreateClockEvent", mock.Anything, mock.Anything)

	active, err := f.clocks.FindActive(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CalendarSyncSkipped, active.CalendarSyncStatus)
	assert.Equal(t, []string{EventClockChanged}, f.publisher.types())
}

func TestClockService_ClockInTwice(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(false)

	_, err := f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	require.NoError(t, err)

	_, err = f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.EqualValues(t, 1, f.count(t, &model.ClockEntry{}))
	assert.Equal(t, []string{model.ActivityClockIn}, f.activityTypes(t))
}

func TestClockService_CalendarFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(true)
	f.calendar.On("CreateClockEvent", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded")).Once()

	result, err := f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	require.NoError(t, err)

	assert.Equal(t, model.CalendarSyncFailed, result.Calendar.Status)
	assert.Contains(t, result.Calendar.Error, "quota exceeded")

	active, err := f.clocks.FindActive(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CalendarSyncFailed, active.CalendarSyncStatus)
	assert.Contains(t, active.CalendarSyncError, "quota exceeded")
	assert.Nil(t, active.CalendarEventID)
}

func TestClockService_MirrorsInAndOut(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(true)
	f.calendar.On("CreateClockEvent", mock.Anything, mock.MatchedBy(func(d ClockEventDetails) bool {
		return d.ClockOut == nil && d.Username == "casey"
	})).Return("evt-1", nil).Once()
	f.calendar.On("UpdateClockEvent", mock.Anything, "evt-1", mock.MatchedBy(func(d ClockEventDetails) bool {
		return d.ClockOut != nil && d.Notes == "done"
	})).Return(nil).Once()

	in, err := f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	require.NoError(t, err)
	assert.Equal(t, CalendarMirror{Status: model.CalendarSyncSynced, EventID: "evt-1"}, in.Calendar)

	out, err := f.svc.ClockOut(ctx, f.user.ID, ClockOutRequest{Notes: "done"})
	require.NoError(t, err)
	assert.Equal(t, model.CalendarSyncSynced, out.Calendar.Status)
	require.NotNil(t, out.Entry.ClockOut)
	assert.False(t, out.Entry.Active())

	f.calendar.AssertExpectations(t)
	assert.Equal(t, []string{model.ActivityClockIn, model.ActivityClockOut}, f.activityTypes(t))
}

func TestClockService_ClockOutWithoutActiveEntry(t *testing.T) {
	f := newClockFixture(t)
	_, err := f.svc.ClockOut(context.Background(), f.user.ID, ClockOutRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClockService_ClockInRejectsBadCustomer(t *testing.T) {
	f := newClockFixture(t)
	_, err := f.svc.ClockIn(context.Background(), f.user.ID, ClockInRequest{CustomerID: "nope"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestClockService_StatusAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(false)

	status, err := f.svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, status.ClockedIn)

	_, err = f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	require.NoError(t, err)
	status, err = f.svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, status.ClockedIn)
	assert.NotEmpty(t, status.Elapsed)

	_, err = f.svc.ClockOut(ctx, f.user.ID, ClockOutRequest{})
	require.NoError(t, err)
	_, err = f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	require.NoError(t, err)

	entries, total, err := f.svc.History(ctx, f.user.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, entries, 2)

	other, total, err := f.svc.History(ctx, uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, other)
}

func TestClockService_StatusElapsed(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(false)

	start := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)
	svc := f.svc.(*clockService)
	svc.now = func() time.Time { return start }
	_, err := svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(90 * time.Minute) }
	status, err := svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", status.Elapsed)
}

func TestClockService_SlowClockInMirrorKeepsClockOut(t *testing.T) {
	ctx := context.Background()
	f := newClockFixture(t)
	f.calendar.On("SetCredentials", mock.Anything, f.user.ID).Return(true)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.calendar.On("CreateClockEvent", mock.Anything, mock.MatchedBy(func(d ClockEventDetails) bool {
		return d.ClockOut == nil
	})).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return("evt-in", nil).Once()
	f.calendar.On("CreateClockEvent", mock.Anything, mock.MatchedBy(func(d ClockEventDetails) bool {
		return d.ClockOut != nil
	})).Return("evt-out", nil).Once()

	type clockInResult struct {
		result *ClockResult
		err    error
	}
	done := make(chan clockInResult, 1)
	go func() {
		r, err := f.svc.ClockIn(ctx, f.user.ID, ClockInRequest{})
		done <- clockInResult{r, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("clock-in never reached the calendar")
	}

	out, err := f.svc.ClockOut(ctx, f.user.ID, ClockOutRequest{Notes: "left early"})
	require.NoError(t, err)
	require.NotNil(t, out.Entry.ClockOut)

	close(release)
	in := <-done
	require.NoError(t, in.err)
	assert.Equal(t, model.CalendarSyncSynced, in.result.Calendar.Status)

	_, err = f.clocks.FindActive(ctx, f.user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	entries, total, err := f.clocks.ListByUser(ctx, f.user.ID, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.NotNil(t, entries[0].ClockOut)
	assert.Equal(t, "left early", entries[0].Notes)
	assert.Equal(t, model.CalendarSyncSynced, entries[0].CalendarSyncStatus)
	f.calendar.AssertExpectations(t)
}
