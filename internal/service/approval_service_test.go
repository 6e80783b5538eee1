package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"backoffice/internal/domain"
	"backoffice/internal/model"
	"backoffice/internal/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminEmail = "office@example.com"

type approvalFixture struct {
	*env
	svc          ApprovalService
	mailer       *mockMailer
	appointments *mockAppointments
	admin        *model.User
	staff        *model.User
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	e := newEnv(t)
	f := &approvalFixture{
		env:          e,
		mailer:       &mockMailer{},
		appointments: &mockAppointments{},
	}
	f.svc = NewApprovalService(ApprovalConfig{AdminEmail: adminEmail},
		e.approvals, e.users, e.customers, e.invoices, e.payrolls,
		f.appointments, f.mailer, e.activitySvc, e.tx, e.publisher)
	f.admin = e.createUser(t, "admin", model.RoleAdmin)
	f.staff = e.createUser(t, "sam", model.RoleStaff)
	return f
}

func (f *approvalFixture) submit(t *testing.T, formType string, data interface{}) *model.PendingApproval {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	approval, err := f.svc.Submit(context.Background(), f.staff.ID, SubmitApprovalRequest{FormType: formType, Data: raw})
	require.NoError(t, err)
	return approval
}

func hoursMaterials() map[string]interface{} {
	return map[string]interface{}{
		"customer_name":   "Acme Plumbing",
		"customer_email":  "billing@acme.test",
		"job_description": "Replace water heater",
		"work_date":       "2026-10-12",
		"line_items": []map[string]interface{}{
			{"description": "Labour", "quantity": "2", "rate": "50"},
			{"description": "Fittings", "quantity": "1", "rate": "30"},
		},
	}
}

func TestApprovalService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a pending approval", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())

		assert.Equal(t, model.ApprovalPending, approval.Status)
		assert.Equal(t, f.staff.ID, approval.SubmittedBy)
		assert.Equal(t, []string{model.ActivitySubmitApproval}, f.activityTypes(t))
	})

	t.Run("rejects unknown form type", func(t *testing.T) {
		f := newApprovalFixture(t)
		_, err := f.svc.Submit(ctx, f.staff.ID, SubmitApprovalRequest{FormType: "timesheet", Data: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})

	t.Run("rejects payload without line items", func(t *testing.T) {
		f := newApprovalFixture(t)
		_, err := f.svc.Submit(ctx, f.staff.ID, SubmitApprovalRequest{
			FormType: model.FormHoursMaterials,
			Data:     json.RawMessage(`{"customer_name":"Acme","line_items":[]}`),
		})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
		assert.Zero(t, f.count(t, &model.PendingApproval{}))
	})

	t.Run("rejects payroll for unknown employee", func(t *testing.T) {
		f := newApprovalFixture(t)
		raw, _ := json.Marshal(map[string]interface{}{
			"employee_id":   uuid.NewString(),
			"week_start":    "2026-10-12",
			"regular_hours": "40",
			"hourly_rate":   "20",
		})
		_, err := f.svc.Submit(ctx, f.staff.ID, SubmitApprovalRequest{FormType: model.FormPayroll, Data: raw})
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})
}

func TestApprovalService_ApproveHoursMaterials(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())

	outcome, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ApprovalApproved, outcome.Approval.Status)
	require.NotNil(t, outcome.Invoice)
	assert.True(t, decimal.RequireFromString("130").Equal(outcome.Invoice.Subtotal), "subtotal %s", outcome.Invoice.Subtotal)
	assert.True(t, outcome.Invoice.Total.Equal(outcome.Invoice.Subtotal))
	assert.Regexp(t, `^INV-\d{8}-00001$`, outcome.Invoice.InvoiceNo)

	stored, err := f.invoices.FindByApproval(ctx, approval.ID)
	require.NoError(t, err)
	full, err := f.invoices.FindByIDWithItems(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, full.Items, 2)
	totals := []string{full.Items[0].Total.StringFixed(2), full.Items[1].Total.StringFixed(2)}
	assert.ElementsMatch(t, []string{"100.00", "30.00"}, totals)

	customer, err := f.customers.FindByName(ctx, f.admin.ID, "Acme Plumbing")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, full.CustomerID)

	assert.Contains(t, f.activityTypes(t), model.ActivityCreateInvoice)
	assert.Contains(t, f.activityTypes(t), model.ActivityApprove)
	assert.Equal(t, []string{EventApprovalDecided}, f.publisher.types())
}

func TestApprovalService_ApproveReusesCustomerByName(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)

	first := f.submit(t, model.FormHoursMaterials, hoursMaterials())
	second := f.submit(t, model.FormHoursMaterials, hoursMaterials())

	a, err := f.svc.Approve(ctx, first.ID, f.admin.ID)
	require.NoError(t, err)
	b, err := f.svc.Approve(ctx, second.ID, f.admin.ID)
	require.NoError(t, err)

	assert.Equal(t, a.Invoice.CustomerID, b.Invoice.CustomerID)
	assert.NotEqual(t, a.Invoice.InvoiceNo, b.Invoice.InvoiceNo)
	assert.EqualValues(t, 1, f.count(t, &model.Customer{}))
}

func TestApprovalService_ApproveTwice(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())

	_, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, approval.ID, f.admin.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.EqualValues(t, 1, f.count(t, &model.Invoice{}))
}

func TestApprovalService_ConcurrentApproveCreatesOneInvoice(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(ctx, approval.ID, f.admin.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, f.count(t, &model.Invoice{}))
}

func TestApprovalService_ApproveMissing(t *testing.T) {
	f := newApprovalFixture(t)
	_, err := f.svc.Approve(context.Background(), uuid.New(), f.admin.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApprovalService_ApprovePayroll(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	approval := f.submit(t, model.FormPayroll, map[string]interface{}{
		"employee_id":    f.staff.ID.String(),
		"week_start":     "2026-10-12",
		"regular_hours":  "40",
		"overtime_hours": "2",
		"hourly_rate":    "20",
	})

	outcome, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
	require.NoError(t, err)
	require.NotNil(t, outcome.Payroll)

	// 40 × 20 + 2 × 30
	assert.Equal(t, "860.00", outcome.Payroll.GrossPay.StringFixed(2))
	assert.Equal(t, "30.00", outcome.Payroll.OvertimeRate.StringFixed(2))
	assert.Equal(t, model.PayrollStatusApproved, outcome.Payroll.Status)
	assert.Equal(t, f.admin.ID, outcome.Payroll.ApprovedBy)
	assert.Zero(t, f.count(t, &model.Invoice{}))
	assert.Contains(t, f.activityTypes(t), model.ActivityCreatePayroll)
}

func TestApprovalService_ApproveCalendarAppointment(t *testing.T) {
	ctx := context.Background()
	form := func(owner uuid.UUID) map[string]interface{} {
		return map[string]interface{}{
			"event_id":       "evt-42",
			"calendar_owner": owner.String(),
			"title":          "Site visit",
		}
	}

	t.Run("marks the event approved", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormCalendarAppointment, form(f.staff.ID))
		f.appointments.On("MarkEventApproved", mock.Anything, f.staff.ID, "evt-42").Return(nil).Once()

		outcome, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, "evt-42", outcome.CalendarEventID)
		f.appointments.AssertExpectations(t)
	})

	t.Run("provider failure leaves the approval pending", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormCalendarAppointment, form(f.staff.ID))
		f.appointments.On("MarkEventApproved", mock.Anything, f.staff.ID, "evt-42").
			Return(errors.New("connection reset")).Once()

		_, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
		assert.ErrorIs(t, err, domain.ErrUpstreamProvider)

		stored, err := f.svc.Get(ctx, approval.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalPending, stored.Status)
		assert.Nil(t, stored.ApprovedBy)
	})

	t.Run("deleted event is not found", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormCalendarAppointment, form(f.staff.ID))
		f.appointments.On("MarkEventApproved", mock.Anything, f.staff.ID, "evt-42").
			Return(fmt.Errorf("%w: PATCH /calendars/primary/events/evt-42: %w", domain.ErrUpstreamProvider, domain.ErrNotFound)).Once()

		_, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		stored, err := f.svc.Get(ctx, approval.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalPending, stored.Status)
	})

	t.Run("owner without calendar surfaces not connected", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormCalendarAppointment, form(f.staff.ID))
		f.appointments.On("MarkEventApproved", mock.Anything, f.staff.ID, "evt-42").
			Return(domain.ErrIntegrationNotConnected).Once()

		_, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
		assert.ErrorIs(t, err, domain.ErrIntegrationNotConnected)
	})
}

func TestApprovalService_Deny(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies submitter and administrator", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())

		f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
			return m.To == f.staff.Email
		})).Return(nil).Once()
		f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m notify.Message) bool {
			return m.To == adminEmail
		})).Return(nil).Once()

		denied, err := f.svc.Deny(ctx, approval.ID, f.admin.ID, "  missing receipts ")
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalDenied, denied.Status)
		assert.Equal(t, "missing receipts", denied.Reason)

		f.mailer.AssertExpectations(t)
		f.mailer.AssertNumberOfCalls(t, "Send", 2)
		for _, call := range f.mailer.Calls {
			msg := call.Arguments.Get(1).(notify.Message)
			assert.Contains(t, msg.Body, "missing receipts")
		}
		assert.Zero(t, f.count(t, &model.Invoice{}))
	})

	t.Run("second deny sends nothing", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())
		f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

		_, err := f.svc.Deny(ctx, approval.ID, f.admin.ID, "duplicate")
		require.NoError(t, err)
		_, err = f.svc.Deny(ctx, approval.ID, f.admin.ID, "duplicate")
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

		f.mailer.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("mail failure does not undo the denial", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())
		f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		_, err := f.svc.Deny(ctx, approval.ID, f.admin.ID, "wrong customer")
		require.NoError(t, err)

		stored, err := f.svc.Get(ctx, approval.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalDenied, stored.Status)
	})

	t.Run("requires a reason", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())

		_, err := f.svc.Deny(ctx, approval.ID, f.admin.ID, "   ")
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
		f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("approved request cannot be denied", func(t *testing.T) {
		f := newApprovalFixture(t)
		approval := f.submit(t, model.FormHoursMaterials, hoursMaterials())
		_, err := f.svc.Approve(ctx, approval.ID, f.admin.ID)
		require.NoError(t, err)

		_, err = f.svc.Deny(ctx, approval.ID, f.admin.ID, "too late")
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestApprovalService_List(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	first := f.submit(t, model.FormHoursMaterials, hoursMaterials())
	f.submit(t, model.FormHoursMaterials, hoursMaterials())
	_, err := f.svc.Approve(ctx, first.ID, f.admin.ID)
	require.NoError(t, err)

	pending, total, err := f.svc.List(ctx, ApprovalFilter{Status: model.ApprovalPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, pending, 1)

	all, total, err := f.svc.List(ctx, ApprovalFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	_, _, err = f.svc.List(ctx, ApprovalFilter{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}
