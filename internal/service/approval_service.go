package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/notify"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const mailTimeout = 15 * time.Second

// AppointmentApprover applies an approved calendar appointment on the provider side
type AppointmentApprover interface {
	MarkEventApproved(ctx context.Context, ownerID uuid.UUID, eventID string) error
}

// --- DTOs ---

type SubmitApprovalRequest struct {
	FormType string          `json:"form_type" binding:"required"`
	Data     json.RawMessage `json:"data" binding:"required"`
}

type DenyApprovalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ApprovalFilter struct {
	Status string // pending, approved, denied or empty for all
	Page   int
	Limit  int
}

// ApprovalOutcome is the approval after its decision plus whatever the approval materialized
type ApprovalOutcome struct {
	Approval        *model.PendingApproval `json:"approval"`
	Invoice         *model.Invoice         `json:"invoice,omitempty"`
	Payroll         *model.WeeklyPayroll   `json:"payroll,omitempty"`
	CalendarEventID string                 `json:"calendar_event_id,omitempty"`
}

// --- Interface ---

type ApprovalService interface {
	Submit(ctx context.Context, submitterID uuid.UUID, req SubmitApprovalRequest) (*model.PendingApproval, error)
	List(ctx context.Context, filter ApprovalFilter) ([]model.PendingApproval, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error)
	// Approve transitions PENDING to APPROVED and materializes the form in the same transaction
	Approve(ctx context.Context, id, approverID uuid.UUID) (*ApprovalOutcome, error)
	// Deny transitions PENDING to DENIED and notifies the submitter and the administrator
	Deny(ctx context.Context, id, approverID uuid.UUID, reason string) (*model.PendingApproval, error)
}

type ApprovalConfig struct {
	AdminEmail string
}

type approvalService struct {
	cfg          ApprovalConfig
	approvals    repository.ApprovalRepository
	users        repository.UserRepository
	customers    repository.CustomerRepository
	invoices     repository.InvoiceRepository
	payrolls     repository.PayrollRepository
	appointments AppointmentApprover
	mailer       notify.Mailer
	activity     ActivityService
	txManager    repository.TransactionManager
	publisher    Publisher
	now          func() time.Time
}

func NewApprovalService(
	cfg ApprovalConfig,
	approvals repository.ApprovalRepository,
	users repository.UserRepository,
	customers repository.CustomerRepository,
	invoices repository.InvoiceRepository,
	payrolls repository.PayrollRepository,
	appointments AppointmentApprover,
	mailer notify.Mailer,
	activity ActivityService,
	txManager repository.TransactionManager,
	publisher Publisher,
) ApprovalService {
	return &approvalService{
		cfg:          cfg,
		approvals:    approvals,
		users:        users,
		customers:    customers,
		invoices:     invoices,
		payrolls:     payrolls,
		appointments: appointments,
		mailer:       mailer,
		activity:     activity,
		txManager:    txManager,
		publisher:    publisherOrNop(publisher),
		now:          time.Now,
	}
}

func (s *approvalService) Submit(ctx context.Context, submitterID uuid.UUID, req SubmitApprovalRequest) (*model.PendingApproval, error) {
	form, err := model.DecodeForm(req.FormType, req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	}

	if payroll, ok := form.(model.PayrollForm); ok {
		employeeID, _ := uuid.Parse(payroll.EmployeeID)
		if _, err := s.users.GetByID(ctx, employeeID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: unknown employee %s", domain.ErrValidationFailed, payroll.EmployeeID)
			}
			return nil, fmt.Errorf("failed to load employee: %w", err)
		}
	}

	// Store the decoded form so unknown fields are dropped
	data, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	approval := &model.PendingApproval{
		FormType:    form.FormType(),
		SubmittedBy: submitterID,
		Data:        datatypes.JSON(data),
		Status:      model.ApprovalPending,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.approvals.Create(txCtx, approval); err != nil {
			return fmt.Errorf("failed to create approval: %w", err)
		}
		return s.activity.Record(txCtx, userRef(submitterID), model.ActivitySubmitApproval,
			fmt.Sprintf("Submitted %s for approval", approval.FormType),
			map[string]interface{}{"approval_id": approval.ID.String(), "form_type": approval.FormType})
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalsSubmitted.WithLabelValues(approval.FormType).Inc()
	return approval, nil
}

func (s *approvalService) List(ctx context.Context, filter ApprovalFilter) ([]model.PendingApproval, int64, error) {
	switch filter.Status {
	case "", model.ApprovalPending, model.ApprovalApproved, model.ApprovalDenied:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidationFailed, filter.Status)
	}

	approvals, total, err := s.approvals.List(ctx, filter.Status, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approvals: %w", err)
	}
	return approvals, total, nil
}

func (s *approvalService) Get(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error) {
	approval, err := s.approvals.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, notFound(err, "approval")
	}
	return approval, nil
}

// loadPending returns the approval if it can still be decided
func (s *approvalService) loadPending(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error) {
	approval, err := s.approvals.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "approval")
	}
	if approval.Status != model.ApprovalPending {
		return nil, fmt.Errorf("approval is already %s: %w", approval.Status, domain.ErrAlreadyProcessed)
	}
	return approval, nil
}

func (s *approvalService) Approve(ctx context.Context, id, approverID uuid.UUID) (*ApprovalOutcome, error) {
	outcome := &ApprovalOutcome{}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		approval, err := s.loadPending(txCtx, id)
		if err != nil {
			return err
		}
		form, err := approval.Form()
		if err != nil {
			return fmt.Errorf("%w: stored payload: %v", domain.ErrValidationFailed, err)
		}

		decidedAt := s.now()
		won, err := s.approvals.Decide(txCtx, id, model.ApprovalApproved, approverID, "", decidedAt)
		if err != nil {
			return fmt.Errorf("failed to update approval: %w", err)
		}
		if !won {
			return fmt.Errorf("approval was decided concurrently: %w", domain.ErrAlreadyProcessed)
		}
		approval.Status = model.ApprovalApproved
		approval.ApprovedBy = &approverID
		approval.DecidedAt = &decidedAt
		outcome.Approval = approval

		switch f := form.(type) {
		case model.HoursMaterialsForm:
			outcome.Invoice, err = s.createInvoice(txCtx, approval, approverID, f)
		case model.PayrollForm:
			outcome.Payroll, err = s.createPayroll(txCtx, approval, approverID, f)
		case model.CalendarAppointmentForm:
			outcome.CalendarEventID, err = s.approveAppointment(txCtx, approval, approverID, f)
		default:
			err = fmt.Errorf("%w: %s", model.ErrUnknownFormType, approval.FormType)
		}
		if err != nil {
			return err
		}

		repository.AfterCommit(txCtx, func() {
			metrics.ApprovalsDecided.WithLabelValues(approval.FormType, model.ApprovalApproved).Inc()
			s.publisher.Publish(EventApprovalDecided, map[string]interface{}{"id": id, "status": model.ApprovalApproved})
		})
		return s.activity.Record(txCtx, userRef(approverID), model.ActivityApprove,
			fmt.Sprintf("Approved %s request", approval.FormType),
			map[string]interface{}{"approval_id": id.String(), "form_type": approval.FormType})
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// createInvoice resolves the customer by exact name and bills one line per submitted line item
func (s *approvalService) createInvoice(ctx context.Context, approval *model.PendingApproval, ownerID uuid.UUID, form model.HoursMaterialsForm) (*model.Invoice, error) {
	customer, err := s.customers.FindByName(ctx, ownerID, form.CustomerName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		customer = &model.Customer{
			OwnerID:     ownerID,
			DisplayName: form.CustomerName,
			Email:       form.CustomerEmail,
			Active:      true,
		}
		err = s.customers.Create(ctx, customer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer %q: %w", form.CustomerName, err)
	}

	prefix := "INV-" + s.now().Format("20060102") + "-"
	seq, err := s.invoices.NextNumber(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	subtotal := form.Subtotal()
	approvalID := approval.ID
	invoice := &model.Invoice{
		InvoiceNo:  fmt.Sprintf("%s%05d", prefix, seq),
		OwnerID:    ownerID,
		CustomerID: customer.ID,
		Source:     model.InvoiceSourceApproval,
		Subtotal:   subtotal,
		Total:      subtotal,
		Balance:    subtotal,
		Status:     model.InvoiceStatusOpen,
		ApprovalID: &approvalID,
		Note:       form.JobDescription,
		Items:      make([]model.InvoiceItem, 0, len(form.LineItems)),
	}
	for _, line := range form.LineItems {
		invoice.Items = append(invoice.Items, model.InvoiceItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			Rate:        line.Rate,
			Total:       line.Total(),
		})
	}

	if err := s.invoices.Create(ctx, invoice); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("invoice for approval %s exists: %w", approval.ID, domain.ErrAlreadyProcessed)
		}
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	invoice.Customer = customer

	err = s.activity.Record(ctx, userRef(ownerID), model.ActivityCreateInvoice,
		fmt.Sprintf("Created invoice %s for %s", invoice.InvoiceNo, customer.DisplayName),
		map[string]interface{}{"invoice_id": invoice.ID.String(), "approval_id": approval.ID.String(), "total": subtotal.StringFixed(2)})
	return invoice, err
}

func (s *approvalService) createPayroll(ctx context.Context, approval *model.PendingApproval, approverID uuid.UUID, form model.PayrollForm) (*model.WeeklyPayroll, error) {
	employeeID, err := uuid.Parse(form.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("%w: employee_id", domain.ErrValidationFailed)
	}
	weekStart, err := time.Parse("2006-01-02", form.WeekStart)
	if err != nil {
		return nil, fmt.Errorf("%w: week_start", domain.ErrValidationFailed)
	}

	payroll := &model.WeeklyPayroll{
		EmployeeID:    employeeID,
		WeekStart:     weekStart,
		RegularHours:  form.RegularHours,
		OvertimeHours: form.OvertimeHours,
		HourlyRate:    form.HourlyRate,
		OvertimeRate:  form.EffectiveOvertimeRate(),
		GrossPay:      form.GrossPay(),
		Status:        model.PayrollStatusApproved,
		ApprovalID:    approval.ID,
		ApprovedBy:    approverID,
		Notes:         form.Notes,
	}
	if err := s.payrolls.Create(ctx, payroll); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("payroll for approval %s exists: %w", approval.ID, domain.ErrAlreadyProcessed)
		}
		return nil, fmt.Errorf("failed to create payroll: %w", err)
	}

	err = s.activity.Record(ctx, userRef(approverID), model.ActivityCreatePayroll,
		fmt.Sprintf("Approved payroll for week of %s", form.WeekStart),
		map[string]interface{}{"payroll_id": payroll.ID.String(), "employee_id": form.EmployeeID, "gross_pay": payroll.GrossPay.StringFixed(2)})
	return payroll, err
}

// approveAppointment fails the whole approval when the provider call fails, so the
// approval stays pending and can be retried.
func (s *approvalService) approveAppointment(ctx context.Context, approval *model.PendingApproval, approverID uuid.UUID, form model.CalendarAppointmentForm) (string, error) {
	ownerID, err := uuid.Parse(form.CalendarOwner)
	if err != nil {
		return "", fmt.Errorf("%w: calendar_owner", domain.ErrValidationFailed)
	}

	if err := s.appointments.MarkEventApproved(ctx, ownerID, form.EventID); err != nil {
		if errors.Is(err, domain.ErrIntegrationNotConnected) || errors.Is(err, domain.ErrUpstreamProvider) || errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamProvider, err)
	}

	err = s.activity.Record(ctx, userRef(approverID), model.ActivityApproveAppointment,
		fmt.Sprintf("Approved calendar appointment %s", form.EventID),
		map[string]interface{}{"event_id": form.EventID, "approval_id": approval.ID.String()})
	return form.EventID, err
}

func (s *approvalService) Deny(ctx context.Context, id, approverID uuid.UUID, reason string) (*model.PendingApproval, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", domain.ErrValidationFailed)
	}

	var approval *model.PendingApproval
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if approval, err = s.loadPending(txCtx, id); err != nil {
			return err
		}

		decidedAt := s.now()
		won, err := s.approvals.Decide(txCtx, id, model.ApprovalDenied, approverID, reason, decidedAt)
		if err != nil {
			return fmt.Errorf("failed to update approval: %w", err)
		}
		if !won {
			return fmt.Errorf("approval was decided concurrently: %w", domain.ErrAlreadyProcessed)
		}
		approval.Status = model.ApprovalDenied
		approval.ApprovedBy = &approverID
		approval.DecidedAt = &decidedAt
		approval.Reason = reason

		repository.AfterCommit(txCtx, func() {
			metrics.ApprovalsDecided.WithLabelValues(approval.FormType, model.ApprovalDenied).Inc()
			s.publisher.Publish(EventApprovalDecided, map[string]interface{}{"id": id, "status": model.ApprovalDenied})
		})
		return s.activity.Record(txCtx, userRef(approverID), model.ActivityDeny,
			fmt.Sprintf("Denied %s request", approval.FormType),
			map[string]interface{}{"approval_id": id.String(), "reason": reason})
	})
	if err != nil {
		return nil, err
	}

	s.notifyDenied(ctx, approval)
	return approval, nil
}

// notifyDenied mails the submitter and the administrator. Failures are logged; the denial stands.
func (s *approvalService) notifyDenied(ctx context.Context, approval *model.PendingApproval) {
	log := logger.FromContext(ctx).With(slog.String("approval_id", approval.ID.String()))

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	defer cancel()

	submitterName := "there"
	var submitterEmail string
	if submitter, err := s.users.GetByID(mctx, approval.SubmittedBy); err != nil {
		log.Warn("Failed to load submitter for denial email", slog.Any("error", err))
	} else {
		submitterName = submitter.Username
		submitterEmail = submitter.Email
	}

	label := formLabel(approval.FormType)
	messages := []notify.Message{
		{
			To:      submitterEmail,
			Subject: fmt.Sprintf("Your %s request was denied", label),
			Body: fmt.Sprintf("Hi %s,\n\nYour %s request submitted on %s was denied.\n\nReason: %s\n\n"+
				"If you have questions, please contact your manager or reply to this email.\n",
				submitterName, label, approval.CreatedAt.Format("January 2, 2006"), approval.Reason),
		},
		{
			To:      s.cfg.AdminEmail,
			Subject: fmt.Sprintf("Denied: %s request from %s", label, submitterName),
			Body: fmt.Sprintf("The %s request %s from %s was denied.\n\nReason: %s\n\n"+
				"The submitter has been notified and asked to contact their manager.\n",
				label, approval.ID, submitterName, approval.Reason),
		},
	}

	for _, msg := range messages {
		if msg.To == "" {
			log.Warn("Skipping denial email without recipient", slog.String("subject", msg.Subject))
			continue
		}
		if err := s.mailer.Send(mctx, msg); err != nil {
			log.Warn("Failed to send denial email", slog.String("to", msg.To), slog.Any("error", err))
		}
	}
}

func formLabel(formType string) string {
	switch formType {
	case model.FormHoursMaterials:
		return "hours & materials"
	case model.FormPayroll:
		return "payroll"
	case model.FormCalendarAppointment:
		return "calendar appointment"
	}
	return formType
}
