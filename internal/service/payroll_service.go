package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/xuri/excelize/v2"
)

const payrollSheet = "Payroll"

var payrollHeaders = []string{
	"Employee", "Email", "Week Start", "Regular Hours", "Overtime Hours",
	"Hourly Rate", "Overtime Rate", "Gross Pay", "Notes",
}

type PayrollService interface {
	ListWeek(ctx context.Context, week string) ([]model.WeeklyPayroll, error)
	// ExportWeek writes an .xlsx workbook of the week's approved payroll to w
	ExportWeek(ctx context.Context, week string, w io.Writer) error
}

type payrollService struct {
	repo repository.PayrollRepository
}

func NewPayrollService(repo repository.PayrollRepository) PayrollService {
	return &payrollService{repo: repo}
}

func parseWeek(week string) (time.Time, error) {
	weekStart, err := time.Parse("2006-01-02", week)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: week must be YYYY-MM-DD", domain.ErrValidationFailed)
	}
	return weekStart, nil
}

func (s *payrollService) ListWeek(ctx context.Context, week string) ([]model.WeeklyPayroll, error) {
	weekStart, err := parseWeek(week)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByWeek(ctx, weekStart)
}

func (s *payrollService) ExportWeek(ctx context.Context, week string, w io.Writer) error {
	rows, err := s.ListWeek(ctx, week)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", payrollSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for col, header := range payrollHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(payrollSheet, cell, header); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(payrollHeaders), 1)
	if err := f.SetCellStyle(payrollSheet, "A1", lastHeader, bold); err != nil {
		return err
	}

	for i, p := range rows {
		name, email := p.EmployeeID.String(), ""
		if p.Employee != nil {
			name, email = p.Employee.Username, p.Employee.Email
		}
		values := []interface{}{
			name,
			email,
			p.WeekStart.Format("2006-01-02"),
			p.RegularHours.InexactFloat64(),
			p.OvertimeHours.InexactFloat64(),
			p.HourlyRate.InexactFloat64(),
			p.OvertimeRate.InexactFloat64(),
			p.GrossPay.InexactFloat64(),
			p.Notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(payrollSheet, cell, &values); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		totalRow := len(rows) + 2
		label, _ := excelize.CoordinatesToCellName(1, totalRow)
		sum, _ := excelize.CoordinatesToCellName(8, totalRow)
		if err := f.SetCellValue(payrollSheet, label, "Total"); err != nil {
			return err
		}
		if err := f.SetCellFormula(payrollSheet, sum, fmt.Sprintf("SUM(H2:H%d)", totalRow-1)); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
