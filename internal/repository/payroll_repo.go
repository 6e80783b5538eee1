package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

type PayrollRepository interface {
	Create(ctx context.Context, payroll *model.WeeklyPayroll) error
	ListByWeek(ctx context.Context, weekStart time.Time) ([]model.WeeklyPayroll, error)
}

type payrollRepository struct {
	db *gorm.DB
}

func NewPayrollRepository(db *gorm.DB) PayrollRepository {
	return &payrollRepository{db: db}
}

func (r *payrollRepository) Create(ctx context.Context, payroll *model.WeeklyPayroll) error {
	return GetDB(ctx, r.db).Create(payroll).Error
}

func (r *payrollRepository) ListByWeek(ctx context.Context, weekStart time.Time) ([]model.WeeklyPayroll, error) {
	var rows []model.WeeklyPayroll
	err := GetDB(ctx, r.db).
		Preload("Employee").
		Where("week_start = ?", weekStart).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
