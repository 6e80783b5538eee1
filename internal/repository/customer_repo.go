package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CustomerRepository interface {
	Create(ctx context.Context, customer *model.Customer) error
	FindByName(ctx context.Context, ownerID uuid.UUID, name string) (*model.Customer, error)
	FindByQBID(ctx context.Context, ownerID uuid.UUID, qbID string) (*model.Customer, error)
	Save(ctx context.Context, customer *model.Customer) error
	List(ctx context.Context, ownerID uuid.UUID) ([]model.Customer, error)
}

type customerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(ctx context.Context, customer *model.Customer) error {
	return GetDB(ctx, r.db).Create(customer).Error
}

// FindByName matches the display name exactly
func (r *customerRepository) FindByName(ctx context.Context, ownerID uuid.UUID, name string) (*model.Customer, error) {
	var customer model.Customer
	if err := GetDB(ctx, r.db).First(&customer, "owner_id = ? AND display_name = ?", ownerID, name).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) FindByQBID(ctx context.Context, ownerID uuid.UUID, qbID string) (*model.Customer, error) {
	var customer model.Customer
	if err := GetDB(ctx, r.db).First(&customer, "owner_id = ? AND qb_id = ?", ownerID, qbID).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) Save(ctx context.Context, customer *model.Customer) error {
	return GetDB(ctx, r.db).Save(customer).Error
}

func (r *customerRepository) List(ctx context.Context, ownerID uuid.UUID) ([]model.Customer, error) {
	var customers []model.Customer
	if err := GetDB(ctx, r.db).Where("owner_id = ?", ownerID).Order("display_name").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}
