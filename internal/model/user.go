package model

import (
	"gorm.io/gorm"
)

// Role names carried in the JWT "role" claim
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// User is an employee or administrator of the business
type User struct {
	Base
	Username  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"`
	Role      string         `gorm:"type:varchar(50);not null" json:"role"` // admin, manager, staff
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
