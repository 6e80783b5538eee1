package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=admin manager staff"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context, page, limit int) ([]model.User, int64, error)
}

type userService struct {
	repo   repository.UserRepository
	secret []byte
	now    func() time.Time
}

// NewUserService returns a new instance of UserService signing tokens with secret
func NewUserService(repo repository.UserRepository, secret []byte) UserService {
	return &userService{repo: repo, secret: secret, now: time.Now}
}

func validRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleManager || role == model.RoleStaff
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	if !validRole(req.Role) {
		return nil, fmt.Errorf("%w: role must be admin, manager or staff", domain.ErrValidationFailed)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already exists: %w", domain.ErrConflict)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &model.User{
		Username: strings.TrimSpace(req.Username),
		Email:    email,
		Password: string(hashedPassword),
		Role:     req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("username or email already exists: %w", domain.ErrConflict)
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", domain.ErrAuthenticationRequired)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", domain.ErrAuthenticationRequired)
	}

	expiresAt := s.now().Add(tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iat":  s.now().Unix(),
		"exp":  expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &TokenResponse{Token: tokenString, ExpiresAt: expiresAt}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	return s.repo.List(ctx, page, limit)
}
