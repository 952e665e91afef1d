package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation

// SignupRequest is the public applicant registration form.
type SignupRequest struct {
	FullName string `json:"full_name" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,min=9,max=15"`
	Password string `json:"password" binding:"required,min=6"`
}

// CreateUserRequest is the admin-only provisioning form; unlike signup it
// carries a role.
type CreateUserRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Signup(ctx context.Context, req SignupRequest) (*UserResponse, *TokenResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*UserResponse, *TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error

	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
}

type userService struct {
	repo   repository.UserRepository
	audits repository.AuditRepository
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, audits repository.AuditRepository) UserService {
	return &userService{repo: repo, audits: audits}
}

// Helper: check if role is allowed
func validateRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleStaff || role == model.RoleApplicant
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		FullName:  user.FullName,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

// Signup registers a public applicant account and logs them straight in.
// Roles are never caller-controlled here.
func (s *userService) Signup(ctx context.Context, req SignupRequest) (*UserResponse, *TokenResponse, error) {
	user, err := s.createAccount(ctx, req.FullName, req.Email, req.Phone, req.Password, model.RoleApplicant)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	return mapToResponse(user), tokens, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*UserResponse, *TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, nil, apperror.Authorization("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, nil, apperror.Authorization("invalid email or password")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	return mapToResponse(user), tokens, nil
}

// Refresh rotates the refresh token: the presented one is consumed and a new
// pair is issued, so a stolen token works at most once.
func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, apperror.Authorization("invalid refresh token")
	}

	if time.Now().After(stored.ExpiresAt) {
		_ = s.repo.DeleteRefreshToken(ctx, refreshToken)
		return nil, apperror.Authorization("refresh token expired")
	}

	user, err := s.repo.GetByID(ctx, stored.UserID.String())
	if err != nil {
		return nil, apperror.Authorization("invalid refresh token")
	}

	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repo.DeleteRefreshToken(ctx, refreshToken)
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if !validateRole(req.Role) {
		return nil, apperror.Validation("invalid role: must be admin, staff, or applicant")
	}

	user, err := s.createAccount(ctx, req.FullName, req.Email, req.Phone, req.Password, req.Role)
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) createAccount(ctx context.Context, fullName, email, phone, password, role string) (*model.User, error) {
	// Double check email uniqueness via repo directly
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email already exists")
	}

	// Hash password automatically
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to hash password", err)
	}

	user := &model.User{
		FullName: fullName,
		Email:    email,
		Phone:    phone,
		Password: string(hashedPassword),
		Role:     role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.audits.Log(ctx, &model.AuditLog{
		UserID:     &user.ID,
		Action:     model.ActionCreateUser,
		EntityID:   user.ID.String(),
		EntityName: user.Email,
		Details:    `{"role":"` + role + `"}`,
	}); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	// Generate JWT Token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(middleware.GetJWTSecret())
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to generate token", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to generate refresh token", err)
	}
	refreshToken := hex.EncodeToString(raw)

	if err := s.repo.SaveRefreshToken(ctx, &model.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}); err != nil {
		return nil, err
	}

	return &TokenResponse{Token: tokenString, RefreshToken: refreshToken}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("user not found")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	var responses []UserResponse
	for _, u := range users {
		responses = append(responses, *mapToResponse(&u))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("user not found")
	}

	if req.Role != "" {
		if !validateRole(req.Role) {
			return nil, apperror.Validation("invalid role: must be admin, staff, or applicant")
		}
		user.Role = req.Role
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}

	if req.Email != "" && req.Email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return nil, apperror.Conflict("email already exists")
		}
		user.Email = req.Email
	}

	if req.Phone != "" {
		user.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	// Let repo handle existence check implicitly or we can check first
	_, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperror.NotFound("user not found")
	}
	return s.repo.Delete(ctx, id)
}
