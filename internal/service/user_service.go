package service

import (
	"context"
	"errors"
	"time"

	"foodshare-backend/config"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/repository"
	"foodshare-backend/pkg/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrEmailTaken = errors.New("email already registered")

// DTOs

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=beneficiary employee admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AbsenceCount int    `json:"absence_count"`
}

type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (AuthResponse, error)
	GetMe(ctx context.Context, userID uuid.UUID) (UserResponse, error)
	// UpdateFCMToken stores the device token pushes for this user are sent to
	UpdateFCMToken(ctx context.Context, userID uuid.UUID, token string) error
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
}

type userService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
}

func NewUserService(userRepo repository.UserRepository, jwtCfg config.JWTConfig) UserService {
	return &userService{userRepo: userRepo, jwtCfg: jwtCfg}
}

func (s *userService) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	role := req.Role
	if role == "" {
		role = model.RoleBeneficiary
	}

	user := &model.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
		Role:     role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return AuthResponse{}, ErrEmailTaken
		}
		return AuthResponse{}, err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Token: token, User: toUserResponse(user)}, nil
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return AuthResponse{}, apperr.ErrUnauthorized
		}
		return AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return AuthResponse{}, apperr.ErrUnauthorized
	}

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Token: token, User: toUserResponse(user)}, nil
}

func (s *userService) GetMe(ctx context.Context, userID uuid.UUID) (UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return UserResponse{}, err
	}
	return toUserResponse(user), nil
}

func (s *userService) UpdateFCMToken(ctx context.Context, userID uuid.UUID, token string) error {
	return s.userRepo.UpdateFCMToken(ctx, userID, token)
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	users, total, err := s.userRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, toUserResponse(&users[i]))
	}
	return res, total, nil
}

func (s *userService) issueToken(user *model.User) (string, error) {
	expiration, err := time.ParseDuration(s.jwtCfg.Expiration)
	if err != nil {
		expiration = 24 * time.Hour
	}

	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(expiration).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtCfg.Secret))
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		AbsenceCount: u.AbsenceCount,
	}
}
