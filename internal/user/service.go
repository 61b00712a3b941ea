package user

import (
	"context"
	"errors"

	"calpay/internal/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error)
	GetByID(ctx context.Context, userID int) (*User, error)
}

type service struct {
	repo      Repository
	jwtSecret string
}

func NewService(repo Repository, jwtSecret string) Service {
	return &service{repo: repo, jwtSecret: jwtSecret}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Users created by the scheduling product without a password cannot log in here.
	if u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	access, refresh, err := auth.IssueTokens(u.ID, u.Email, u.Role, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{AccessToken: access, RefreshToken: refresh, User: *u}, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	claims, err := auth.Refresh(refreshToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	access, err := auth.AccessToken(u.ID, u.Email, u.Role, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{AccessToken: access, User: *u}, nil
}

func (s *service) GetByID(ctx context.Context, userID int) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}
