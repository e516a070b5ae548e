package account

import (
	"context"
	"errors"

	"proledger/internal/auth"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Account, string, string, error)
	Login(ctx context.Context, req LoginRequest) (*Account, string, string, error)
	GetByID(ctx context.Context, accountID int) (*Account, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, *Account, error)
}

type service struct {
	repo      Repository
	jwtSecret string
}

func NewService(repo Repository, jwtSecret string) Service {
	return &service{
		repo:      repo,
		jwtSecret: jwtSecret,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Account, string, string, error) {
	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, "", "", err
	}
	if exists {
		return nil, "", "", ErrEmailExists
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", "", err
	}

	acc, err := s.repo.Create(ctx, req.Name, req.Email, passwordHash, "pro")
	if err != nil {
		return nil, "", "", err
	}

	accessToken, refreshToken, err := auth.GenerateTokens(
		acc.ID,
		acc.Email,
		acc.Role,
		s.jwtSecret,
		s.jwtSecret,
	)
	if err != nil {
		return nil, "", "", err
	}

	return acc, accessToken, refreshToken, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Account, string, string, error) {
	acc, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", "", ErrInvalidCredentials
	}

	if !auth.CheckPassword(acc.PasswordHash, req.Password) {
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := auth.GenerateTokens(
		acc.ID,
		acc.Email,
		acc.Role,
		s.jwtSecret,
		s.jwtSecret,
	)
	if err != nil {
		return nil, "", "", err
	}

	return acc, accessToken, refreshToken, nil
}

func (s *service) GetByID(ctx context.Context, accountID int) (*Account, error) {
	return s.repo.FindByID(ctx, accountID)
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (string, *Account, error) {
	_, claims, err := auth.RefreshAccessToken(refreshToken, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	acc, err := s.repo.FindByID(ctx, claims.AccountID)
	if err != nil {
		return "", nil, ErrAccountNotFound
	}

	newAccessToken, err := auth.GenerateAccessToken(acc.ID, acc.Email, acc.Role, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	return newAccessToken, acc, nil
}
