package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenStore) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Operator, error) {
	op, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !op.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return op, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (*Operator, string, error) {
	op, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(ctx, op.ID)
	if err != nil {
		return nil, "", err
	}
	return op, token, nil
}

// Logout revokes a bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// ResolveToken maps a bearer token back to its operator.
func (s *Service) ResolveToken(ctx context.Context, token string) (*Operator, error) {
	id, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	op, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !op.IsActive {
		return nil, ErrTokenUnknown
	}
	return op, nil
}
