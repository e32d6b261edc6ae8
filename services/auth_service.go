package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Register(ctx context.Context, username, email, password string) (domain.User, error)
	Login(ctx context.Context, username, password string) (domain.User, string, error)
	Contacts(ctx context.Context, user domain.UserIdentity) ([]domain.User, error)
}

type AuthService struct {
	users  contract.IUserStore
	tokens auth.TokenIssuer
	log    *slog.Logger
}

func NewAuthService(users contract.IUserStore, tokens auth.TokenIssuer, log *slog.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, log: log}
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	// Rules are checked before any expensive hashing
	if err := auth.ValidateRegister(auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	}); err != nil {
		return domain.User{}, err
	}

	// Hashed here so the repository never sees a plain password
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, email, hashedPassword)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		// Same answer for unknown users and wrong passwords
		s.log.Debug("login refused", "username", username, "error", err)
		return domain.User{}, "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return domain.User{}, "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(string(user.ID), user.Username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("token generation: %w", err)
	}
	return user, token, nil
}

// Contacts lists every other known user.
func (s *AuthService) Contacts(ctx context.Context, user domain.UserIdentity) ([]domain.User, error) {
	return s.users.ListUsers(ctx, user)
}
