package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Melodeck/core/auth"
	"Melodeck/logger"
	"Melodeck/model"
	"Melodeck/repository"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *model.User
	Token string
}

// AuthService registers users and issues bearer tokens.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
}

// NewAuthService creates an AuthService.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, validationError("username, email and password are required")
	}

	taken, err := s.users.UsernameOrEmailTaken(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("username or email is already registered")
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, validationError("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("username or email is already registered")
		}
		return nil, err
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	logger.Info("User registered", logger.Int64("userId", user.ID), logger.String("username", user.Username))
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks the credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, newError(ErrInvalidCredentials, "invalid credentials")
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Authenticate verifies a bearer token. An empty token is ErrUnauthorized;
// a malformed, tampered or expired one is ErrForbidden.
func (s *AuthService) Authenticate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, newError(ErrUnauthorized, "authentication token required")
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, forbidden("token expired")
		}
		return nil, forbidden("invalid token")
	}
	return claims, nil
}

// Me returns the account behind userID.
func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, notFound("user not found")
	}
	return user, nil
}
