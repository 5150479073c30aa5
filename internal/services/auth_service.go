package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expensely/internal/auth"
	"expensely/internal/core"
	"expensely/internal/storage"
)

// AuthService handles registration and login against the credential store.
type AuthService struct {
	storage    *storage.SQLiteRepository
	tokens     *auth.TokenManager
	bcryptCost int
}

func NewAuthService(storage *storage.SQLiteRepository, tokens *auth.TokenManager, bcryptCost int) *AuthService {
	return &AuthService{
		storage:    storage,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

// Register validates the inputs, rejects duplicate usernames or emails,
// and stores the user with a bcrypt hash. The returned user still
// carries the hash; the HTTP layer never serializes it.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*core.User, error) {
	if err := core.ValidateRegistration(username, email, password); err != nil {
		return nil, err
	}

	exists, err := s.storage.UserExists(ctx, username, email)
	if err != nil {
		return nil, core.Internal(fmt.Errorf("check existing user: %w", err))
	}
	if exists {
		return nil, core.Conflict("user_exists", "username or email already exists")
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, core.Internal(err)
	}

	user, err := s.storage.CreateUser(ctx, username, email, hash)
	if err != nil {
		return nil, core.Internal(fmt.Errorf("create user: %w", err))
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// errInvalidCredentials is shared by the not-found and wrong-password
// paths so the two are indistinguishable to callers.
var errInvalidCredentials = core.Auth("invalid_credentials", "invalid email or password")

// dummyPasswordHash is compared on the unknown-email path so both login
// failures cost one full bcrypt verification.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Login authenticates by email and password and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *core.User, error) {
	if email == "" || password == "" {
		return "", nil, core.Validation("missing_credentials", "email and password are required")
	}

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			auth.CheckPassword(password, dummyPasswordHash)
			return "", nil, errInvalidCredentials
		}
		return "", nil, core.Internal(fmt.Errorf("look up user: %w", err))
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", nil, errInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", nil, core.Internal(err)
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	return token, user, nil
}
