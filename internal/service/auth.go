// Package service orchestrates the credential lifecycle: registration,
// login, token refresh, and revocation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/cache"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/google/uuid"
)

// Keep these interfaces small so tests can fake them easily.

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, email string, passwordHash *string, name, role, provider string) (user.User, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, row postgres.RefreshTokenRow) error
	GetByToken(ctx context.Context, token string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldID string, newRow postgres.RefreshTokenRow) error
}

// Hasher is the seam for CPU-bound password work. Production wires the
// bounded hashpool; tests can run it inline.
type Hasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, stored string) (bool, error)
}

type TokenIssuer interface {
	SignAccessToken(userID, role string) (string, error)
	SignRefreshToken(userID, role string) (raw string, expiresAt time.Time, err error)
	VerifyToken(tokenStr string) (*auth.Claims, error)
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Auth struct {
	users   UserStore
	refresh RefreshTokenStore
	hasher  Hasher
	tokens  TokenIssuer
	cache   cache.UserCache
	log     *slog.Logger
}

func NewAuth(users UserStore, refresh RefreshTokenStore, hasher Hasher, tokens TokenIssuer, userCache cache.UserCache, log *slog.Logger) *Auth {
	return &Auth{
		users:   users,
		refresh: refresh,
		hasher:  hasher,
		tokens:  tokens,
		cache:   userCache,
		log:     log,
	}
}

// Register creates a local-provider user with the default role. The email
// pre-check is advisory; the store's unique constraint is the real guard and
// both surface as ErrEmailTaken.
func (s *Auth) Register(ctx context.Context, email, password, name string) (user.Public, error) {
	_, err := s.users.GetByEmail(ctx, email)

	if err == nil {
		return user.Public{}, ErrEmailTaken
	}

	if !errors.Is(err, postgres.ErrUserNotFound) {
		return user.Public{}, err
	}

	hash, err := s.hasher.Hash(ctx, password)

	if err != nil {
		return user.Public{}, err
	}

	u, err := s.users.Create(ctx, email, &hash, name, user.RoleUser, user.ProviderLocal)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			return user.Public{}, ErrEmailTaken
		}

		s.log.ErrorContext(ctx, "create user failed", "err", err)

		return user.Public{}, err
	}

	return u.Public(), nil
}

// Login verifies the password before anything that could leak account state.
// The disabled-account check runs strictly after verification so response
// differences cannot probe is_active without a valid password.
func (s *Auth) Login(ctx context.Context, email, password string) (user.Public, TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return user.Public{}, TokenPair{}, ErrInvalidCredentials
		}

		return user.Public{}, TokenPair{}, err
	}

	// federated accounts have no local password to check
	if u.PasswordHash == nil {
		return user.Public{}, TokenPair{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, *u.PasswordHash)

	if err != nil {
		return user.Public{}, TokenPair{}, err
	}

	if !ok {
		return user.Public{}, TokenPair{}, ErrInvalidCredentials
	}

	if !u.IsActive {
		return user.Public{}, TokenPair{}, ErrAccountDisabled
	}

	pair, err := s.issueTokens(ctx, u.ID, u.Role)

	if err != nil {
		return user.Public{}, TokenPair{}, err
	}

	return u.Public(), pair, nil
}

// GetByID serves the public projection, cache first.
func (s *Auth) GetByID(ctx context.Context, id string) (user.Public, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, id); ok {
			return p, nil
		}
	}

	u, err := s.users.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return user.Public{}, ErrUserNotFound
		}

		return user.Public{}, err
	}

	p := u.Public()

	if s.cache != nil {
		s.cache.Set(ctx, p)
	}

	return p, nil
}

// Refresh rotates a refresh token: the presented record is revoked and a new
// pair is issued. Revoked, expired, or unknown records are all rejected the
// same way.
func (s *Auth) Refresh(ctx context.Context, rawToken string) (TokenPair, error) {
	claims, err := s.tokens.VerifyToken(rawToken)

	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	row, err := s.refresh.GetByToken(ctx, rawToken)

	if err != nil {
		if errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}

		return TokenPair{}, err
	}

	if row.Revoked {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	if time.Now().UTC().After(row.ExpiresAt) {
		return TokenPair{}, ErrRefreshTokenExpired
	}

	accessToken, err := s.tokens.SignAccessToken(claims.UserID, claims.Role)

	if err != nil {
		return TokenPair{}, err
	}

	newRaw, expiresAt, err := s.tokens.SignRefreshToken(claims.UserID, claims.Role)

	if err != nil {
		return TokenPair{}, err
	}

	newRow := postgres.RefreshTokenRow{
		ID:        uuid.NewString(),
		UserID:    row.UserID,
		Token:     newRaw,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.refresh.Rotate(ctx, row.ID, newRow); err != nil {
		if errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			// lost the rotation race
			return TokenPair{}, ErrInvalidRefreshToken
		}

		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: newRaw}, nil
}

// Logout revokes the presented refresh record. Unknown or already-revoked
// tokens are a no-op; logout is idempotent.
func (s *Auth) Logout(ctx context.Context, rawToken string) error {
	if _, err := s.tokens.VerifyToken(rawToken); err != nil {
		return nil
	}

	row, err := s.refresh.GetByToken(ctx, rawToken)

	if err != nil {
		if errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			return nil
		}

		return err
	}

	if row.Revoked {
		return nil
	}

	return s.refresh.Revoke(ctx, row.ID)
}

// LogoutAll revokes every live refresh record the user holds. Outstanding
// access tokens keep working until they expire on their own.
func (s *Auth) LogoutAll(ctx context.Context, userID string) error {
	return s.refresh.RevokeAllForUser(ctx, userID)
}

func (s *Auth) issueTokens(ctx context.Context, userID, role string) (TokenPair, error) {
	accessToken, err := s.tokens.SignAccessToken(userID, role)

	if err != nil {
		return TokenPair{}, err
	}

	rawRefresh, expiresAt, err := s.tokens.SignRefreshToken(userID, role)

	if err != nil {
		return TokenPair{}, err
	}

	row := postgres.RefreshTokenRow{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     rawRefresh,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.refresh.Create(ctx, row); err != nil {
		s.log.ErrorContext(ctx, "persist refresh token failed", "err", err)
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: rawRefresh}, nil
}
