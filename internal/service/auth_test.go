package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/cache"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/geocoder89/authhub/internal/service"
)

// Fake stores implementing the service interfaces.

type fakeUsers struct {
	byEmail map[string]user.User
	byID    map[string]user.User

	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: make(map[string]user.User),
		byID:    make(map[string]user.User),
	}
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (user.User, error) {
	u, ok := f.byEmail[email]

	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := f.byID[id]

	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	return u, nil
}

func (f *fakeUsers) Create(_ context.Context, email string, passwordHash *string, name, role, provider string) (user.User, error) {
	if f.createErr != nil {
		return user.User{}, f.createErr
	}

	if _, ok := f.byEmail[email]; ok {
		return user.User{}, postgres.ErrEmailAlreadyUsed
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           "id-" + email,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		AuthProvider: provider,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	f.byEmail[email] = u
	f.byID[u.ID] = u

	return u, nil
}

func (f *fakeUsers) add(u user.User) {
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
}

type fakeRefresh struct {
	rows      map[string]postgres.RefreshTokenRow // keyed by token
	createErr error
}

func newFakeRefresh() *fakeRefresh {
	return &fakeRefresh{rows: make(map[string]postgres.RefreshTokenRow)}
}

func (f *fakeRefresh) Create(_ context.Context, row postgres.RefreshTokenRow) error {
	if f.createErr != nil {
		return f.createErr
	}

	f.rows[row.Token] = row

	return nil
}

func (f *fakeRefresh) GetByToken(_ context.Context, token string) (postgres.RefreshTokenRow, error) {
	row, ok := f.rows[token]

	if !ok {
		return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
	}

	return row, nil
}

func (f *fakeRefresh) Revoke(_ context.Context, id string) error {
	for token, row := range f.rows {
		if row.ID == id {
			row.Revoked = true
			f.rows[token] = row
		}
	}

	return nil
}

func (f *fakeRefresh) RevokeAllForUser(_ context.Context, userID string) error {
	for token, row := range f.rows {
		if row.UserID == userID {
			row.Revoked = true
			f.rows[token] = row
		}
	}

	return nil
}

func (f *fakeRefresh) Rotate(_ context.Context, oldID string, newRow postgres.RefreshTokenRow) error {
	found := false

	for token, row := range f.rows {
		if row.ID == oldID && !row.Revoked {
			row.Revoked = true
			f.rows[token] = row
			found = true
		}
	}

	if !found {
		return postgres.ErrRefreshTokenNotFound
	}

	f.rows[newRow.Token] = newRow

	return nil
}

// syncHasher runs the real derivation inline, no pool.

type syncHasher struct{}

func (syncHasher) Hash(_ context.Context, plain string) (string, error) {
	return security.HashPassword(plain)
}

func (syncHasher) Verify(_ context.Context, plain, stored string) (bool, error) {
	return security.CheckPassword(plain, stored), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth(users *fakeUsers, refresh *fakeRefresh) *service.Auth {
	return service.NewAuth(
		users,
		refresh,
		syncHasher{},
		auth.NewManager("test-secret-key"),
		cache.NewMemory(time.Minute),
		discardLogger(),
	)
}

func mustHash(t *testing.T, plain string) *string {
	t.Helper()

	h, err := security.HashPassword(plain)

	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	return &h
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	users := newFakeUsers()
	svc := newTestAuth(users, newFakeRefresh())

	p, err := svc.Register(ctx, "a@x.com", "longenough1", "A")

	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if p.Email != "a@x.com" || p.Name != "A" || p.Role != user.RoleUser {
		t.Errorf("unexpected projection: %+v", p)
	}

	stored := users.byEmail["a@x.com"]

	if stored.PasswordHash == nil {
		t.Fatal("user stored without a password hash")
	}

	if !security.CheckPassword("longenough1", *stored.PasswordHash) {
		t.Error("stored hash does not verify against the password")
	}

	if stored.AuthProvider != user.ProviderLocal {
		t.Errorf("provider = %q, want local", stored.AuthProvider)
	}

	// second registration with the same email is a conflict
	_, err = svc.Register(ctx, "a@x.com", "longenough1", "A")

	if !errors.Is(err, service.ErrEmailTaken) {
		t.Errorf("duplicate Register err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterMapsStoreConflict(t *testing.T) {
	// pre-check passes, insert itself hits the unique constraint
	users := newFakeUsers()
	users.createErr = postgres.ErrEmailAlreadyUsed

	svc := newTestAuth(users, newFakeRefresh())

	_, err := svc.Register(context.Background(), "b@x.com", "longenough1", "B")

	if !errors.Is(err, service.ErrEmailTaken) {
		t.Errorf("Register err = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	active := user.User{
		ID: "u1", Email: "a@x.com", PasswordHash: mustHash(t, "longenough1"),
		Name: "A", Role: user.RoleUser, AuthProvider: user.ProviderLocal, IsActive: true,
	}
	disabled := user.User{
		ID: "u2", Email: "off@x.com", PasswordHash: mustHash(t, "longenough1"),
		Name: "Off", Role: user.RoleUser, AuthProvider: user.ProviderLocal, IsActive: false,
	}
	federated := user.User{
		ID: "u3", Email: "g@x.com", PasswordHash: nil,
		Name: "G", Role: user.RoleUser, AuthProvider: user.ProviderGoogle, IsActive: true,
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"success", "a@x.com", "longenough1", nil},
		{"unknown email", "nobody@x.com", "longenough1", service.ErrInvalidCredentials},
		{"wrong password", "a@x.com", "wrongpassword", service.ErrInvalidCredentials},
		{"disabled account with correct password", "off@x.com", "longenough1", service.ErrAccountDisabled},
		{"federated account", "g@x.com", "longenough1", service.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUsers()
			users.add(active)
			users.add(disabled)
			users.add(federated)

			refresh := newFakeRefresh()
			svc := newTestAuth(users, refresh)

			p, pair, err := svc.Login(ctx, tt.email, tt.password)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login err = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Login: %v", err)
			}

			if p.ID != "u1" {
				t.Errorf("projection ID = %q, want u1", p.ID)
			}

			if pair.AccessToken == "" || pair.RefreshToken == "" {
				t.Error("login returned empty tokens")
			}

			row, ok := refresh.rows[pair.RefreshToken]

			if !ok {
				t.Fatal("refresh token was not persisted")
			}

			if row.UserID != "u1" || row.Revoked {
				t.Errorf("unexpected refresh row: %+v", row)
			}

			wantExpiry := time.Now().UTC().Add(auth.RefreshTokenTTL)

			if row.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || row.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
				t.Errorf("refresh expiry = %v, want about %v", row.ExpiresAt, wantExpiry)
			}
		})
	}
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()

	users := newFakeUsers()
	users.add(user.User{ID: "u1", Email: "a@x.com", Name: "A", Role: user.RoleUser, IsActive: true})

	svc := newTestAuth(users, newFakeRefresh())

	p, err := svc.GetByID(ctx, "u1")

	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if p.Email != "a@x.com" {
		t.Errorf("Email = %q, want a@x.com", p.Email)
	}

	// cached: removing from the store must still serve the projection
	delete(users.byID, "u1")

	if _, err := svc.GetByID(ctx, "u1"); err != nil {
		t.Errorf("GetByID after cache fill: %v", err)
	}

	if _, err := svc.GetByID(ctx, "missing"); !errors.Is(err, service.ErrUserNotFound) {
		t.Errorf("GetByID(missing) err = %v, want ErrUserNotFound", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()

	users := newFakeUsers()
	users.add(user.User{
		ID: "u1", Email: "a@x.com", PasswordHash: mustHash(t, "longenough1"),
		Name: "A", Role: user.RoleUser, AuthProvider: user.ProviderLocal, IsActive: true,
	})

	refresh := newFakeRefresh()
	svc := newTestAuth(users, refresh)

	_, pair, err := svc.Login(ctx, "a@x.com", "longenough1")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	newPair, err := svc.Refresh(ctx, pair.RefreshToken)

	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if newPair.AccessToken == "" || newPair.RefreshToken == "" {
		t.Error("rotation returned empty tokens")
	}

	// old record is revoked; presenting it again fails
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Errorf("re-used refresh token err = %v, want ErrInvalidRefreshToken", err)
	}

	// the new one works
	if _, err := svc.Refresh(ctx, newPair.RefreshToken); err != nil {
		t.Errorf("rotated refresh token rejected: %v", err)
	}
}

func TestRefreshRejectsExpiredRecord(t *testing.T) {
	ctx := context.Background()

	m := auth.NewManager("test-secret-key")

	raw, _, err := m.SignRefreshToken("u1", "user")

	if err != nil {
		t.Fatalf("SignRefreshToken: %v", err)
	}

	refresh := newFakeRefresh()
	refresh.rows[raw] = postgres.RefreshTokenRow{
		ID: "r1", UserID: "u1", Token: raw,
		// the record expired even though the JWT itself has not
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour),
	}

	svc := newTestAuth(newFakeUsers(), refresh)

	if _, err := svc.Refresh(ctx, raw); !errors.Is(err, service.ErrRefreshTokenExpired) {
		t.Errorf("Refresh err = %v, want ErrRefreshTokenExpired", err)
	}
}

func TestRefreshRejectsGarbageAndUnknown(t *testing.T) {
	ctx := context.Background()

	svc := newTestAuth(newFakeUsers(), newFakeRefresh())

	if _, err := svc.Refresh(ctx, "garbage"); !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Errorf("garbage token err = %v, want ErrInvalidRefreshToken", err)
	}

	// well-formed token with no persisted record
	raw, _, err := auth.NewManager("test-secret-key").SignRefreshToken("u1", "user")

	if err != nil {
		t.Fatalf("SignRefreshToken: %v", err)
	}

	if _, err := svc.Refresh(ctx, raw); !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Errorf("unknown token err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	users := newFakeUsers()
	users.add(user.User{
		ID: "u1", Email: "a@x.com", PasswordHash: mustHash(t, "longenough1"),
		Name: "A", Role: user.RoleUser, AuthProvider: user.ProviderLocal, IsActive: true,
	})

	refresh := newFakeRefresh()
	svc := newTestAuth(users, refresh)

	_, pair, err := svc.Login(ctx, "a@x.com", "longenough1")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if !refresh.rows[pair.RefreshToken].Revoked {
		t.Error("logout did not revoke the refresh record")
	}

	// idempotent on repeats and garbage
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Errorf("second Logout: %v", err)
	}

	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Errorf("Logout with garbage token: %v", err)
	}

	// revoked record can no longer be used to refresh; note this does NOT
	// invalidate access tokens already issued, they stay valid until their
	// own expiry, which is why the access TTL is short.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Errorf("refresh after logout err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogoutAll(t *testing.T) {
	ctx := context.Background()

	users := newFakeUsers()
	users.add(user.User{
		ID: "u1", Email: "a@x.com", PasswordHash: mustHash(t, "longenough1"),
		Name: "A", Role: user.RoleUser, AuthProvider: user.ProviderLocal, IsActive: true,
	})

	refresh := newFakeRefresh()
	svc := newTestAuth(users, refresh)

	// two independent sessions
	_, first, err := svc.Login(ctx, "a@x.com", "longenough1")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, second, err := svc.Login(ctx, "a@x.com", "longenough1")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.LogoutAll(ctx, "u1"); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := svc.Refresh(ctx, token); !errors.Is(err, service.ErrInvalidRefreshToken) {
			t.Errorf("refresh after logout-all err = %v, want ErrInvalidRefreshToken", err)
		}
	}
}
