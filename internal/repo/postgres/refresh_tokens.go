package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/authhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRow struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

type RefreshTokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool, prom: prom}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row RefreshTokenRow) error {
	return observe(r.prom, "refresh_tokens.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			`,
			row.ID, row.UserID, row.Token, row.ExpiresAt, row.Revoked, row.CreatedAt,
		)
		return err
	})
}

func (r *RefreshTokensRepo) GetByToken(ctx context.Context, token string) (RefreshTokenRow, error) {
	var row RefreshTokenRow
	var err error

	_ = observe(r.prom, "refresh_tokens.get_by_token", func() error {
		err = r.pool.QueryRow(ctx, `
			SELECT id, user_id, token, expires_at, revoked, created_at
			FROM refresh_tokens
			WHERE token = $1
		`, token).Scan(
			&row.ID,
			&row.UserID,
			&row.Token,
			&row.ExpiresAt,
			&row.Revoked,
			&row.CreatedAt,
		)

		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrRefreshTokenNotFound
			return nil
		}

		return err
	})

	if err != nil {
		return RefreshTokenRow{}, err
	}

	return row, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, id string) error {
	return observe(r.prom, "refresh_tokens.revoke", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE
			WHERE id = $1
		`, id)

		return err
	})
}

// RevokeAllForUser invalidates every live refresh record a user holds, e.g.
// when they sign out of all sessions at once.
func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	return observe(r.prom, "refresh_tokens.revoke_all_for_user", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE
			WHERE user_id = $1 AND revoked = FALSE
		`, userID)

		return err
	})
}

// Rotate revokes the old record and inserts its replacement in one
// transaction. The row lock closes the race where two callers present the
// same refresh token at once: the loser sees revoked = TRUE and fails.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldID string, newRow RefreshTokenRow) error {
	return observe(r.prom, "refresh_tokens.rotate", func() error {
		return r.rotate(ctx, oldID, newRow)
	})
}

func (r *RefreshTokensRepo) rotate(ctx context.Context, oldID string, newRow RefreshTokenRow) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var revoked bool

	err = tx.QueryRow(ctx, `
		SELECT revoked
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE
	`, oldID).Scan(&revoked)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRefreshTokenNotFound
		}

		return err
	}

	if revoked {
		return ErrRefreshTokenNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE id = $1
	`, oldID)

	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		`,
		newRow.ID, newRow.UserID, newRow.Token, newRow.ExpiresAt, newRow.Revoked, newRow.CreatedAt,
	)

	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
