package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devicesession/backend/internal/model"
)

const refreshTokenColumns = `id, user_id, token, device_name, fingerprint_hash, created_at, expires_at, revoked`

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanRefreshToken(row pgx.Row) (*model.RefreshToken, error) {
	var rec model.RefreshToken
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Token,
		&rec.DeviceName,
		&rec.FingerprintHash,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.Revoked,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func insertRefreshToken(ctx context.Context, q queryRower, rec model.RefreshToken) (*model.RefreshToken, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
		INSERT INTO refresh_tokens (user_id, token, device_name, fingerprint_hash, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING ` + refreshTokenColumns
	return scanRefreshToken(q.QueryRow(ctx, query,
		rec.UserID,
		rec.Token,
		rec.DeviceName,
		rec.FingerprintHash,
		createdAt,
		rec.ExpiresAt,
	))
}

func (db *Postgres) InsertRefreshToken(ctx context.Context, rec model.RefreshToken) (*model.RefreshToken, error) {
	return insertRefreshToken(ctx, db.Pool, rec)
}

func (db *Postgres) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1`
	return scanRefreshToken(db.Pool.QueryRow(ctx, query, token))
}

func (db *Postgres) ListActiveRefreshTokens(ctx context.Context, userID int64) ([]model.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE
		ORDER BY created_at ASC, id ASC`

	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RefreshToken
	for rows.Next() {
		rec, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (db *Postgres) RevokeRefreshToken(ctx context.Context, id int64) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE id = $1 AND revoked = FALSE
	`
	_, err := db.Pool.Exec(ctx, query, id)
	return err
}

func (db *Postgres) RevokeRefreshTokensExcept(ctx context.Context, userID int64, exceptToken string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND token <> $2 AND revoked = FALSE
	`
	tag, err := db.Pool.Exec(ctx, query, userID, exceptToken)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RotateRefreshToken retires oldID and inserts next in one transaction. The
// revoke is conditional on the record still being active, so of two callers
// racing on the same record only one gets past it; the other receives
// ErrAlreadyRevoked and nothing is written.
func (db *Postgres) RotateRefreshToken(ctx context.Context, oldID int64, next model.RefreshToken) (*model.RefreshToken, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE id = $1 AND revoked = FALSE
	`, oldID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyRevoked
	}

	rec, err := insertRefreshToken(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return rec, nil
}
