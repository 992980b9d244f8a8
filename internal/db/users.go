package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devicesession/backend/internal/model"
)

// PostgresUsers reads and creates users in the users table. The login and
// password hash columns are configurable so the service can sit on an
// existing user table.
type PostgresUsers struct {
	pool     *pgxpool.Pool
	columns  string
	login    string
	password string
}

func NewPostgresUsers(pool *pgxpool.Pool, loginColumn, passwordColumn string) (*PostgresUsers, error) {
	loginColumn = strings.TrimSpace(loginColumn)
	passwordColumn = strings.TrimSpace(passwordColumn)
	if loginColumn == "" || passwordColumn == "" {
		return nil, fmt.Errorf("user columns must not be empty")
	}

	login := pgx.Identifier{loginColumn}.Sanitize()
	password := pgx.Identifier{passwordColumn}.Sanitize()
	return &PostgresUsers{
		pool:     pool,
		columns:  fmt.Sprintf("id, %s, %s, created_at, updated_at", login, password),
		login:    login,
		password: password,
	}, nil
}

func (u *PostgresUsers) scan(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.LoginID,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (u *PostgresUsers) CreateUser(ctx context.Context, loginID, passwordHash string) (*model.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (%s, %s, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING %s`,
		u.login, u.password, u.columns)
	return u.scan(u.pool.QueryRow(ctx, query, loginID, passwordHash))
}

func (u *PostgresUsers) GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, u.columns, u.login)
	return u.scan(u.pool.QueryRow(ctx, query, loginID))
}

func (u *PostgresUsers) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, u.columns)
	return u.scan(u.pool.QueryRow(ctx, query, userID))
}
