package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, name, email, password_hash, avatar, role, password_changed_at,
		 password_reset_token_hash, password_reset_expires_at, email_verify_token_hash,
		 is_verified, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// newID is a seam for tests.
var newID = func() string { return uuid.NewString() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Avatar, &u.Role, &u.PasswordChangedAt,
		&u.PasswordResetTokenHash, &u.PasswordResetExpiresAt, &u.EmailVerifyTokenHash,
		&u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func mapWriteErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if dbx.IsUniqueViolation(err) {
		return common.ErrDuplicateEmail
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (id, name, email, password_hash, avatar, role, password_changed_at,
		 password_reset_token_hash, password_reset_expires_at, email_verify_token_hash, is_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at
		 `

	user.ID = newID()
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email, user.Password, user.Avatar, user.Role, user.PasswordChangedAt,
		user.PasswordResetTokenHash, user.PasswordResetExpiresAt, user.EmailVerifyTokenHash, user.IsVerified,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		user.ID = ""
		return nil, mapWriteErr(err)
	}

	return user, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE ` + where

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `email = $1`, email)
}

func (r *PostgresRepository) GetByPasswordResetToken(ctx context.Context, fingerprint string, now time.Time) (*models.User, error) {
	return r.getOne(ctx, `password_reset_token_hash = $1 AND password_reset_expires_at > $2`, fingerprint, now)
}

func (r *PostgresRepository) GetByEmailVerifyToken(ctx context.Context, fingerprint string) (*models.User, error) {
	return r.getOne(ctx, `email_verify_token_hash = $1`, fingerprint)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`UPDATE users SET name = $2, email = $3, password_hash = $4, avatar = $5, role = $6,
		 password_changed_at = $7, password_reset_token_hash = $8, password_reset_expires_at = $9,
		 email_verify_token_hash = $10, is_verified = $11, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email, user.Password, user.Avatar, user.Role,
		user.PasswordChangedAt, user.PasswordResetTokenHash, user.PasswordResetExpiresAt,
		user.EmailVerifyTokenHash, user.IsVerified,
	).Scan(&user.UpdatedAt)

	if err != nil {
		return nil, mapWriteErr(err)
	}

	return user, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
