// Package postgres is a record.Store on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ramppy/authkit/record"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Store implements record.Store.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("goose up: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for callers that share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

const credentialColumns = `id, name, email, password_hash, company, locked_until, login_attempts,
	last_login, email_verified, verification_token, reset_token_hash, reset_expires, created_at`

func (s *Store) Create(ctx context.Context, c *record.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Name, c.Email, c.PasswordHash, c.Company,
		c.LockedUntil, c.FailedAttempts, c.LastLoginAt,
		c.EmailVerified, c.VerificationToken, c.ResetTokenHash, c.ResetExpiresAt,
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return record.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*record.Credential, error) {
	return s.findOne(ctx, `email = $1`, email)
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*record.Credential, error) {
	if token == "" {
		return nil, record.ErrNotFound
	}
	return s.findOne(ctx, `verification_token = $1`, token)
}

func (s *Store) FindByResetTokenHash(ctx context.Context, hash string) (*record.Credential, error) {
	if hash == "" {
		return nil, record.ErrNotFound
	}
	return s.findOne(ctx, `reset_token_hash = $1`, hash)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*record.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM users WHERE `+where+` LIMIT 1`, arg)

	var c record.Credential
	var lockedUntil, lastLogin, resetExp sql.NullTime
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Company,
		&lockedUntil, &c.FailedAttempts, &lastLogin, &c.EmailVerified,
		&c.VerificationToken, &c.ResetTokenHash, &resetExp, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	c.LockedUntil = nullTime(lockedUntil)
	c.LastLoginAt = nullTime(lastLogin)
	c.ResetExpiresAt = nullTime(resetExp)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) Update(ctx context.Context, c *record.Credential) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = $1, email = $2, password_hash = $3, company = $4, locked_until = $5,
			login_attempts = $6, last_login = $7, email_verified = $8, verification_token = $9,
			reset_token_hash = $10, reset_expires = $11
		WHERE id = $12`,
		c.Name, c.Email, c.PasswordHash, c.Company, c.LockedUntil,
		c.FailedAttempts, c.LastLoginAt, c.EmailVerified, c.VerificationToken,
		c.ResetTokenHash, c.ResetExpiresAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return record.ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) LogIncident(ctx context.Context, inc record.Incident) error {
	details, err := json.Marshal(inc.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_logs (type, details, user_agent, ip, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		inc.Type, string(details), inc.UserAgent, inc.IP, inc.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return record.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
