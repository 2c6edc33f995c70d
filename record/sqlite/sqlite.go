// Package sqlite is a record.Store on an embedded SQLite database. Timestamps
// are stored as Unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ramppy/authkit/record"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements record.Store.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn and runs migrations. Use ":memory:" for a
// throwaway database.
func Open(dsn string) (*Store, error) {
	if dsn != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases
	// from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const credentialColumns = `id, name, email, password_hash, company, locked_until, login_attempts,
	last_login, email_verified, verification_token, reset_token_hash, reset_expires, created_at`

func (s *Store) Create(ctx context.Context, c *record.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+credentialColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.PasswordHash, c.Company,
		toMillis(c.LockedUntil), c.FailedAttempts, toMillis(c.LastLoginAt),
		c.EmailVerified, c.VerificationToken, c.ResetTokenHash, toMillis(c.ResetExpiresAt),
		c.CreatedAt.UnixMilli(),
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
	return s.findOne(ctx, `email = ?`, email)
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*record.Credential, error) {
	if token == "" {
		return nil, record.ErrNotFound
	}
	return s.findOne(ctx, `verification_token = ?`, token)
}

func (s *Store) FindByResetTokenHash(ctx context.Context, hash string) (*record.Credential, error) {
	if hash == "" {
		return nil, record.ErrNotFound
	}
	return s.findOne(ctx, `reset_token_hash = ?`, hash)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*record.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM users WHERE `+where+` LIMIT 1`, arg)

	var c record.Credential
	var lockedUntil, lastLogin, resetExp sql.NullInt64
	var createdAt int64
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Company,
		&lockedUntil, &c.FailedAttempts, &lastLogin, &c.EmailVerified,
		&c.VerificationToken, &c.ResetTokenHash, &resetExp, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	c.LockedUntil = fromMillis(lockedUntil)
	c.LastLoginAt = fromMillis(lastLogin)
	c.ResetExpiresAt = fromMillis(resetExp)
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &c, nil
}

func (s *Store) Update(ctx context.Context, c *record.Credential) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, password_hash = ?, company = ?, locked_until = ?,
			login_attempts = ?, last_login = ?, email_verified = ?, verification_token = ?,
			reset_token_hash = ?, reset_expires = ?
		WHERE id = ?`,
		c.Name, c.Email, c.PasswordHash, c.Company, toMillis(c.LockedUntil),
		c.FailedAttempts, toMillis(c.LastLoginAt), c.EmailVerified, c.VerificationToken,
		c.ResetTokenHash, toMillis(c.ResetExpiresAt),
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
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
		`INSERT INTO security_logs (type, details, user_agent, ip, timestamp) VALUES (?, ?, ?, ?, ?)`,
		inc.Type, string(details), inc.UserAgent, inc.IP, inc.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

// CountIncidents returns how many incidents of the given type are logged.
func (s *Store) CountIncidents(ctx context.Context, incidentType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_logs WHERE type = ?`, incidentType).Scan(&n)
	return n, err
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
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Without extended result codes only the primary code is reported.
	return se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE constraint failed")
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
