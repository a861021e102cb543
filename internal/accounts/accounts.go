// Package accounts stores website admin accounts in SQLite with bcrypt
// password hashes.
package accounts

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	logx "doggobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const DefaultPath = "doggobot.db"

// MaxPasswordLen is bcrypt's input limit in bytes.
const MaxPasswordLen = 72

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingFields      = errors.New("missing fields")
	ErrPasswordTooLong    = errors.New("password is too long")
)

type User struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}

type Store struct {
	db   *sql.DB
	log  logx.Logger
	cost int

	// compared against when the email is unknown, so both paths cost a hash
	dummyHash []byte
}

type Option func(*Store)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// Open opens (creating if needed) the accounts database at path and applies
// the schema.
func Open(path string, log logx.Logger, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	s := &Store{db: db, log: log.With(logx.String("comp", "accounts")), cost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate accounts db: %w", err)
	}
	s.dummyHash, err = bcrypt.GenerateFromPassword([]byte("doggobot"), s.cost)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. Emails are compared case-insensitively.
func (s *Store) Register(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return User{}, ErrMissingFields
	}
	if len(password) > MaxPasswordLen {
		return User{}, ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(name, email, password_hash) VALUES(?,?,?)`,
		name, email, string(hash),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	id, _ := res.LastInsertId()
	s.log.Info("account registered", logx.Int64("user_id", id))
	return User{ID: id, Name: name, Email: email, CreatedAt: time.Now().UTC()}, nil
}

// Authenticate returns the account when email and password match.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var (
		u       User
		hash    string
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	u.CreatedAt = parseCreated(created.String)
	return u, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parseCreated reads CURRENT_TIMESTAMP text. Drivers that already convert
// TIMESTAMP columns hand back RFC 3339.
func parseCreated(v string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
