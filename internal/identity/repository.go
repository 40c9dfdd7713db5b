package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// User roles. Anything else is stored as no role until the user picks one.
const (
	RoleDentist = "dentist"
	RolePatient = "patient"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailRequired is returned when an operation needs an email and
	// none was supplied.
	ErrEmailRequired = errors.New("email required")
)

// User is an authenticated account, provisioned on first sign-in.
type User struct {
	ID        uuid.UUID
	Email     string
	Role      *string
	CreatedAt time.Time
}

// HasRole reports whether the user has picked the given role.
func (u *User) HasRole(role string) bool {
	return u.Role != nil && *u.Role == role
}

// ValidRole reports whether role is one the platform knows.
func ValidRole(role string) bool {
	return role == RoleDentist || role == RolePatient
}

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores authenticated users.
type Repository struct {
	db DB
}

// NewRepository initializes a repo backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("identity: database required")
	}
	return &Repository{db: db}
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	row := r.db.QueryRow(ctx, `
		SELECT id, email, role, created_at
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

// StoreIfNew provisions the user on first sign-in. An existing user keeps
// their email and gains the role only if they had none; a role once picked
// is never overwritten here. Invalid roles are stored as no role.
func (r *Repository) StoreIfNew(ctx context.Context, email, role string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	var roleArg *string
	if ValidRole(role) {
		roleArg = &role
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET role = COALESCE(users.role, EXCLUDED.role)
		RETURNING id, email, role, created_at
	`, uuid.New(), email, roleArg)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("identity: store user: %w", err)
	}
	return user, nil
}

// List returns every user, newest first. Serves the debug listing.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email, role, created_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// RegisterDeviceToken stores an FCM device token for reminder pushes. A
// token re-registered by the same device just refreshes its owner.
func (r *Repository) RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("identity: device token required")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO device_tokens (id, user_id, token)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id
	`, uuid.New(), userID, token)
	if err != nil {
		return fmt.Errorf("identity: register device token: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
