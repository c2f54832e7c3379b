package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Role values recognised by the system.
const (
	RoleEmployee   = "employee"
	RoleSupervisor = "supervisor"
)

// User is the persisted user entity (spec.md §3).
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	Department   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUser inserts a new user. Returns Conflict if the email is taken.
func (s *Store) CreateUser(ctx context.Context, dbtx DBTX, email, passwordHash, role string, department *string) (User, error) {
	var u User
	err := dbtx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, department)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, role, department, created_at, updated_at`,
		email, passwordHash, role, department,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Department, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, translateErr("creating user", err)
	}
	return u, nil
}

// FindUserByID returns a user by id, or NotFound.
func (s *Store) FindUserByID(ctx context.Context, dbtx DBTX, id uuid.UUID) (User, error) {
	var u User
	err := dbtx.QueryRow(ctx, `
		SELECT id, email, password_hash, role, department, created_at, updated_at
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Department, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, translateErr("getting user", err)
	}
	return u, nil
}

// FindUserByEmail returns a user by email, or NotFound.
func (s *Store) FindUserByEmail(ctx context.Context, dbtx DBTX, email string) (User, error) {
	var u User
	err := dbtx.QueryRow(ctx, `
		SELECT id, email, password_hash, role, department, created_at, updated_at
		FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Department, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, translateErr("getting user by email", err)
	}
	return u, nil
}

// ListUsers returns every user, optionally filtered by role ("" for all).
func (s *Store) ListUsers(ctx context.Context, dbtx DBTX, role string) ([]User, error) {
	var rows pgx.Rows
	var err error
	if role != "" {
		rows, err = dbtx.Query(ctx, `
			SELECT id, email, password_hash, role, department, created_at, updated_at
			FROM users WHERE role = $1 ORDER BY email`, role)
	} else {
		rows, err = dbtx.Query(ctx, `
			SELECT id, email, password_hash, role, department, created_at, updated_at
			FROM users ORDER BY email`)
	}
	if err != nil {
		return nil, translateErr("listing users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Department, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, translateErr("scanning user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating user rows", err)
	}
	return users, nil
}

// UpdatePassword sets a new password hash for the user.
func (s *Store) UpdatePassword(ctx context.Context, dbtx DBTX, id uuid.UUID, passwordHash string) error {
	tag, err := dbtx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return translateErr("updating password", err)
	}
	if tag.RowsAffected() == 0 {
		return translateErr("updating password", errNotFound)
	}
	return nil
}

// DeleteUser deletes a user; cascades to devices/vitals/alerts/attendance per schema FK.
func (s *Store) DeleteUser(ctx context.Context, dbtx DBTX, id uuid.UUID) error {
	tag, err := dbtx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translateErr("deleting user", err)
	}
	if tag.RowsAffected() == 0 {
		return translateErr("deleting user", errNotFound)
	}
	return nil
}
