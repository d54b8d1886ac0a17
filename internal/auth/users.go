package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for an unknown email or wrong password.
// The two cases are indistinguishable on purpose.
var ErrBadCredentials = errors.New("invalid email or password")

// User is a provisioned account. Enrollment is set for students only.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Enrollment string    `json:"enrollment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserRepo persists accounts and refresh tokens in Postgres.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a repo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create provisions an account with a bcrypt password hash. The email is
// the unique login key.
func (r *UserRepo) Create(ctx context.Context, email, password, role, enrollment string) (User, error) {
	if email == "" || password == "" {
		return User{}, errors.New("email and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{ID: uuid.NewString(), Email: email, Role: role, Enrollment: enrollment}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, enrollment_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at
	`, u.ID, u.Email, hash, u.Role, u.Enrollment)
	if err := row.Scan(&u.CreatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate checks email+password and returns the account.
func (r *UserRepo) Authenticate(ctx context.Context, email, password string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, COALESCE(enrollment_id, ''), created_at
		FROM users WHERE email = $1
	`, email)
	var u User
	var hash []byte
	if err := row.Scan(&u.ID, &u.Email, &hash, &u.Role, &u.Enrollment, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrBadCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *UserRepo) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *UserRepo) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
