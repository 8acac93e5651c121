package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/binhbb2204/mangashelf/pkg/database"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/binhbb2204/mangashelf/pkg/utils"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username taken")
)

// DBRepository is the sqlite-backed credential store.
type DBRepository struct {
	db *sql.DB
}

func NewDBRepository(db *sql.DB) *DBRepository {
	return &DBRepository{db: db}
}

// Create inserts a user. The users.username UNIQUE constraint decides
// conflicts, so concurrent registrations cannot both succeed.
func (r *DBRepository) Create(ctx context.Context, username, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	u := &models.User{
		ID:           utils.GenerateID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `INSERT INTO users (id, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "users.username") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *DBRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username = ?`, username)
}

func (r *DBRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE id = ?`, id)
}

func (r *DBRepository) findOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// SetPassword hashes plaintext and stores it as the user's password.
func (r *DBRepository) SetPassword(ctx context.Context, u *models.User, plaintext string) error {
	hash, err := utils.HashPassword(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, now, u.ID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = now
	return nil
}

func (r *DBRepository) CheckPassword(u *models.User, plaintext string) bool {
	return utils.CheckPassword(u.PasswordHash, plaintext) == nil
}
