package manga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/binhbb2204/mangashelf/pkg/utils"
)

var ErrNotFound = errors.New("manga not found")

// Filter narrows List. Empty fields match everything.
type Filter struct {
	OwnerID string
}

// Repository is the content store consumed by the handlers.
type Repository interface {
	Create(ctx context.Context, title, ownerID string) (*models.Manga, error)
	FindByID(ctx context.Context, id string) (*models.Manga, error)
	List(ctx context.Context, filter Filter, limit, skip int) ([]*models.Manga, error)
	Save(ctx context.Context, m *models.Manga) error
	Delete(ctx context.Context, m *models.Manga) error

	SetFavorite(ctx context.Context, userID, mangaID string, favorite bool) error
	IsFavorite(ctx context.Context, userID, mangaID string) (bool, error)
	ListFavorites(ctx context.Context, userID string, limit, skip int) ([]*models.Manga, error)
}

type DBRepository struct {
	db *sql.DB
}

func NewDBRepository(db *sql.DB) *DBRepository {
	return &DBRepository{db: db}
}

const mangaColumns = `m.id, m.title, m.owner_id, m.page_urls, m.created_at, m.updated_at`

func (r *DBRepository) Create(ctx context.Context, title, ownerID string) (*models.Manga, error) {
	now := time.Now().UTC()
	m := &models.Manga{
		ID:        utils.GenerateID(),
		Title:     title,
		OwnerID:   ownerID,
		PageURLs:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `INSERT INTO manga (id, title, owner_id, page_urls, created_at, updated_at) VALUES (?, ?, ?, '[]', ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.Title, m.OwnerID, m.CreatedAt, m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert manga: %w", err)
	}
	return m, nil
}

func (r *DBRepository) FindByID(ctx context.Context, id string) (*models.Manga, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mangaColumns+` FROM manga m WHERE m.id = ?`, id)
	m, err := scanManga(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query manga: %w", err)
	}
	return m, nil
}

// List returns mangas in insertion order. A limit of 0 returns everything
// after skip.
func (r *DBRepository) List(ctx context.Context, filter Filter, limit, skip int) ([]*models.Manga, error) {
	query := `SELECT ` + mangaColumns + ` FROM manga m WHERE 1=1`
	args := []interface{}{}

	if filter.OwnerID != "" {
		query += ` AND m.owner_id = ?`
		args = append(args, filter.OwnerID)
	}

	query += ` ORDER BY m.seq`
	query, args = paginate(query, args, limit, skip)

	return r.queryMangas(ctx, query, args...)
}

func (r *DBRepository) Save(ctx context.Context, m *models.Manga) error {
	pages, err := json.Marshal(nonNil(m.PageURLs))
	if err != nil {
		return fmt.Errorf("serialize pages: %w", err)
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE manga SET title = ?, page_urls = ?, updated_at = ? WHERE id = ?`,
		m.Title, string(pages), now, m.ID)
	if err != nil {
		return fmt.Errorf("update manga: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	m.UpdatedAt = now
	return nil
}

// Delete removes the manga together with every favorite pointing at it.
func (r *DBRepository) Delete(ctx context.Context, m *models.Manga) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM manga WHERE id = ?`, m.ID)
	if err != nil {
		return fmt.Errorf("delete manga: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE manga_id = ?`, m.ID); err != nil {
		return fmt.Errorf("delete favorites: %w", err)
	}
	return tx.Commit()
}

// SetFavorite makes the (user, manga) favorite exist iff favorite is true.
// Both directions are single statements and idempotent.
func (r *DBRepository) SetFavorite(ctx context.Context, userID, mangaID string, favorite bool) error {
	if !favorite {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = ? AND manga_id = ?`, userID, mangaID); err != nil {
			return fmt.Errorf("delete favorite: %w", err)
		}
		return nil
	}

	now := time.Now().UTC()
	query := `INSERT INTO favorites (user_id, manga_id, created_at, updated_at)
              VALUES (?, ?, ?, ?)
              ON CONFLICT(user_id, manga_id) DO UPDATE SET updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, userID, mangaID, now, now); err != nil {
		return fmt.Errorf("upsert favorite: %w", err)
	}
	return nil
}

func (r *DBRepository) IsFavorite(ctx context.Context, userID, mangaID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = ? AND manga_id = ?)`,
		userID, mangaID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query favorite: %w", err)
	}
	return exists, nil
}

// ListFavorites joins favorites to manga in the order they were favorited.
// Favorites whose manga no longer exists are skipped by the join.
func (r *DBRepository) ListFavorites(ctx context.Context, userID string, limit, skip int) ([]*models.Manga, error) {
	query := `SELECT ` + mangaColumns + `
        FROM favorites f
        JOIN manga m ON m.id = f.manga_id
        WHERE f.user_id = ?
        ORDER BY f.seq`
	query, args := paginate(query, []interface{}{userID}, limit, skip)
	return r.queryMangas(ctx, query, args...)
}

func (r *DBRepository) queryMangas(ctx context.Context, query string, args ...interface{}) ([]*models.Manga, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mangas: %w", err)
	}
	defer rows.Close()

	list := []*models.Manga{}
	for rows.Next() {
		m, err := scanManga(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manga: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanManga(s scanner) (*models.Manga, error) {
	var m models.Manga
	var pagesJSON string
	if err := s.Scan(&m.ID, &m.Title, &m.OwnerID, &pagesJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.PageURLs = []string{}
	if pagesJSON != "" {
		if err := json.Unmarshal([]byte(pagesJSON), &m.PageURLs); err != nil {
			return nil, fmt.Errorf("parse page_urls: %w", err)
		}
	}
	return &m, nil
}

// paginate appends LIMIT/OFFSET. sqlite needs a LIMIT before OFFSET, and
// LIMIT -1 means unbounded.
func paginate(query string, args []interface{}, limit, skip int) (string, []interface{}) {
	if limit <= 0 {
		limit = -1
	}
	if skip < 0 {
		skip = 0
	}
	return query + ` LIMIT ? OFFSET ?`, append(args, limit, skip)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
