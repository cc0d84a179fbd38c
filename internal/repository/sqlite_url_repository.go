package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type sqliteURLRepository struct {
	db *SQLiteDB
}

func NewSQLiteURLRepository(db *SQLiteDB) URLRepository {
	return &sqliteURLRepository{db: db}
}

func (r *sqliteURLRepository) Create(ctx context.Context, code, originalURL string) (*models.ShortURL, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO short_urls (code, original_url, created_at)
		VALUES (?, ?, ?)
		RETURNING id, code, original_url, created_at, click_count
	`

	link := &models.ShortURL{}
	err := r.db.DB.QueryRowContext(ctx, query, code, originalURL, time.Now().UTC()).Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ClickCount,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create short url: %w", err)
	}

	return link, nil
}

func (r *sqliteURLRepository) GetByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, code, original_url, created_at, click_count
		FROM short_urls
		WHERE code = ?
	`

	link := &models.ShortURL{}
	err := r.db.DB.QueryRowContext(ctx, query, code).Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ClickCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get short url: %w", err)
	}

	return link, nil
}

func (r *sqliteURLRepository) Exists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM short_urls WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short code: %w", err)
	}

	return exists, nil
}

// RecordClickAndIncrement runs the update and the insert in one transaction.
func (r *sqliteURLRepository) RecordClickAndIncrement(ctx context.Context, shortURLID int64, visit models.Visit) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin click transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE short_urls SET click_count = click_count + 1 WHERE id = ?`, shortURLID)
	if err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO click_events (short_url_id, created_at, ip, referrer, user_agent) VALUES (?, ?, ?, ?, ?)`,
		shortURLID,
		time.Now().UTC(),
		visit.IP,
		visit.Referrer,
		visit.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit click: %w", err)
	}

	return nil
}

func (r *sqliteURLRepository) GetRecentClicks(ctx context.Context, shortURLID int64, limit int) ([]models.ClickEvent, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = DefaultRecentClicks
	}

	query := `
		SELECT id, short_url_id, created_at, ip, referrer, user_agent
		FROM click_events
		WHERE short_url_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.DB.QueryContext(ctx, query, shortURLID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	defer rows.Close()

	clicks := make([]models.ClickEvent, 0)
	for rows.Next() {
		var click models.ClickEvent
		if err := rows.Scan(
			&click.ID,
			&click.ShortURLID,
			&click.Timestamp,
			&click.IP,
			&click.Referrer,
			&click.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, click)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	return clicks, nil
}

func (r *sqliteURLRepository) ListAll(ctx context.Context) ([]models.ShortURL, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.DB.QueryContext(ctx, `
		SELECT id, code, original_url, created_at, click_count
		FROM short_urls
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list short urls: %w", err)
	}
	defer rows.Close()

	links := make([]models.ShortURL, 0)
	for rows.Next() {
		var link models.ShortURL
		if err := rows.Scan(&link.ID, &link.Code, &link.OriginalURL, &link.CreatedAt, &link.ClickCount); err != nil {
			return nil, fmt.Errorf("failed to scan short url: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating short urls: %w", err)
	}

	return links, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
