package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultRecentClicks is the number of click events returned by
// GetRecentClicks when the caller passes a non-positive limit.
const DefaultRecentClicks = 100

var (
	ErrNotFound      = errors.New("short url not found")
	ErrDuplicateCode = errors.New("short code already exists")
)

// URLRepository is the only source of truth for short URLs and their clicks.
type URLRepository interface {
	// Create inserts a mapping. Returns ErrDuplicateCode when the code is taken.
	Create(ctx context.Context, code, originalURL string) (*models.ShortURL, error)
	GetByCode(ctx context.Context, code string) (*models.ShortURL, error)
	Exists(ctx context.Context, code string) (bool, error)
	// RecordClickAndIncrement inserts a click event and bumps click_count as
	// one atomic operation. Returns ErrNotFound if the short URL is gone.
	RecordClickAndIncrement(ctx context.Context, shortURLID int64, visit models.Visit) error
	// GetRecentClicks returns clicks newest first.
	GetRecentClicks(ctx context.Context, shortURLID int64, limit int) ([]models.ClickEvent, error)
	ListAll(ctx context.Context) ([]models.ShortURL, error)
}

type postgresURLRepository struct {
	db *PostgresDB
}

func NewPostgresURLRepository(db *PostgresDB) URLRepository {
	return &postgresURLRepository{db: db}
}

func (r *postgresURLRepository) Create(ctx context.Context, code, originalURL string) (*models.ShortURL, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO short_urls (code, original_url)
		VALUES ($1, $2)
		RETURNING id, code, original_url, created_at, click_count
	`

	link := &models.ShortURL{}
	err := r.db.Pool.QueryRow(ctx, query, code, originalURL).Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ClickCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create short url: %w", err)
	}

	return link, nil
}

func (r *postgresURLRepository) GetByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, code, original_url, created_at, click_count
		FROM short_urls
		WHERE code = $1
	`

	link := &models.ShortURL{}
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ClickCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get short url: %w", err)
	}

	return link, nil
}

func (r *postgresURLRepository) Exists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM short_urls WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short code: %w", err)
	}

	return exists, nil
}

func (r *postgresURLRepository) RecordClickAndIncrement(ctx context.Context, shortURLID int64, visit models.Visit) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	// Single statement: the counter and the event log commit or fail together.
	query := `
		WITH bumped AS (
			UPDATE short_urls
			SET click_count = click_count + 1
			WHERE id = $1
			RETURNING id
		)
		INSERT INTO click_events (short_url_id, ip, referrer, user_agent)
		SELECT id, $2::text, $3::text, $4::text FROM bumped
	`

	result, err := r.db.Pool.Exec(ctx, query, shortURLID, visit.IP, visit.Referrer, visit.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresURLRepository) GetRecentClicks(ctx context.Context, shortURLID int64, limit int) ([]models.ClickEvent, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = DefaultRecentClicks
	}

	query := `
		SELECT id, short_url_id, created_at, ip, referrer, user_agent
		FROM click_events
		WHERE short_url_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, shortURLID, limit)
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

func (r *postgresURLRepository) ListAll(ctx context.Context) ([]models.ShortURL, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, code, original_url, created_at, click_count
		FROM short_urls
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
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

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
