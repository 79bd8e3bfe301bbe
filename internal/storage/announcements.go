package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sgamolt/clawmarket/internal/model"
)

// EnsureAnnouncement returns the legacy single-string announcement row,
// creating it with the default content on first access.
func (db *DB) EnsureAnnouncement(ctx context.Context) (model.Announcement, error) {
	var a model.Announcement
	err := db.pool.QueryRow(ctx,
		`SELECT id, content, updated_at FROM announcement ORDER BY id LIMIT 1`,
	).Scan(&a.ID, &a.Content, &a.UpdatedAt)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Announcement{}, fmt.Errorf("storage: get announcement: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO announcement DEFAULT VALUES RETURNING id, content, updated_at`,
	).Scan(&a.ID, &a.Content, &a.UpdatedAt)
	if err != nil {
		return model.Announcement{}, fmt.Errorf("storage: create announcement: %w", err)
	}
	return a, nil
}

// SetAnnouncementContent overwrites the legacy announcement string.
func (db *DB) SetAnnouncementContent(ctx context.Context, content string) error {
	a, err := db.EnsureAnnouncement(ctx)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`UPDATE announcement SET content = $1, updated_at = now() WHERE id = $2`, content, a.ID)
	if err != nil {
		return fmt.Errorf("storage: set announcement content: %w", err)
	}
	return nil
}

// ListAnnouncementItems returns active items ordered by priority descending.
func (db *DB) ListAnnouncementItems(ctx context.Context) ([]model.AnnouncementItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, content, source, active, priority, created_at, updated_at
		 FROM announcement_items WHERE active ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list announcement items: %w", err)
	}
	defer rows.Close()

	var items []model.AnnouncementItem
	for rows.Next() {
		var (
			it     model.AnnouncementItem
			source string
		)
		if err := rows.Scan(&it.ID, &it.Content, &source, &it.Active, &it.Priority, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan announcement item: %w", err)
		}
		it.Source = model.AnnouncementSource(source)
		items = append(items, it)
	}
	return items, rows.Err()
}

// LatestAutoItemUpdatedAt returns the most recent update time among auto items.
// Returns ErrNotFound when no auto items exist yet.
func (db *DB) LatestAutoItemUpdatedAt(ctx context.Context) (time.Time, error) {
	var t *time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT MAX(updated_at) FROM announcement_items WHERE source = 'auto'`).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: latest auto item: %w", err)
	}
	if t == nil {
		return time.Time{}, ErrNotFound
	}
	return *t, nil
}

// ReplaceAutoAnnouncements atomically swaps all auto-sourced items for the
// given set and rewrites the legacy announcement string as the active items
// joined with " | ". Manual items are untouched.
func (db *DB) ReplaceAutoAnnouncements(ctx context.Context, items []model.AnnouncementItem) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin replace announcements: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM announcement_items WHERE source = 'auto'`); err != nil {
		return fmt.Errorf("storage: delete auto announcements: %w", err)
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO announcement_items (content, source, active, priority)
			 VALUES ($1, 'auto', $2, $3)`,
			it.Content, it.Active, it.Priority,
		); err != nil {
			return fmt.Errorf("storage: insert auto announcement: %w", err)
		}
	}

	// Rebuild the legacy single-string field from everything still active.
	rows, err := tx.Query(ctx,
		`SELECT content FROM announcement_items WHERE active ORDER BY priority DESC, id ASC`)
	if err != nil {
		return fmt.Errorf("storage: read active announcements: %w", err)
	}
	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return fmt.Errorf("storage: scan announcement content: %w", err)
		}
		contents = append(contents, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: read active announcements: %w", err)
	}

	legacy := strings.Join(contents, " | ")
	if legacy == "" {
		legacy = model.DefaultAnnouncement
	}

	var announcementID int
	err = tx.QueryRow(ctx, `SELECT id FROM announcement ORDER BY id LIMIT 1`).Scan(&announcementID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `INSERT INTO announcement (content) VALUES ($1)`, legacy); err != nil {
			return fmt.Errorf("storage: insert legacy announcement: %w", err)
		}
	case err != nil:
		return fmt.Errorf("storage: get legacy announcement: %w", err)
	default:
		if _, err := tx.Exec(ctx,
			`UPDATE announcement SET content = $1, updated_at = now() WHERE id = $2`,
			legacy, announcementID); err != nil {
			return fmt.Errorf("storage: update legacy announcement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit replace announcements: %w", err)
	}
	return nil
}
