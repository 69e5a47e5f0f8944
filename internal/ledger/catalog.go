package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clipdetect/queue/internal/detection"
)

// The clips and categories tables belong to the surrounding application. The
// upserts exist so tests and local tooling can seed a population.

func (s *Store) UpsertCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("category name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return withSQLiteRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO categories (name) VALUES (?)`, name)
		return err
	})
}

func (s *Store) UpsertClip(ctx context.Context, clip detection.Clip) error {
	if clip.ID == "" || clip.VideoID == "" || clip.Category == "" {
		return errors.New("clip id, video id and category are required")
	}
	if err := s.UpsertCategory(ctx, clip.Category); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return withSQLiteRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO clips (clip_id, video_id, category) VALUES (?, ?, ?)
			ON CONFLICT(clip_id) DO UPDATE SET video_id = excluded.video_id, category = excluded.category`,
			clip.ID, clip.VideoID, clip.Category,
		)
		return err
	})
}

func (s *Store) ClipsInCategory(ctx context.Context, category string) ([]detection.Clip, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE name = ?`, category).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", category, detection.ErrCategoryNotFound)
	}
	if err != nil {
		return nil, err
	}

	items := make([]detection.Clip, 0)
	err = withSQLiteRetry(ctx, func() error {
		items = items[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT clip_id, video_id, category FROM clips WHERE category = ? ORDER BY clip_id`, category)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c detection.Clip
			if err := rows.Scan(&c.ID, &c.VideoID, &c.Category); err != nil {
				return err
			}
			items = append(items, c)
		}
		return rows.Err()
	})
	return items, err
}

func (s *Store) ClipByVideoID(ctx context.Context, videoID string) (detection.Clip, error) {
	var c detection.Clip
	err := s.db.QueryRowContext(ctx,
		`SELECT clip_id, video_id, category FROM clips WHERE video_id = ?`, videoID,
	).Scan(&c.ID, &c.VideoID, &c.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return detection.Clip{}, fmt.Errorf("video %q: %w", videoID, detection.ErrClipNotFound)
	}
	return c, err
}
