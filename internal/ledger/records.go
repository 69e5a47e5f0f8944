package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clipdetect/queue/internal/detection"
)

const recordColumns = `clip_id, COALESCE(task_id, ''), status, primary_detection, secondary_detection, updated_at`

func (s *Store) Create(ctx context.Context, clipID string) error {
	if clipID == "" {
		return detection.ErrEmptyClipID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := withSQLiteRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO detections (clip_id, status, updated_at) VALUES (?, ?, ?)`,
			clipID, string(detection.StatusNotStarted), now(),
		)
		return err
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("create %s: %w", clipID, detection.ErrRecordExists)
	}
	return err
}

func (s *Store) Get(ctx context.Context, clipID string) (detection.Record, error) {
	var rec detection.Record
	err := withSQLiteRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM detections WHERE clip_id = ?`, clipID)
		var err error
		rec, err = scanRecord(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return detection.Record{}, fmt.Errorf("get %s: %w", clipID, detection.ErrRecordNotFound)
	}
	return rec, err
}

func (s *Store) MarkDispatched(ctx context.Context, clipID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	err := withSQLiteRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE detections
			SET task_id = ?, status = ?, updated_at = ?
			WHERE clip_id = ? AND status IN (?, ?)`,
			taskID, string(detection.StatusInProgress), now(),
			clipID, string(detection.StatusNotStarted), string(detection.StatusInProgress),
		)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM detections WHERE clip_id = ?`, clipID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("mark dispatched %s: %w", clipID, detection.ErrRecordNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("mark dispatched %s (%s): %w", clipID, status, detection.ErrRecordTerminal)
}

func (s *Store) Resolve(ctx context.Context, clipID, taskID string, out detection.Outcome) (bool, error) {
	if !out.Status.Terminal() {
		return false, fmt.Errorf("resolve %s: status %q is not terminal", clipID, out.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	err := withSQLiteRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE detections
			SET status = ?, primary_detection = ?, secondary_detection = ?, updated_at = ?
			WHERE clip_id = ? AND task_id = ? AND status = ?`,
			string(out.Status), out.Primary.String(), out.Secondary.String(), now(),
			clipID, taskID, string(detection.StatusInProgress),
		)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected == 1, err
}

func (s *Store) ListByStatus(ctx context.Context, status detection.Status) ([]detection.Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM detections WHERE status = ? ORDER BY updated_at, clip_id`, string(status))
}

func (s *Store) ListAll(ctx context.Context) ([]detection.Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM detections ORDER BY clip_id`)
}

func (s *Store) DeleteNegative(ctx context.Context, clipIDs []string) ([]string, error) {
	deleted := make([]string, 0, len(clipIDs))
	if len(clipIDs) == 0 {
		return deleted, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	const chunkSize = 500
	for start := 0; start < len(clipIDs); start += chunkSize {
		end := min(start+chunkSize, len(clipIDs))
		chunk := clipIDs[start:end]

		placeholders := strings.TrimRight(strings.Repeat("?,", len(chunk)), ",")
		query := fmt.Sprintf(`DELETE FROM detections
			WHERE clip_id IN (%s) AND status = ? AND primary_detection = ?
			RETURNING clip_id`, placeholders)
		args := make([]any, 0, len(chunk)+2)
		for _, id := range chunk {
			args = append(args, id)
		}
		args = append(args, string(detection.StatusCompleted), detection.CharacterNone.String())

		var ids []string
		err := withSQLiteRetry(ctx, func() error {
			ids = ids[:0]
			rows, err := s.db.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return rows.Err()
		})
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, ids...)
	}
	return deleted, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]detection.Record, error) {
	items := make([]detection.Record, 0)
	err := withSQLiteRetry(ctx, func() error {
		items = items[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			items = append(items, rec)
		}
		return rows.Err()
	})
	return items, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (detection.Record, error) {
	var (
		rec                detection.Record
		status             string
		primary, secondary string
		updated            string
	)
	if err := row.Scan(&rec.ClipID, &rec.TaskID, &status, &primary, &secondary, &updated); err != nil {
		return detection.Record{}, err
	}
	rec.Status = detection.Status(status)
	if !rec.Status.Valid() {
		return detection.Record{}, fmt.Errorf("record %s has unknown status %q", rec.ClipID, status)
	}
	rec.Primary, _ = detection.ParseCharacter(primary)
	rec.Secondary, _ = detection.ParseCharacter(secondary)
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}
