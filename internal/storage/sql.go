package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// sqlStore implements Store on top of sqlx for both SQL drivers. Queries are
// written with '?' placeholders and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
	loc *time.Location
}

type taskRow struct {
	ID          int64          `db:"id"`
	ChatID      int64          `db:"chat_id"`
	Message     string         `db:"message"`
	DateTime    string         `db:"date_time"`
	DeliveredAt sql.NullString `db:"delivered_at"`
}

func (r taskRow) task(loc *time.Location) (reminder.Task, error) {
	at, err := parseWall(r.DateTime, loc)
	if err != nil {
		return reminder.Task{}, fmt.Errorf("task %d date_time: %w", r.ID, err)
	}
	t := reminder.Task{ID: r.ID, ChatID: r.ChatID, Message: r.Message, DateTime: at}
	if r.DeliveredAt.Valid && r.DeliveredAt.String != "" {
		d, err := time.Parse(time.RFC3339Nano, r.DeliveredAt.String)
		if err != nil {
			return reminder.Task{}, fmt.Errorf("task %d delivered_at: %w", r.ID, err)
		}
		t.DeliveredAt = d
	}
	return t, nil
}

// migrate applies outstanding versioned migrations in order.
func (s *sqlStore) migrate(ctx context.Context, steps []migration) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	current := 0
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for _, m := range steps {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Debug("migration applied", logx.Int("version", m.version))
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return wrapErr("ping", ErrClosed)
	}
	return wrapErr("ping", s.db.PingContext(ctx))
}

func (s *sqlStore) Save(ctx context.Context, t reminder.Task) (reminder.Task, error) {
	if s == nil || s.db == nil {
		return reminder.Task{}, wrapErr("save", ErrClosed)
	}
	if err := checkUnsaved(t); err != nil {
		return reminder.Task{}, wrapErr("save", err)
	}
	var id int64
	err := s.db.QueryRowxContext(ctx,
		s.db.Rebind(`INSERT INTO notification_task (chat_id, message, date_time, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`),
		t.ChatID, t.Message, formatWall(t.DateTime, s.loc), time.Now().UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return reminder.Task{}, wrapErr("save", err)
	}
	t.ID = id
	return t, nil
}

func (s *sqlStore) Due(ctx context.Context, now time.Time, limit int) ([]reminder.Task, error) {
	if s == nil || s.db == nil {
		return nil, wrapErr("due", ErrClosed)
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT id, chat_id, message, date_time, delivered_at
		 FROM notification_task
		 WHERE delivered_at IS NULL AND date_time <= ?
		 ORDER BY date_time, id
		 LIMIT ?`),
		formatWall(now, s.loc), limit,
	)
	if err != nil {
		return nil, wrapErr("due", err)
	}
	out := make([]reminder.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.task(s.loc)
		if err != nil {
			return nil, wrapErr("due", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *sqlStore) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	if s == nil || s.db == nil {
		return wrapErr("mark_delivered", ErrClosed)
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE notification_task SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`),
		at.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return wrapErr("mark_delivered", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("mark_delivered", err)
	}
	if n == 0 {
		return wrapErr("mark_delivered", fmt.Errorf("%w: id %d", ErrNotFound, id))
	}
	return nil
}

// get loads one task by id; used by tests and diagnostics.
func (s *sqlStore) get(ctx context.Context, id int64) (reminder.Task, error) {
	var r taskRow
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT id, chat_id, message, date_time, delivered_at FROM notification_task WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Task{}, ErrNotFound
	}
	if err != nil {
		return reminder.Task{}, err
	}
	return r.task(s.loc)
}
