package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/reminder"
)

var (
	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("task not found")
	ErrClosed      = errors.New("store closed")
)

// PersistenceError wraps any storage failure (connection loss, constraint
// violation, timeout).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return "storage " + e.Op + ": failed"
	}
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Store is the system of record for reminder tasks.
//
// Save assigns an identity to an unsaved task. Due and MarkDelivered form the
// consumer side used by the delivery service.
type Store interface {
	Save(ctx context.Context, t reminder.Task) (reminder.Task, error)
	Due(ctx context.Context, now time.Time, limit int) ([]reminder.Task, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	Close() error
}

// Pinger is implemented by stores that can report liveness of their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures storage.
//
// If Driver is empty or "none", Open returns (nil, nil).
type Config struct {
	Driver       string
	Path         string // sqlite database file, or file-driver path prefix
	DSN          string // postgres connection string
	BusyTimeout  time.Duration
	MaxOpenConns int
	Location     *time.Location
}

const wallLayout = "2006-01-02 15:04"

func formatWall(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(wallLayout)
}

// parseWall reads a stored timestamp back as local wall-clock time in loc.
// Drivers may hand back either the stored text or an RFC 3339 rendering of a
// timestamp column; only the wall-clock fields are kept.
func parseWall(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{wallLayout, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", time.RFC3339Nano} {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func checkUnsaved(t reminder.Task) error {
	if t.Saved() {
		return fmt.Errorf("task %d is already saved", t.ID)
	}
	if t.ChatID == 0 || t.Message == "" || t.DateTime.IsZero() {
		return reminder.ErrInvalidTask
	}
	return nil
}
