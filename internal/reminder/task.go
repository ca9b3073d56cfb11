package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTask = errors.New("invalid task")

// Task is a scheduled reminder: deliver Message to ChatID at DateTime.
//
// ID is zero until the store assigns one. DeliveredAt is zero until the
// delivery consumer marks the task as sent.
type Task struct {
	ID          int64
	ChatID      int64
	Message     string
	DateTime    time.Time
	DeliveredAt time.Time
}

// NewTask builds an unsaved task from already validated input.
func NewTask(chatID int64, message string, dateTime time.Time) (Task, error) {
	if chatID == 0 {
		return Task{}, fmt.Errorf("%w: chat id is required", ErrInvalidTask)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Task{}, fmt.Errorf("%w: message is empty", ErrInvalidTask)
	}
	if dateTime.IsZero() {
		return Task{}, fmt.Errorf("%w: date-time is required", ErrInvalidTask)
	}
	return Task{
		ChatID:   chatID,
		Message:  message,
		DateTime: dateTime.Truncate(time.Minute),
	}, nil
}

// Saved reports whether the store has assigned an identity.
func (t Task) Saved() bool { return t.ID != 0 }

func (t Task) IsDelivered() bool { return !t.DeliveredAt.IsZero() }

// Equal compares every field, identity included.
func (t Task) Equal(o Task) bool {
	return t.ID == o.ID &&
		t.ChatID == o.ChatID &&
		t.Message == o.Message &&
		t.DateTime.Equal(o.DateTime) &&
		t.DeliveredAt.Equal(o.DeliveredAt)
}

func (t Task) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task{id=%d chat=%d at=%s message=%q", t.ID, t.ChatID, Format(t.DateTime), t.Message)
	if t.IsDelivered() {
		fmt.Fprintf(&b, " delivered=%s", t.DeliveredAt.Format(time.RFC3339))
	}
	b.WriteString("}")
	return b.String()
}
