package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/transport"
)

type sentMsg struct {
	to     transport.ChatTarget
	text   string
	ctxErr error
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (s *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{to: to, text: text, ctxErr: ctx.Err()})
	if s.err != nil {
		return transport.MessageRef{}, s.err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(s.sent)}, nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.text)
	}
	return out
}

type memStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  []reminder.Task
	err    error
	block  bool // wait for ctx cancellation
	panics bool
}

func (s *memStore) Save(ctx context.Context, t reminder.Task) (reminder.Task, error) {
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return reminder.Task{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return reminder.Task{}, s.err
	}
	s.nextID++
	t.ID = s.nextID
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *memStore) Due(context.Context, time.Time, int) ([]reminder.Task, error) {
	return nil, errors.New("not implemented")
}

func (s *memStore) MarkDelivered(context.Context, int64, time.Time) error {
	return errors.New("not implemented")
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saved() []reminder.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reminder.Task(nil), s.tasks...)
}

func textUpdate(id int, chatID int64, text string) transport.Update {
	return transport.Update{ID: id, Message: &transport.Message{ID: id, ChatID: chatID, Text: text}}
}
