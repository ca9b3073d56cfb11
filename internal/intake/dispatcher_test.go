package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
)

func newTestDispatcher(store storage.Store, sender transport.Sender, timeout time.Duration) *Dispatcher {
	return New(Config{Location: time.UTC, UpdateTimeout: timeout}, Deps{
		Store:  store,
		Sender: sender,
		Clock:  reminder.ClockFunc(func() time.Time { return testNow }),
	})
}

func TestProcessStoresAndConfirms(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	sender := &fakeSender{}
	x := newTestDispatcher(store, sender, time.Second)

	res := x.Process(context.Background(), []transport.Update{textUpdate(1, 42, "01.01.2099 10:00 Buy milk")})
	require.Len(t, res, 1)
	require.Equal(t, StateConfirmed, res[0].State)
	require.NoError(t, res[0].Err)

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "Buy milk", saved[0].Message)
	assert.True(t, saved[0].DateTime.Equal(time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, res[0].Task.Equal(saved[0]))

	texts := sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "01.01.2099 10:00")
	assert.Contains(t, texts[0], "Buy milk")
	assert.Equal(t, int64(42), sender.sent[0].to.ChatID)
}

func TestProcessRejects(t *testing.T) {
	t.Parallel()
	texts := DefaultTexts()

	tests := []struct {
		name  string
		in    string
		state State
		reply string
	}{
		{name: "past date", in: "01.01.2000 10:00 Buy milk", state: StateRejected, reply: texts.InvalidDate},
		{name: "invalid date", in: "32.01.2099 10:00 Buy milk", state: StateRejected, reply: texts.InvalidDate},
		{name: "malformed", in: "not a valid request", state: StateRejected, reply: texts.InvalidMessage},
		{name: "start", in: "/start", state: StateGreeted, reply: texts.Greeting},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &memStore{}
			sender := &fakeSender{}
			x := newTestDispatcher(store, sender, time.Second)

			res := x.Process(context.Background(), []transport.Update{textUpdate(1, 42, tt.in)})
			require.Len(t, res, 1)
			assert.Equal(t, tt.state, res[0].State)
			assert.Empty(t, store.saved())
			assert.Equal(t, []string{tt.reply}, sender.texts())
		})
	}
}

func TestProcessStorageOutage(t *testing.T) {
	t.Parallel()
	store := &memStore{err: errors.New("connection refused")}
	sender := &fakeSender{}
	x := newTestDispatcher(store, sender, time.Second)

	res := x.Process(context.Background(), []transport.Update{textUpdate(1, 42, "01.01.2099 10:00 Buy milk")})
	require.Len(t, res, 1)
	assert.Equal(t, StatePersistFailed, res[0].State)
	assert.ErrorIs(t, res[0].Err, storage.ErrPersistence)
	assert.False(t, res[0].Task.Saved())
	assert.Equal(t, []string{DefaultTexts().SaveFailed}, sender.texts())
}

func TestProcessSaveTimeout(t *testing.T) {
	t.Parallel()
	store := &memStore{block: true}
	sender := &fakeSender{}
	x := newTestDispatcher(store, sender, 20*time.Millisecond)

	res := x.Process(context.Background(), []transport.Update{textUpdate(1, 42, "01.01.2099 10:00 Buy milk")})
	require.Len(t, res, 1)
	assert.Equal(t, StatePersistFailed, res[0].State)
	assert.ErrorIs(t, res[0].Err, storage.ErrPersistence)
	assert.ErrorIs(t, res[0].Err, context.DeadlineExceeded)
}

func TestProcessCancelledStillReplies(t *testing.T) {
	t.Parallel()
	store := &memStore{block: true}
	sender := &fakeSender{}
	x := newTestDispatcher(store, sender, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := x.Process(ctx, []transport.Update{textUpdate(1, 42, "01.01.2099 10:00 Buy milk")})
	require.Len(t, res, 1)
	assert.Equal(t, StatePersistFailed, res[0].State)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, DefaultTexts().SaveFailed, sender.sent[0].text)
	assert.NoError(t, sender.sent[0].ctxErr)
}

func TestProcessNoStore(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	x := newTestDispatcher(nil, sender, time.Second)

	res := x.Process(context.Background(), []transport.Update{textUpdate(1, 42, "01.01.2099 10:00 Buy milk")})
	assert.Equal(t, StatePersistFailed, res[0].State)
	assert.ErrorIs(t, res[0].Err, storage.ErrPersistence)
}

func TestProcessBatchKeepsGoing(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	sender := &fakeSender{err: errors.New("telegram down")}
	x := newTestDispatcher(store, sender, time.Second)

	res := x.Process(context.Background(), []transport.Update{
		{ID: 1},
		textUpdate(2, 42, "garbage"),
		textUpdate(3, 42, "01.01.2099 10:00 First"),
		textUpdate(4, 43, "02.01.2099 11:30 Second"),
	})
	require.Len(t, res, 4)
	assert.Equal(t, StateSkipped, res[0].State)
	assert.Equal(t, StateRejected, res[1].State)
	assert.Equal(t, reminder.KindMalformedRequest, res[1].Kind)
	// reply failures are swallowed
	assert.Equal(t, StateConfirmed, res[2].State)
	assert.Equal(t, StateConfirmed, res[3].State)

	saved := store.saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "First", saved[0].Message)
	assert.Equal(t, "Second", saved[1].Message)
	assert.Len(t, sender.texts(), 3)
}

func TestProcessRecoversPanic(t *testing.T) {
	t.Parallel()
	store := &memStore{panics: true}
	sender := &fakeSender{}
	x := newTestDispatcher(store, sender, time.Second)

	res := x.Process(context.Background(), []transport.Update{
		textUpdate(1, 42, "01.01.2099 10:00 Buy milk"),
		textUpdate(2, 42, "/start"),
	})
	require.Len(t, res, 2)
	assert.Equal(t, StateFailed, res[0].State)
	assert.ErrorIs(t, res[0].Err, ErrPanic)
	assert.Equal(t, int64(42), res[0].ChatID)
	assert.Equal(t, StateGreeted, res[1].State)
}

func TestProcessUsesFreshClock(t *testing.T) {
	t.Parallel()
	now := time.Date(2099, 1, 1, 9, 59, 0, 0, time.UTC)
	store := &memStore{}
	sender := &fakeSender{}
	x := New(Config{Location: time.UTC}, Deps{
		Store:  store,
		Sender: sender,
		Clock:  reminder.ClockFunc(func() time.Time { return now }),
	})

	in := []transport.Update{textUpdate(1, 42, "01.01.2099 10:00 Buy milk")}
	assert.Equal(t, StateConfirmed, x.Process(context.Background(), in)[0].State)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateRejected, x.Process(context.Background(), in)[0].State)
}

func TestApplyTexts(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	x := newTestDispatcher(&memStore{}, sender, time.Second)
	x.Apply(Config{Location: time.UTC, Texts: Texts{Greeting: "Hi"}})

	x.Process(context.Background(), []transport.Update{textUpdate(1, 42, "/start"), textUpdate(2, 42, "nope")})
	assert.Equal(t, []string{"Hi", DefaultTexts().InvalidMessage}, sender.texts())
}

func TestRender(t *testing.T) {
	t.Parallel()
	at := time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t,
		`Reminder saved: "Buy milk". I will remind you on 01.01.2099 10:00.`,
		Render(DefaultTexts().Confirmation, "Buy milk", at))
	assert.Equal(t, "Reminder: Buy milk", Render(DefaultTexts().Delivery, "Buy milk", at))
}
