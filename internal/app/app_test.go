package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/intake"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
)

type fakeAdapter struct {
	mu      sync.Mutex
	out     chan<- transport.Update
	sent    []string
	stopped bool
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- transport.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) push(u transport.Update) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- u
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `
telegram:
  token: "test"
logging:
  level: error
storage:
  driver: sqlite
  path: ` + filepath.Join(dir, "bot.db") + `
intake:
  timezone: UTC
delivery:
  enabled: false
`
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestAppConfirmsAndStores(t *testing.T) {
	now := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	ad := &fakeAdapter{}
	a, err := NewWithOptions(writeConfig(t), Options{
		Adapter: ad,
		Clock:   reminder.ClockFunc(func() time.Time { return now }),
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	ad.push(transport.Update{ID: 1, Message: &transport.Message{ID: 10, ChatID: 42, Text: "/start"}})
	ad.push(transport.Update{ID: 2, Message: &transport.Message{ID: 11, ChatID: 42, Text: "01.01.2030 10:00 buy milk"}})

	require.Eventually(t, func() bool { return len(ad.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := ad.texts()
	assert.Contains(t, got[1], "buy milk")
	assert.Contains(t, got[1], "01.01.2030 10:00")

	due, err := a.store.Due(context.Background(), time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(42), due[0].ChatID)

	require.NoError(t, a.ready(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSIGTERM))
	assert.True(t, ad.stopped)
	assert.NoError(t, a.Err())

	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestAppRepliesWithoutStorage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("telegram:\n  token: test\nlogging:\n  level: error\nintake:\n  timezone: UTC\n"), 0o600))

	now := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	ad := &fakeAdapter{}
	a, err := NewWithOptions(p, Options{
		Adapter: ad,
		Clock:   reminder.ClockFunc(func() time.Time { return now }),
	})
	require.NoError(t, err)
	require.Nil(t, a.store)
	require.NoError(t, a.Start(context.Background()))

	ad.push(transport.Update{ID: 1, Message: &transport.Message{ID: 10, ChatID: 42, Text: "/start"}})
	ad.push(transport.Update{ID: 2, Message: &transport.Message{ID: 11, ChatID: 42, Text: "01.01.2030 10:00 buy milk"}})

	require.Eventually(t, func() bool { return len(ad.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	texts := intake.DefaultTexts()
	assert.Equal(t, []string{texts.Greeting, texts.SaveFailed}, ad.texts())
	assert.Error(t, a.ready(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSIGINT))
}

func TestStartFailureStopsAdapter(t *testing.T) {
	ad := &fakeAdapter{}
	a, err := NewWithOptions(writeConfig(t), Options{Adapter: ad})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.Close() })
	a.delivery = delivery.New(delivery.Config{Enabled: true, Schedule: "@never"}, delivery.Deps{Store: a.store, Sender: ad})

	require.Error(t, a.Start(context.Background()))
	assert.True(t, ad.stopped)
	select {
	case <-a.Done():
	default:
		t.Fatal("supervisor still running after failed start")
	}
}

// slowStore blocks Save until released, honouring ctx.
type slowStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) Save(ctx context.Context, t reminder.Task) (reminder.Task, error) {
	close(s.entered)
	select {
	case <-s.release:
	case <-ctx.Done():
		return reminder.Task{}, ctx.Err()
	}
	t.ID = 1
	return t, nil
}

func (s *slowStore) Close() error { return nil }

func TestStopLetsInFlightBatchFinish(t *testing.T) {
	now := time.Date(2029, 12, 31, 12, 0, 0, 0, time.UTC)
	st := &slowStore{entered: make(chan struct{}), release: make(chan struct{})}
	ad := &fakeAdapter{}
	a, err := NewWithOptions(writeConfig(t), Options{
		Adapter: ad,
		Store:   st,
		Clock:   reminder.ClockFunc(func() time.Time { return now }),
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	ad.push(transport.Update{ID: 1, Message: &transport.Message{ID: 10, ChatID: 42, Text: "01.01.2030 10:00 buy milk"}})
	<-st.entered

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stopped <- a.Stop(ctx, StopSIGTERM)
	}()
	<-a.Done()
	time.Sleep(50 * time.Millisecond)
	close(st.release)
	require.NoError(t, <-stopped)

	got := ad.texts()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "buy milk")
	assert.NotEqual(t, intake.DefaultTexts().SaveFailed, got[0])
}

func TestDrainContextOutlivesParent(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := drainContext(parent, 100*time.Millisecond)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
		t.Fatal("cancelled together with parent")
	case <-time.After(20 * time.Millisecond):
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("grace did not expire")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("storage:\n  driver: postgres\n"), 0o600))
	_, err := NewWithOptions(p, Options{Adapter: &fakeAdapter{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNextBatch(t *testing.T) {
	t.Parallel()

	in := make(chan transport.Update, 8)
	for i := 1; i <= 5; i++ {
		in <- transport.Update{ID: i}
	}

	batch, ok := nextBatch(context.Background(), in, 3)
	require.True(t, ok)
	require.Len(t, batch, 3)
	assert.Equal(t, 1, batch[0].ID)

	batch, ok = nextBatch(context.Background(), in, 3)
	require.True(t, ok)
	assert.Len(t, batch, 2)

	close(in)
	_, ok = nextBatch(context.Background(), in, 3)
	assert.False(t, ok)
}

func TestNextBatchCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := nextBatch(ctx, make(chan transport.Update), 4)
	assert.False(t, ok)
}

func TestMappingDefaults(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	loc := time.UTC

	ic, batch, err := mapIntake(cfg, loc)
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, batch)
	assert.Equal(t, 5*time.Second, ic.UpdateTimeout)
	assert.NotEmpty(t, ic.Texts.Greeting)

	sc, err := mapStorage(cfg, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Second, sc.BusyTimeout)
	assert.Equal(t, storage.Config{BusyTimeout: time.Second, Location: loc}, sc)

	dc, err := mapDelivery(cfg, loc)
	require.NoError(t, err)
	assert.True(t, dc.Enabled)
	assert.Equal(t, "Reminder: {message}", dc.Template)

	oc, err := mapOps(cfg)
	require.NoError(t, err)
	assert.False(t, oc.Enabled)
	assert.Zero(t, oc.WriteTimeout)

	require.NoError(t, validate(cfg))
}

func TestMappingRejectsBadDurations(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Intake.UpdateTimeout = "soon"
	_, _, err := mapIntake(cfg, time.UTC)
	assert.Error(t, err)
	assert.Error(t, validate(cfg))
}
