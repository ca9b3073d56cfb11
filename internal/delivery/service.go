package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"remindbot/internal/intake"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/telemetry"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ErrBusy is returned by RunOnce while another run is in flight.
var ErrBusy = errors.New("delivery run already in progress")

type Config struct {
	Enabled    bool
	Schedule   string
	BatchSize  int
	RatePerSec float64
	Timeout    time.Duration // per run
	Location   *time.Location
	Template   string // see intake.Texts.Delivery
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 50 * time.Second
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if strings.TrimSpace(c.Template) == "" {
		c.Template = intake.DefaultTexts().Delivery
	}
	return c
}

// Report summarizes one run.
type Report struct {
	Due        int
	Sent       int
	SendFailed int
	MarkFailed int
}

type Deps struct {
	Store   storage.Store
	Sender  transport.Sender
	Clock   reminder.Clock
	Log     logx.Logger
	Metrics *telemetry.DeliveryMetrics
	Tracer  trace.Tracer
}

type Service struct {
	store   storage.Store
	sender  transport.Sender
	clock   reminder.Clock
	log     logx.Logger
	metrics *telemetry.DeliveryMetrics
	tracer  trace.Tracer
	parser  cron.Parser

	running atomic.Bool

	mu      sync.Mutex
	cfg     Config
	spec    string
	limiter *rate.Limiter
	c       *cron.Cron
	entry   cron.EntryID
	baseCtx context.Context
}

func New(cfg Config, d Deps) *Service {
	cfg = cfg.withDefaults()
	if d.Clock == nil {
		d.Clock = reminder.SystemClock{Location: cfg.Location}
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Service{
		store:   d.Store,
		sender:  d.Sender,
		clock:   d.Clock,
		log:     d.Log.With(logx.String("comp", "delivery")),
		metrics: d.Metrics,
		tracer:  d.Tracer,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

// Validate checks that cfg's schedule parses.
func Validate(cfg Config) error {
	spec, err := cronSpec(cfg.Schedule)
	if err != nil {
		return err
	}
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := p.Parse(spec); err != nil {
		return fmt.Errorf("invalid delivery schedule %q: %w", cfg.Schedule, err)
	}
	return nil
}

// Start registers the schedule. It is a no-op when disabled, already
// started, or without a store. ctx bounds every run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	if !s.cfg.Enabled {
		s.log.Info("delivery disabled")
		return nil
	}
	if s.store == nil {
		s.log.Warn("storage disabled; delivery stays idle")
		return nil
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
	if err := s.registerLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("service started", logx.String("schedule", s.spec), logx.Int("batch", s.cfg.BatchSize))
	return nil
}

func (s *Service) registerLocked() error {
	spec, err := cronSpec(s.cfg.Schedule)
	if err != nil {
		return err
	}
	if s.entry != 0 {
		s.c.Remove(s.entry)
		s.entry = 0
	}
	id, err := s.c.AddFunc(spec, s.tick)
	if err != nil {
		return fmt.Errorf("invalid delivery schedule %q: %w", spec, err)
	}
	s.entry = id
	s.spec = spec
	return nil
}

// Stop stops triggering and waits for an in-flight run (bounded by ctx).
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entry = 0
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// Apply swaps config; schedule and enable changes take effect immediately
// when the service has been started.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if old.RatePerSec != cfg.RatePerSec {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	}
	started := s.baseCtx != nil
	running := s.c != nil
	var err error
	if running && cfg.Enabled && old.Schedule != cfg.Schedule {
		err = s.registerLocked()
		if err == nil {
			s.log.Info("schedule updated", logx.String("schedule", s.spec))
		}
	}
	ctx := s.baseCtx
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	case !running && cfg.Enabled && started:
		err = s.Start(ctx)
	}
	return err
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	rep, err := s.RunOnce(ctx)
	if errors.Is(err, ErrBusy) {
		s.log.Debug("tick skipped; previous run still in flight")
		return
	}
	if err != nil {
		s.log.Warn("delivery run failed", logx.Err(err))
		return
	}
	if rep.Due > 0 {
		s.log.Info("delivery run done",
			logx.Int("due", rep.Due),
			logx.Int("sent", rep.Sent),
			logx.Int("send_failed", rep.SendFailed),
			logx.Int("mark_failed", rep.MarkFailed),
		)
	}
}

// RunOnce delivers up to one batch of due reminders. Only one run executes
// at a time.
func (s *Service) RunOnce(ctx context.Context) (rep Report, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrBusy
	}
	defer s.running.Store(false)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "delivery.tick")
	defer func() {
		span.SetAttributes(
			attribute.Int("delivery.due", rep.Due),
			attribute.Int("delivery.sent", rep.Sent),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.store == nil || s.sender == nil {
		return rep, errors.New("delivery requires storage and a sender")
	}
	now := s.clock.Now()
	due, err := s.store.Due(ctx, now, cfg.BatchSize)
	if err != nil {
		return rep, err
	}
	rep.Due = len(due)

	for _, t := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return rep, err
		}
		text := intake.Render(cfg.Template, t.Message, t.DateTime.In(cfg.Location))
		to := transport.ChatTarget{ChatID: t.ChatID}
		if _, err := s.sender.SendText(ctx, to, text, nil); err != nil {
			rep.SendFailed++
			s.metrics.Failed(ctx, "send")
			s.log.Warn("failed to deliver reminder", logx.Int64("task_id", t.ID), logx.Int64("chat_id", t.ChatID), logx.Err(err))
			continue
		}
		if err := s.store.MarkDelivered(ctx, t.ID, s.clock.Now()); err != nil {
			rep.MarkFailed++
			s.metrics.Failed(ctx, "mark")
			s.log.Error("reminder sent but not marked delivered", logx.Int64("task_id", t.ID), logx.Err(err))
			continue
		}
		rep.Sent++
		s.metrics.Sent(ctx)
		s.log.Debug("reminder delivered", logx.Int64("task_id", t.ID), logx.Int64("chat_id", t.ChatID))
	}
	return rep, nil
}
