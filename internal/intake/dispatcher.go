package intake

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/telemetry"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const defaultUpdateTimeout = 5 * time.Second

// ErrPanic marks a result whose processing panicked.
var ErrPanic = errors.New("update processing panicked")

// State is the terminal state of one processed update.
type State string

const (
	StateSkipped       State = "skipped"
	StateGreeted       State = "greeted"
	StateRejected      State = "rejected"
	StateConfirmed     State = "confirmed"
	StatePersistFailed State = "persist_failed"
	StateFailed        State = "failed"
)

type Result struct {
	UpdateID int
	ChatID   int64
	State    State
	Kind     reminder.ErrorKind // set for StateRejected
	Task     reminder.Task      // set for StateConfirmed
	Err      error
}

type Config struct {
	Location      *time.Location
	UpdateTimeout time.Duration
	Texts         Texts
}

type Deps struct {
	Store   storage.Store
	Sender  transport.Sender
	Clock   reminder.Clock
	Log     logx.Logger
	Metrics *telemetry.IntakeMetrics
	Tracer  trace.Tracer
}

// Dispatcher processes update batches sequentially, in order.
type Dispatcher struct {
	store   storage.Store
	sender  transport.Sender
	clock   reminder.Clock
	log     logx.Logger
	metrics *telemetry.IntakeMetrics
	tracer  trace.Tracer

	cfg atomic.Pointer[Config]
}

func New(cfg Config, d Deps) *Dispatcher {
	if d.Clock == nil {
		d.Clock = reminder.SystemClock{Location: cfg.Location}
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	x := &Dispatcher{
		store:   d.Store,
		sender:  d.Sender,
		clock:   d.Clock,
		log:     d.Log.With(logx.String("comp", "intake")),
		metrics: d.Metrics,
		tracer:  d.Tracer,
	}
	x.Apply(cfg)
	return x
}

// Apply swaps timeouts and texts for subsequent updates.
func (x *Dispatcher) Apply(cfg Config) {
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = defaultUpdateTimeout
	}
	cfg.Texts = cfg.Texts.WithDefaults()
	x.cfg.Store(&cfg)
}

func (x *Dispatcher) config() Config { return *x.cfg.Load() }

// Process handles every update of the batch in order and returns one Result
// per update. A failing update never aborts the batch.
func (x *Dispatcher) Process(ctx context.Context, updates []transport.Update) []Result {
	out := make([]Result, 0, len(updates))
	for _, u := range updates {
		out = append(out, x.processOne(ctx, u))
	}
	return out
}

func (x *Dispatcher) processOne(ctx context.Context, u transport.Update) (res Result) {
	start := time.Now()
	reqID := uuid.NewString()
	log := x.log.With(logx.String("req_id", reqID), logx.Int("update_id", u.ID))

	ctx, span := x.tracer.Start(ctx, "intake.update", trace.WithAttributes(
		attribute.Int("update.id", u.ID),
		attribute.String("req.id", reqID),
	))
	defer func() {
		if r := recover(); r != nil {
			res = Result{UpdateID: u.ID, State: StateFailed, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
			if u.Message != nil {
				res.ChatID = u.Message.ChatID
			}
			log.Error("panic while processing update", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		span.SetAttributes(attribute.String("outcome", string(res.State)))
		if res.Err != nil && res.State != StateRejected {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
		x.metrics.Record(ctx, string(res.State), time.Since(start))
	}()

	cfg := x.config()
	now := x.clock.Now()
	d := Decide(u, now, cfg.Location)
	res = Result{UpdateID: u.ID, ChatID: d.Target.ChatID}

	switch d.Outcome {
	case OutcomeSkip:
		log.Warn("update without message skipped")
		res.State = StateSkipped

	case OutcomeGreet:
		x.reply(ctx, log, cfg, d.Target, cfg.Texts.Greeting)
		res.State = StateGreeted

	case OutcomeReject:
		log.Info("request rejected",
			logx.Int64("chat_id", d.Target.ChatID),
			logx.String("kind", d.Kind.String()),
			logx.Err(d.Err),
		)
		x.reply(ctx, log, cfg, d.Target, cfg.Texts.rejection(d.Kind))
		res.State = StateRejected
		res.Kind = d.Kind
		res.Err = d.Err

	case OutcomeStore:
		saved, err := x.save(ctx, cfg, d.Task)
		if err != nil {
			log.Error("failed to save reminder", logx.Int64("chat_id", d.Target.ChatID), logx.Err(err))
			x.reply(ctx, log, cfg, d.Target, cfg.Texts.SaveFailed)
			res.State = StatePersistFailed
			res.Err = err
			return res
		}
		log.Info("reminder saved",
			logx.Int64("chat_id", saved.ChatID),
			logx.Int64("task_id", saved.ID),
			logx.String("at", reminder.Format(saved.DateTime)),
		)
		x.reply(ctx, log, cfg, d.Target, cfg.Texts.confirmation(saved))
		res.State = StateConfirmed
		res.Task = saved
	}
	return res
}

// save stores t under the per-update deadline. Every failure, including a
// deadline overrun, comes back as a *storage.PersistenceError.
func (x *Dispatcher) save(ctx context.Context, cfg Config, t reminder.Task) (reminder.Task, error) {
	if x.store == nil {
		return reminder.Task{}, &storage.PersistenceError{Op: "save", Err: errors.New("storage disabled")}
	}
	sctx, cancel := context.WithTimeout(ctx, cfg.UpdateTimeout)
	defer cancel()

	saved, err := x.store.Save(sctx, t)
	if err != nil {
		if !errors.Is(err, storage.ErrPersistence) {
			err = &storage.PersistenceError{Op: "save", Err: err}
		}
		return reminder.Task{}, err
	}
	return saved, nil
}

// reply sends text and only logs failures.
const replyGrace = 2 * time.Second

func (x *Dispatcher) reply(ctx context.Context, log logx.Logger, cfg Config, to transport.ChatTarget, text string) {
	if x.sender == nil {
		log.Warn("no sender configured; reply dropped", logx.Int64("chat_id", to.ChatID))
		return
	}
	timeout := cfg.UpdateTimeout
	if ctx.Err() != nil {
		// still tell the user, within a short fresh budget
		ctx = context.WithoutCancel(ctx)
		timeout = min(timeout, replyGrace)
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := x.sender.SendText(sctx, to, text, nil); err != nil {
		log.Warn("failed to send reply", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
