// Package app wires configuration, storage, transport and the reminder
// services into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/intake"
	"remindbot/internal/observability/ops"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/telemetry"
	"remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	tel  *telemetry.Provider

	store    storage.Store
	adapter  transport.Adapter
	intake   *intake.Dispatcher
	delivery *delivery.Service
	ops      *ops.Service

	updates   chan transport.Update
	batchSize atomic.Int64
}

// Options override components; zero values build the real ones.
type Options struct {
	Adapter transport.Adapter
	Clock   reminder.Clock
	Store   storage.Store
}

// New loads the config at cfgPath and builds the app.
func New(cfgPath string) (*App, error) {
	return NewWithOptions(cfgPath, Options{})
}

func NewWithOptions(cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ad := opt.Adapter
	if ad == nil {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, logx.NewConsole("info"))
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	logSvc, log := logx.New(mapLogging(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))

	telCfg, err := mapTelemetry(cfg)
	if err != nil {
		return nil, err
	}
	tel, err := telemetry.Init(context.Background(), telCfg, appLog)
	if err != nil {
		return nil, err
	}
	intakeMetrics, err := telemetry.NewIntakeMetrics(tel.Meter())
	if err != nil {
		return nil, err
	}
	deliveryMetrics, err := telemetry.NewDeliveryMetrics(tel.Meter())
	if err != nil {
		return nil, err
	}

	sc, err := mapStorage(cfg, loc)
	if err != nil {
		return nil, err
	}
	store := opt.Store
	if store == nil {
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
	}
	if store == nil {
		appLog.Warn("storage disabled; reminders cannot be saved")
	} else {
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	clock := opt.Clock
	if clock == nil {
		clock = reminder.SystemClock{Location: loc}
	}

	ic, batch, err := mapIntake(cfg, loc)
	if err != nil {
		return nil, err
	}
	disp := intake.New(ic, intake.Deps{
		Store:   store,
		Sender:  ad,
		Clock:   clock,
		Log:     log,
		Metrics: intakeMetrics,
		Tracer:  tel.Tracer(),
	})

	dc, err := mapDelivery(cfg, loc)
	if err != nil {
		return nil, err
	}
	deliv := delivery.New(dc, delivery.Deps{
		Store:   store,
		Sender:  ad,
		Clock:   clock,
		Log:     log,
		Metrics: deliveryMetrics,
		Tracer:  tel.Tracer(),
	})

	a := &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		tel:      tel,
		store:    store,
		adapter:  ad,
		intake:   disp,
		delivery: deliv,
		updates:  make(chan transport.Update, 256),
	}
	a.batchSize.Store(int64(batch))

	oc, err := mapOps(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(oc, ops.Probes{Ready: a.ready, Status: a.status}, log)
	return a, nil
}

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) ready(ctx context.Context) error {
	if a.store == nil {
		return errors.New("storage disabled")
	}
	if p, ok := a.store.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *App) status() map[string]any {
	out := map[string]any{}
	if a.sup != nil {
		out["app"] = a.sup.Counters()
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *supervisor.Supervisor }); ok {
		if sup := sp.Supervisor(); sup != nil {
			out["telegram"] = sup.Stats()
		}
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		a.sup.Cancel()
		return err
	}
	if err := a.delivery.Start(runCtx); err != nil {
		a.abortStart()
		return err
	}
	a.ops.Start(runCtx)

	a.sup.Go("intake.dispatch", a.dispatchLoop)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// abortStart undoes a partial Start.
func (a *App) abortStart() {
	a.sup.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop after failed start", logx.Err(err))
	}
}

// drainGrace bounds how long an in-flight batch may run after shutdown starts.
const drainGrace = 3 * time.Second

func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		batch, ok := nextBatch(ctx, a.updates, int(a.batchSize.Load()))
		if !ok {
			return nil
		}
		bctx, cancel := drainContext(ctx, drainGrace)
		results := a.intake.Process(bctx, batch)
		cancel()
		a.log.Debug("batch processed", logx.Int("updates", len(batch)), logx.Int("results", len(results)))
	}
}

// drainContext keeps values of parent but outlives its cancellation by grace.
func drainContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() { time.AfterFunc(grace, cancel) })
	return ctx, func() {
		stop()
		cancel()
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts: keep only the latest
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if rr := config.RestartRequired(prev, cfg); len(rr) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(rr, ",")))
	}

	a.logs.Apply(mapLogging(cfg))

	// validate() already accepted cfg, so the mappers below do not fail.
	loc, _ := cfg.Location()
	if ic, batch, err := mapIntake(cfg, loc); err == nil {
		a.intake.Apply(ic)
		a.batchSize.Store(int64(batch))
	}
	if dc, err := mapDelivery(cfg, loc); err == nil {
		if err := a.delivery.Apply(dc); err != nil {
			a.log.Warn("delivery reconfigure failed", logx.Err(err))
		}
	}
	if oc, err := mapOps(cfg); err == nil {
		a.ops.Reconfigure(ctx, oc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order; each step is bounded so a
// stuck component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	// the in-flight batch still replies through the adapter's sender
	step("supervisor", drainGrace+time.Second, a.sup.Wait)
	step("delivery", 2*time.Second, func(c context.Context) error { a.delivery.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("telemetry", 2*time.Second, a.tel.Shutdown)

	a.log.Info("stopped")
	return a.logs.Close()
}
