package aegissdn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/ghalamif/AegisSDN/internal/adapters/api"
	"github.com/ghalamif/AegisSDN/internal/adapters/emulator"
	"github.com/ghalamif/AegisSDN/internal/adapters/journal"
	"github.com/ghalamif/AegisSDN/internal/adapters/observability"
	"github.com/ghalamif/AegisSDN/internal/adapters/queue"
	"github.com/ghalamif/AegisSDN/internal/adapters/sink"
	"github.com/ghalamif/AegisSDN/internal/app/pipeline"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/install"
	"github.com/ghalamif/AegisSDN/internal/migrate"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/registry"
	"github.com/ghalamif/AegisSDN/internal/sampler"
	"github.com/ghalamif/AegisSDN/internal/threshold"
)

// ErrNoSubstrate is returned when the emulator is disabled and no substrate
// was injected.
var ErrNoSubstrate = errors.New("aegissdn: no substrate configured")

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	substrate     Substrate
	notifier      MigrationNotifier
	sinks         []Sink
	journal       Journal
	queue         EventQueue
	observability Observability
	logger        *zerolog.Logger
	metrics       http.Handler
}

// WithSubstrate plugs in a protocol engine (an OpenFlow library, a test
// double) instead of the built-in emulator.
func WithSubstrate(s Substrate) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.substrate = s
	}
}

// WithMigrationNotifier sets who is told about migrations. Substrates that
// implement MigrationNotifier are used automatically.
func WithMigrationNotifier(n MigrationNotifier) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.notifier = n
	}
}

// WithSink adds a sink next to the default log sink.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithJournal lets callers bring their own journal implementation.
func WithJournal(j Journal) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.journal = j
	}
}

// WithEventQueue injects a custom queue implementation.
func WithEventQueue(q EventQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability replaces the Prometheus + zerolog backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger overrides the logger built from cfg.Log.
func WithLogger(l zerolog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = &l
	}
}

// WithMetricsHandler serves /metrics from h instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.metrics = h
	}
}

// Runtime wires the control plane (dispatcher, monitor loop, registry) to a
// substrate, runs the journal→queue→sink export pipelines and serves the
// admin API.
type Runtime struct {
	cfg    *Config
	policy ports.Policy
	logger zerolog.Logger
	obs    ports.Observability

	journal     ports.Journal
	ownsJournal bool
	queue       ports.EventQueue
	sinks       []ports.EventSink
	substrate   ports.Substrate
	db          *sql.DB
	pgSink      *sink.PostgresSink
	replayed    int
	resume      ports.JournalEntryID

	registry   *registry.Registry
	records    *flowrec.Table
	adapter    *threshold.Adapter
	engine     *migrate.Engine
	dispatcher *pipeline.Dispatcher
	monitor    *pipeline.Monitor
	bus        *pipeline.EventBus
	api        *api.Server

	mu            sync.Mutex
	started       bool
	monitorCancel context.CancelFunc
	journalCancel context.CancelFunc
	exportCancel  context.CancelFunc
	monitorDone   chan struct{}
	journalDone   chan struct{}
	exportDone    chan struct{}
	gaugeStopCh   chan struct{}
}

// NewRuntime bootstraps the default adapters (emulator substrate, file
// journal, in-memory queue, log and optional Postgres sinks, Prometheus
// observability) and replays events a previous run did not export.
// RuntimeOption values override any dependency.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := observability.NewLogger(cfg.Log, os.Stderr)
	if overrides.logger != nil {
		logger = *overrides.logger
	}
	logger = logger.With().Str("controller", string(cfg.Controller.ID)).Logger()

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(logger.With().Str("layer", "core").Logger())
	}

	var err error
	j := overrides.journal
	if j == nil {
		j, err = journal.Open(cfg.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	q := overrides.queue
	if q == nil {
		q = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	rt := &Runtime{
		cfg:         cfg,
		policy:      cfg.Policy,
		logger:      logger,
		obs:         obs,
		journal:     j,
		ownsJournal: overrides.journal == nil,
		queue:       q,
	}

	rt.replayed, rt.resume, err = pipeline.ReplayJournal(j, q, obs)
	if err != nil {
		rt.closeStorage()
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	rt.sinks = append(rt.sinks, sink.NewLogSink(logger.With().Str("layer", "export").Logger()))
	if cfg.Postgres.ConnString != "" {
		rt.db, err = sql.Open("postgres", cfg.Postgres.ConnString)
		if err != nil {
			rt.closeStorage()
			return nil, err
		}
		rt.pgSink = sink.NewPostgresSink(rt.db, cfg.Postgres.Table)
		rt.sinks = append(rt.sinks, rt.pgSink)
	}
	rt.sinks = append(rt.sinks, overrides.sinks...)

	rt.substrate = overrides.substrate
	if rt.substrate == nil {
		if !cfg.Emulator.Enabled {
			rt.closeStorage()
			return nil, ErrNoSubstrate
		}
		emu, err := emulator.New(cfg.Emulator, emulator.WithLogger(logger.With().Str("layer", "emulator").Logger()))
		if err != nil {
			rt.closeStorage()
			return nil, err
		}
		rt.substrate = emu
	}
	notifier := overrides.notifier
	if notifier == nil {
		notifier, _ = rt.substrate.(ports.MigrationNotifier)
	}

	rt.registry = registry.New(cfg.Controller.ID)
	rt.registry.RegisterController(cfg.Controller.ID, cfg.Controller.Addr)
	for _, p := range cfg.Controller.Peers {
		rt.registry.RegisterController(p.ID, p.Addr)
	}
	if cfg.Emulator.Enabled && overrides.substrate == nil {
		for _, id := range cfg.Emulator.Controllers {
			rt.registry.RegisterController(id, "")
		}
	}

	rt.bus = pipeline.NewEventBus(cfg.Policy.MaxQueueLen, obs)
	rt.records = flowrec.NewTable()
	rt.adapter = threshold.New(cfg.Monitor.InitialThreshold, cfg.Monitor.ThresholdFactor)
	smp := sampler.New(rt.registry, rt.records, rt.substrate, obs, cfg.Monitor.ReplyWindow)
	migrateOpts := []migrate.Option{migrate.WithEmitter(rt.bus)}
	if notifier != nil {
		migrateOpts = append(migrateOpts, migrate.WithNotifier(notifier))
	}
	rt.engine = migrate.New(rt.registry, obs, migrateOpts...)
	rt.dispatcher = pipeline.NewDispatcher(pipeline.DispatcherDeps{
		Registry:    rt.registry,
		Records:     rt.records,
		Installer:   install.New(rt.substrate, rt.records, obs, install.WithEmitter(rt.bus)),
		Sampler:     smp,
		Southbound:  rt.substrate,
		Obs:         obs,
		Emitter:     rt.bus,
		IdleTimeout: cfg.Flows.IdleTimeout,
		HardTimeout: cfg.Flows.HardTimeout,
	})
	rt.monitor = pipeline.NewMonitor(smp, rt.adapter, rt.engine, obs, rt.bus)
	rt.api = api.New(cfg.API.Addr, api.Deps{
		Registry:  rt.registry,
		Flows:     rt.records,
		Threshold: rt.adapter,
		Sampler:   smp,
		Engine:    rt.engine,
		Emitter:   rt.bus,
		Obs:       obs,
		Metrics:   overrides.metrics,
	})
	return rt, nil
}

// Start launches the export pipelines, the admin API, the substrate and the
// monitor loop. It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}

	if r.pgSink != nil {
		if err := r.pgSink.EnsureSchema(); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}

	var jctx, ectx, mctx context.Context
	jctx, r.journalCancel = context.WithCancel(context.Background())
	ectx, r.exportCancel = context.WithCancel(context.Background())
	r.journalDone = make(chan struct{})
	r.exportDone = make(chan struct{})
	go func() {
		pipeline.RunJournalPipeline(jctx, r.bus.Events(), r.journal, r.queue, r.resume, r.policy, r.obs)
		close(r.journalDone)
	}()
	go func() {
		pipeline.RunExportPipeline(ectx, r.journal, r.queue, r.sinks, r.policy, r.obs)
		close(r.exportDone)
	}()
	r.started = true

	if err := r.api.Start(); err != nil {
		return fmt.Errorf("admin api: %w", err)
	}

	mctx, r.monitorCancel = context.WithCancel(context.Background())
	if err := r.substrate.Start(mctx, r.dispatcher); err != nil {
		return fmt.Errorf("start substrate: %w", err)
	}
	r.monitorDone = make(chan struct{})
	go func() {
		r.monitor.Run(mctx, r.cfg.Monitor.Period)
		close(r.monitorDone)
	}()

	r.gaugeStopCh = make(chan struct{})
	go r.recordGauges(r.gaugeStopCh, time.Second)

	r.obs.LogInfo("runtime_started",
		ports.F("api", r.cfg.API.Addr),
		ports.F("period", r.cfg.Monitor.Period.String()),
		ports.F("replayed_events", r.replayed))
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(err, r.Shutdown(shutdownCtx))
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the monitor loop and the substrate, then drains the event
// bus into the journal and flushes the queue to the sinks before closing
// storage. Events a sink did not accept stay in the journal for the next run.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error

	if r.monitorCancel != nil {
		r.monitorCancel()
		errs = append(errs, wait(ctx, r.monitorDone, "monitor"))
		r.monitorCancel = nil
	}
	if r.started {
		if err := r.substrate.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := r.api.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}

	if r.journalCancel != nil {
		r.journalCancel()
		errs = append(errs, wait(ctx, r.journalDone, "journal pipeline"))
		r.journalCancel = nil
	}
	if r.exportCancel != nil {
		r.exportCancel()
		errs = append(errs, wait(ctx, r.exportDone, "export pipeline"))
		r.exportCancel = nil
	}
	r.started = false

	errs = append(errs, r.closeStorage())
	return errors.Join(errs...)
}

func wait(ctx context.Context, done <-chan struct{}, what string) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s did not stop: %w", what, ctx.Err())
	}
}

func (r *Runtime) closeStorage() error {
	var errs []error
	if c, ok := r.journal.(io.Closer); ok && r.ownsJournal {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		r.ownsJournal = false
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	return errors.Join(errs...)
}

func (r *Runtime) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.MetricJournalSize, float64(r.journal.Stats().SizeBytes))
			r.obs.SetGauge(ports.MetricQueueLength, float64(r.queue.Len()))
			r.obs.SetGauge(ports.MetricSwitches, float64(len(r.registry.Switches())))
			r.obs.SetGauge(ports.MetricControllers, float64(len(r.registry.Controllers())))
			r.obs.SetGauge(ports.MetricThreshold, float64(r.adapter.Value()))
		}
	}
}

// RunRound runs one sample, adapt and migrate round immediately, outside the
// periodic loop. It returns the migrations performed.
func (r *Runtime) RunRound(ctx context.Context) ([]Migration, error) {
	res := r.monitor.RunRound(ctx)
	return res.Migrations, res.Err
}

// Handler returns the admin API handler, for mounting in another server.
func (r *Runtime) Handler() http.Handler { return r.api.Handler() }

// Flows returns the flow records of every connected switch.
func (r *Runtime) Flows() []FlowRecord { return r.records.All() }

// Switches returns the connected switches ordered by DPID.
func (r *Runtime) Switches() []SwitchState { return r.registry.Switches() }

// Controllers returns the registered controllers ordered by id.
func (r *Runtime) Controllers() []ControllerState { return r.registry.Controllers() }

// SetTier pins a switch to a tier; only LOW switches are migrated.
func (r *Runtime) SetTier(dpid DPID, tier Tier) error { return r.registry.SetTier(dpid, tier) }

// RemoveController unregisters a peer and hands its switches to the
// least-loaded remaining controller. Each hand-over is journaled and sent to
// the migration notifier like a migration.
func (r *Runtime) RemoveController(ctx context.Context, id ControllerID) ([]Migration, error) {
	return r.engine.Evict(ctx, id)
}

// Threshold returns the current overload threshold.
func (r *Runtime) Threshold() uint64 { return r.adapter.Value() }

// Migrations returns the most recent migrations, oldest first.
func (r *Runtime) Migrations() []Migration { return r.engine.History() }

// Replayed reports how many journaled events were re-queued at startup.
func (r *Runtime) Replayed() int { return r.replayed }
