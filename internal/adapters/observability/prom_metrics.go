package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// PromObs exports metrics to the default Prometheus registerer and writes
// structured logs through zerolog.
type PromObs struct {
	logger   zerolog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	loads    *prometheus.GaugeVec
}

func NewPromObs(logger zerolog.Logger) *PromObs {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricPacketIn:             counter(ports.MetricPacketIn, "Packet-in events handled."),
		ports.MetricFlowsInstalled:       counter(ports.MetricFlowsInstalled, "Rules accepted by switches."),
		ports.MetricFlowInstallFailures:  counter(ports.MetricFlowInstallFailures, "Rules rejected or not delivered."),
		ports.MetricPacketOutFailures:    counter(ports.MetricPacketOutFailures, "Packet-out commands that failed."),
		ports.MetricStatsRequestFailures: counter(ports.MetricStatsRequestFailures, "Flow statistics requests that failed."),
		ports.MetricStatsRepliesIgnored:  counter(ports.MetricStatsRepliesIgnored, "Statistics replies from unregistered switches."),
		ports.MetricMigrations:           counter(ports.MetricMigrations, "Switches migrated between controllers."),
		ports.MetricMigrationsSkipped:    counter(ports.MetricMigrationsSkipped, "Overloaded controllers left unchanged for lack of target or eligible switch."),
		ports.MetricEventsExported:       counter(ports.MetricEventsExported, "Decision events written to sinks."),
		ports.MetricEventsDropped:        counter(ports.MetricEventsDropped, "Decision events lost to backpressure."),
		ports.MetricDLQ:                  counter(ports.MetricDLQ, "Events that could not be exported."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricThreshold:   gauge(ports.MetricThreshold, "Current controller overload threshold."),
		ports.MetricQueueLength: gauge(ports.MetricQueueLength, "Events buffered in the export queue."),
		ports.MetricJournalSize: gauge(ports.MetricJournalSize, "Size of the event journal on disk."),
		ports.MetricSwitches:    gauge(ports.MetricSwitches, "Connected switches."),
		ports.MetricControllers: gauge(ports.MetricControllers, "Registered controllers."),
	}
	roundLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricRoundLatency,
		Help:    "Duration of a sample, adapt and migrate round.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	exportLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricExportLatency,
		Help:    "Latency of writing one event batch to a sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	loads := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricControllerLoad,
		Help: "Weighted load of each controller in the last round.",
	}, []string{"controller"})

	collectors := []prometheus.Collector{roundLatency, exportLatency, loads}
	for _, c := range counters {
		collectors = append(collectors, c)
	}
	for _, g := range gauges {
		collectors = append(collectors, g)
	}
	prometheus.MustRegister(collectors...)

	return &PromObs{
		logger:   logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.MetricRoundLatency:  roundLatency,
			ports.MetricExportLatency: exportLatency,
		},
		loads: loads,
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.logger.Info(), fields).Msg(msg)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	withFields(p.logger.Warn(), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.logger.Error().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	withFields(p.logger.WithLevel(zerolog.FatalLevel).Err(err), fields).Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) SetControllerLoad(id domain.ControllerID, load uint64) {
	p.loads.WithLabelValues(string(id)).Set(float64(load))
}

func (p *PromObs) RecordDLQ(id ports.JournalEntryID, e *domain.Event, err error) {
	p.IncCounter(ports.MetricDLQ, 1)
	ev := p.logger.Error().Err(err).Uint64("entry", uint64(id))
	if e != nil {
		ev = ev.Str("event_id", e.ID).Str("kind", string(e.Kind))
	}
	ev.Msg("event_dlq")
}

func withFields(ev *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}

var _ ports.Observability = (*PromObs)(nil)
