package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/migrate"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/sampler"
	"github.com/ghalamif/AegisSDN/internal/threshold"
)

// RoundResult is the outcome of one sample, adapt and migrate round.
type RoundResult struct {
	Samples    []sampler.LoadSample
	Threshold  threshold.Update
	Migrations []domain.Migration
	Err        error
}

// Rebalancer moves switches off controllers whose load exceeds threshold.
type Rebalancer interface {
	Rebalance(ctx context.Context, threshold uint64) ([]domain.Migration, error)
}

var _ Rebalancer = (*migrate.Engine)(nil)

// Monitor runs the periodic load-balancing loop.
type Monitor struct {
	sampler *sampler.Sampler
	adapter *threshold.Adapter
	engine  Rebalancer
	obs     ports.Observability
	emitter ports.EventEmitter
	now     func() time.Time
}

func NewMonitor(s *sampler.Sampler, a *threshold.Adapter, e Rebalancer, obs ports.Observability, emitter ports.EventEmitter) *Monitor {
	return &Monitor{sampler: s, adapter: a, engine: e, obs: obs, emitter: emitter, now: time.Now}
}

// RunRound samples loads, adapts the threshold and rebalances. A round in
// which no controller was sampled leaves the threshold unchanged. A failing
// stage is logged and reported in the result; it never panics the loop.
func (m *Monitor) RunRound(ctx context.Context) RoundResult {
	start := time.Now()
	var res RoundResult

	res.Samples = m.sampler.Sample(ctx)
	res.Threshold = m.adapter.Adapt(sampler.Loads(res.Samples))
	m.obs.SetGauge(ports.MetricThreshold, float64(res.Threshold.New))

	if res.Threshold.Changed {
		m.obs.LogInfo("threshold_updated",
			ports.F("old", res.Threshold.Old),
			ports.F("new", res.Threshold.New),
			ports.F("mean", res.Threshold.Mean))
		if m.emitter != nil {
			e := domain.NewEvent(domain.EventThresholdChanged, m.now())
			e.Threshold = &domain.ThresholdChange{
				Old:  res.Threshold.Old,
				New:  res.Threshold.New,
				Mean: res.Threshold.Mean,
			}
			m.emitter.Emit(e)
		}
	}

	res.Migrations, res.Err = m.engine.Rebalance(ctx, res.Threshold.New)
	if res.Err != nil {
		m.obs.LogCritical("migration_round_aborted", res.Err,
			ports.F("threshold", res.Threshold.New),
			ports.F("completed", len(res.Migrations)))
	}

	m.obs.ObserveLatency(ports.MetricRoundLatency, time.Since(start).Seconds())
	return res
}

// Run executes a round every period until ctx is cancelled. A round that has
// started runs to completion even if ctx is cancelled meanwhile.
func (m *Monitor) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunRound(context.WithoutCancel(ctx))
		}
	}
}
