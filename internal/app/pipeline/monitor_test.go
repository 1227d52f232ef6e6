package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/migrate"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/ports/portstest"
	"github.com/ghalamif/AegisSDN/internal/registry"
	"github.com/ghalamif/AegisSDN/internal/sampler"
	"github.com/ghalamif/AegisSDN/internal/threshold"
)

type monitorFixture struct {
	monitor *Monitor
	reg     *registry.Registry
	engine  *migrate.Engine
	obs     *portstest.Obs
	emitter *portstest.Emitter
}

// newMonitorFixture connects one switch per entry of packets; each switch
// replies to a stats request with its packet count on a single LOW rule.
func newMonitorFixture(owners map[domain.DPID]domain.ControllerID, packets map[domain.DPID]uint64) *monitorFixture {
	reg := registry.New("A")
	reg.RegisterController("B", "")
	reg.RegisterController("C", "")
	for dpid, owner := range owners {
		reg.ConnectSwitch(domain.SwitchInfo{DPID: dpid, Controller: owner})
	}

	obs := portstest.NewObs()
	emitter := &portstest.Emitter{}
	sb := &portstest.Southbound{}
	smp := sampler.New(reg, flowrec.NewTable(), sb, obs, 0)
	sb.OnStatsRequest = func(dpid domain.DPID) {
		smp.HandleStatsReply(domain.FlowStatsReply{
			DPID:  dpid,
			Stats: []domain.FlowStat{{Match: domain.Match{InPort: 1}, Priority: domain.PriorityLow, PacketCount: packets[dpid]}},
		})
	}
	engine := migrate.New(reg, obs, migrate.WithEmitter(emitter))
	adapter := threshold.New(threshold.DefaultInitial, threshold.DefaultFactor)

	return &monitorFixture{
		monitor: NewMonitor(smp, adapter, engine, obs, emitter),
		reg:     reg,
		engine:  engine,
		obs:     obs,
		emitter: emitter,
	}
}

func TestRunRoundScenario(t *testing.T) {
	f := newMonitorFixture(
		map[domain.DPID]domain.ControllerID{1: "A", 2: "A", 3: "B", 4: "C"},
		map[domain.DPID]uint64{1: 60, 2: 40, 3: 10, 4: 5},
	)

	res := f.monitor.RunRound(context.Background())
	require.NoError(t, res.Err)
	require.Equal(t, []sampler.LoadSample{
		{Controller: "A", Load: 100, Switches: 2},
		{Controller: "B", Load: 10, Switches: 1},
		{Controller: "C", Load: 5, Switches: 1},
	}, res.Samples)
	require.True(t, res.Threshold.Changed)
	require.Equal(t, uint64(57), res.Threshold.New)
	require.Equal(t, float64(57), f.obs.Gauge(ports.MetricThreshold))

	require.Len(t, res.Migrations, 1)
	require.Equal(t, domain.DPID(1), res.Migrations[0].DPID)
	require.Equal(t, domain.ControllerID("C"), res.Migrations[0].To)
	owner, _ := f.reg.Owner(1)
	require.Equal(t, domain.ControllerID("C"), owner)

	require.Equal(t, []domain.EventKind{domain.EventThresholdChanged, domain.EventMigration}, f.emitter.Kinds())
	require.Equal(t, uint64(100), f.obs.Loads["A"])
}

func TestRunRoundKeepsUnchangedThresholdQuiet(t *testing.T) {
	f := newMonitorFixture(
		map[domain.DPID]domain.ControllerID{1: "A", 2: "B", 3: "C"},
		map[domain.DPID]uint64{1: 10, 2: 10, 3: 10},
	)

	first := f.monitor.RunRound(context.Background())
	require.True(t, first.Threshold.Changed)
	require.Empty(t, first.Migrations)

	second := f.monitor.RunRound(context.Background())
	require.False(t, second.Threshold.Changed)
	require.Equal(t, uint64(15), second.Threshold.New)
	require.Equal(t, []domain.EventKind{domain.EventThresholdChanged}, f.emitter.Kinds())
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	f := newMonitorFixture(
		map[domain.DPID]domain.ControllerID{1: "A", 2: "A", 3: "B"},
		map[domain.DPID]uint64{1: 500, 2: 500, 3: 1},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.monitor.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.engine.History()) > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor loop did not stop")
	}
}

func TestRunRoundWithoutSwitchesKeepsThreshold(t *testing.T) {
	f := newMonitorFixture(nil, nil)

	res := f.monitor.RunRound(context.Background())
	require.NoError(t, res.Err)
	require.Empty(t, res.Samples)
	require.False(t, res.Threshold.Changed)
	require.Equal(t, uint64(threshold.DefaultInitial), res.Threshold.New)
	require.Empty(t, res.Migrations)
	require.Empty(t, f.emitter.Kinds())
}

func TestRunRoundNeverTargetsControllersWithoutLoad(t *testing.T) {
	f := newMonitorFixture(
		map[domain.DPID]domain.ControllerID{1: "A", 2: "A"},
		map[domain.DPID]uint64{1: 500, 2: 500},
	)

	res := f.monitor.RunRound(context.Background())
	require.NoError(t, res.Err)
	require.Equal(t, []sampler.LoadSample{{Controller: "A", Load: 1000, Switches: 2}}, res.Samples)
	require.Equal(t, uint64(1500), res.Threshold.New)
	require.Empty(t, res.Migrations)

	for _, c := range f.reg.Controllers() {
		require.Equal(t, c.ID == "A", c.HasLoad, "controller %s", c.ID)
	}
	owner, _ := f.reg.Owner(1)
	require.Equal(t, domain.ControllerID("A"), owner)
}

type failingRebalancer struct {
	done []domain.Migration
	err  error
}

func (r failingRebalancer) Rebalance(context.Context, uint64) ([]domain.Migration, error) {
	return r.done, r.err
}

func TestRunRoundLogsAbortedMigration(t *testing.T) {
	f := newMonitorFixture(
		map[domain.DPID]domain.ControllerID{1: "A"},
		map[domain.DPID]uint64{1: 10},
	)
	abort := errors.New("controller A selected itself")
	m := NewMonitor(f.monitor.sampler, f.monitor.adapter, failingRebalancer{err: abort}, f.obs, f.emitter)

	res := m.RunRound(context.Background())
	require.ErrorIs(t, res.Err, abort)
	require.Equal(t, 1, f.obs.ErrorCount())
}
