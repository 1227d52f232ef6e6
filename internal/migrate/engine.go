// Package migrate rebalances switch ownership away from overloaded controllers.
//
// Each round moves at most one LOW-tier switch per overloaded controller to the
// least-loaded peer. Placement is greedy; MEDIUM and HIGH switches are pinned.
package migrate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/registry"
)

const defaultHistoryLimit = 256

type Engine struct {
	reg      *registry.Registry
	obs      ports.Observability
	notifier ports.MigrationNotifier
	emitter  ports.EventEmitter
	now      func() time.Time

	mu           sync.Mutex
	history      []domain.Migration
	historyLimit int
}

type Option func(*Engine)

// WithNotifier informs the orchestration layer of each migration.
func WithNotifier(n ports.MigrationNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithEmitter(em ports.EventEmitter) Option {
	return func(e *Engine) { e.emitter = em }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHistoryLimit bounds how many past migrations History returns.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

func New(reg *registry.Registry, obs ports.Observability, opts ...Option) *Engine {
	e := &Engine{reg: reg, obs: obs, now: time.Now, historyLimit: defaultHistoryLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Rebalance runs one migration pass against threshold and returns the
// migrations it performed. A structural violation aborts the pass with an
// error; the migrations made before it are still returned.
func (e *Engine) Rebalance(ctx context.Context, threshold uint64) ([]domain.Migration, error) {
	controllers := e.reg.Controllers()
	moved := make(map[domain.DPID]bool)
	var out []domain.Migration

	for _, c := range controllers {
		if !c.HasLoad || c.Load <= threshold {
			continue
		}
		e.obs.LogWarn("controller_overloaded",
			ports.F("controller", c.ID),
			ports.F("load", c.Load),
			ports.F("threshold", threshold))

		target, ok := pickTarget(controllers, c.ID)
		if !ok {
			e.skip("no_migration_target", c.ID)
			continue
		}
		if target.ID == c.ID {
			return out, fmt.Errorf("migrate: %w: controller %s selected itself", registry.ErrSelfMigration, c.ID)
		}

		eligible := e.eligible(c.ID, moved)
		if len(eligible) == 0 {
			e.skip("no_eligible_switch", c.ID)
			continue
		}

		m, err := e.moveOne(c, target, eligible, threshold)
		if err != nil {
			return out, err
		}
		if m == nil {
			e.skip("migration_candidates_vanished", c.ID)
			continue
		}
		moved[m.DPID] = true
		out = append(out, *m)
		e.publish(ctx, *m)
	}
	return out, nil
}

// Evict unregisters a peer controller and hands every switch it owned to the
// least-loaded remaining controller. Each hand-over is published like a
// migration: recorded, notified and emitted.
func (e *Engine) Evict(ctx context.Context, id domain.ControllerID) ([]domain.Migration, error) {
	loads := make(map[domain.ControllerID]uint64)
	for _, c := range e.reg.Controllers() {
		loads[c.ID] = c.Load
	}
	moved, err := e.reg.RemoveController(id)
	if err != nil {
		return nil, err
	}

	dpids := make([]domain.DPID, 0, len(moved))
	for dpid := range moved {
		dpids = append(dpids, dpid)
	}
	slices.Sort(dpids)

	out := make([]domain.Migration, 0, len(dpids))
	for _, dpid := range dpids {
		to := moved[dpid]
		m := domain.Migration{
			ID:       uuid.NewString(),
			DPID:     dpid,
			From:     id,
			To:       to,
			FromLoad: loads[id],
			ToLoad:   loads[to],
			Reason:   domain.MigrationReasonControllerRemoved,
			Time:     e.now().UTC(),
		}
		out = append(out, m)
		e.publish(ctx, m)
	}
	e.obs.LogInfo("controller_removed", ports.F("controller", id), ports.F("reassigned", len(out)))
	return out, nil
}

// History returns past migrations, oldest first.
func (e *Engine) History() []domain.Migration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.history)
}

// pickTarget returns the least-loaded other controller that has a recorded
// load, breaking ties by id.
func pickTarget(controllers []registry.Controller, overloaded domain.ControllerID) (registry.Controller, bool) {
	candidates := make([]registry.Controller, 0, len(controllers))
	for _, c := range controllers {
		if c.ID != overloaded && c.HasLoad {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return registry.Controller{}, false
	}
	slices.SortFunc(candidates, func(a, b registry.Controller) int {
		if c := cmp.Compare(a.Load, b.Load); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return candidates[0], true
}

func (e *Engine) eligible(owner domain.ControllerID, moved map[domain.DPID]bool) []registry.Switch {
	var out []registry.Switch
	for _, sw := range e.reg.OwnedBy(owner) {
		if sw.Tier == domain.TierLow && !moved[sw.DPID] {
			out = append(out, sw)
		}
	}
	return out
}

// moveOne migrates the first eligible switch that can still be moved. It
// returns nil when every candidate disappeared or changed owner concurrently.
func (e *Engine) moveOne(from, to registry.Controller, eligible []registry.Switch, threshold uint64) (*domain.Migration, error) {
	for _, sw := range eligible {
		err := e.reg.Migrate(sw.DPID, from.ID, to.ID)
		switch {
		case err == nil:
			return &domain.Migration{
				ID:        uuid.NewString(),
				DPID:      sw.DPID,
				From:      from.ID,
				To:        to.ID,
				FromLoad:  from.Load,
				ToLoad:    to.Load,
				Threshold: threshold,
				Time:      e.now().UTC(),
			}, nil
		case errors.Is(err, registry.ErrUnknownSwitch), errors.Is(err, registry.ErrOwnershipConflict):
			e.obs.LogWarn("migration_candidate_skipped", ports.F("dpid", sw.DPID), ports.F("reason", err.Error()))
		case errors.Is(err, registry.ErrUnknownController):
			e.obs.LogWarn("migration_target_gone", ports.F("target", to.ID))
			return nil, nil
		default:
			e.obs.LogCritical("migration_invariant_violated", err, ports.F("dpid", sw.DPID))
			return nil, fmt.Errorf("migrate dpid %s: %w", sw.DPID, err)
		}
	}
	return nil, nil
}

func (e *Engine) publish(ctx context.Context, m domain.Migration) {
	e.obs.IncCounter(ports.MetricMigrations, 1)
	e.obs.LogInfo("switch_migrated",
		ports.F("dpid", m.DPID),
		ports.F("from", m.From),
		ports.F("to", m.To),
		ports.F("from_load", m.FromLoad),
		ports.F("to_load", m.ToLoad),
		ports.F("threshold", m.Threshold))

	e.mu.Lock()
	e.history = append(e.history, m)
	if over := len(e.history) - e.historyLimit; over > 0 {
		e.history = slices.Delete(e.history, 0, over)
	}
	e.mu.Unlock()

	if e.notifier != nil {
		if err := e.notifier.NotifyMigration(ctx, m); err != nil {
			e.obs.LogError("migration_notify_failed", err, ports.F("dpid", m.DPID), ports.F("to", m.To))
		}
	}
	if e.emitter != nil {
		ev := domain.NewEvent(domain.EventMigration, m.Time)
		ev.DPID = m.DPID
		ev.Controller = m.To
		mc := m
		ev.Migration = &mc
		e.emitter.Emit(ev)
	}
}

func (e *Engine) skip(reason string, controller domain.ControllerID) {
	e.obs.IncCounter(ports.MetricMigrationsSkipped, 1)
	e.obs.LogInfo(reason, ports.F("controller", controller))
}
