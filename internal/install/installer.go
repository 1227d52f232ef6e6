// Package install issues forwarding rules to switches and records the priority
// each rule was installed with.
package install

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// ErrMalformedActions is returned when a rule does not select a queue before
// its output action.
var ErrMalformedActions = errors.New("install: actions must set a queue followed by an output")

// Request describes one rule to install.
type Request struct {
	DPID        domain.DPID
	Match       domain.Match
	Priority    domain.Priority
	Actions     []domain.Action
	IdleTimeout uint16
	HardTimeout uint16
	// BufferID references a packet held by the switch. Zero and
	// domain.NoBuffer both mean no buffered packet.
	BufferID uint32
}

type Installer struct {
	sb      ports.Southbound
	records *flowrec.Table
	obs     ports.Observability
	emitter ports.EventEmitter
	now     func() time.Time
}

type Option func(*Installer)

// WithEmitter publishes a flow_installed event for every successful install.
func WithEmitter(e ports.EventEmitter) Option {
	return func(i *Installer) { i.emitter = e }
}

func WithClock(now func() time.Time) Option {
	return func(i *Installer) {
		if now != nil {
			i.now = now
		}
	}
}

func New(sb ports.Southbound, records *flowrec.Table, obs ports.Observability, opts ...Option) *Installer {
	i := &Installer{sb: sb, records: records, obs: obs, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Install sends the rule to the switch. The flow record is written only when
// the substrate accepted the rule.
func (i *Installer) Install(ctx context.Context, req Request) error {
	if err := validateActions(req.Actions); err != nil {
		i.fail(req.DPID, err)
		return err
	}
	buffer := req.BufferID
	if buffer == 0 {
		buffer = domain.NoBuffer
	}
	mod := domain.FlowMod{
		Match:       req.Match,
		Actions:     req.Actions,
		Priority:    req.Priority.Resolve(),
		IdleTimeout: req.IdleTimeout,
		HardTimeout: req.HardTimeout,
		BufferID:    buffer,
	}
	tier, ok := req.Priority.Tier()
	if !ok {
		tier = tierOf(mod.Priority)
	}
	return i.install(ctx, req.DPID, mod, tier)
}

// InstallTableMiss installs the lowest-priority catch-all rule that sends
// unmatched packets to the controller unbuffered.
func (i *Installer) InstallTableMiss(ctx context.Context, dpid domain.DPID) error {
	mod := domain.FlowMod{
		Actions:  []domain.Action{domain.OutputController(domain.ControllerNoBufferLen)},
		Priority: domain.PriorityTableMiss,
		BufferID: domain.NoBuffer,
	}
	return i.install(ctx, dpid, mod, domain.TierLow)
}

func (i *Installer) install(ctx context.Context, dpid domain.DPID, mod domain.FlowMod, tier domain.Tier) error {
	if err := i.sb.InstallFlow(ctx, dpid, mod); err != nil {
		i.fail(dpid, err)
		return fmt.Errorf("install flow on dpid %s: %w", dpid, err)
	}

	queue, out := actionTargets(mod.Actions)
	rec := flowrec.Record{
		Key:         flowrec.KeyOf(dpid, mod.Match),
		Match:       mod.Match,
		Priority:    mod.Priority,
		Tier:        tier,
		Queue:       queue,
		Actions:     mod.Actions,
		IdleTimeout: mod.IdleTimeout,
		HardTimeout: mod.HardTimeout,
		Installed:   i.now(),
	}
	i.records.Put(rec)
	i.obs.IncCounter(ports.MetricFlowsInstalled, 1)

	if mod.Match.IsEmpty() {
		i.obs.LogInfo("table_miss_installed", ports.F("dpid", dpid))
	} else {
		i.obs.LogInfo("flow_installed",
			ports.F("dpid", dpid),
			ports.F("priority", mod.Priority),
			ports.F("queue", queue),
			ports.F("eth_src", mod.Match.EthSrc),
			ports.F("eth_dst", mod.Match.EthDst),
			ports.F("in_port", mod.Match.InPort))
	}

	if i.emitter != nil {
		ev := domain.NewEvent(domain.EventFlowInstalled, rec.Installed)
		ev.DPID = dpid
		ev.Flow = &domain.FlowInstalled{
			Match:       mod.Match,
			Priority:    mod.Priority,
			Tier:        tier,
			Queue:       queue,
			OutPort:     out,
			IdleTimeout: mod.IdleTimeout,
		}
		i.emitter.Emit(ev)
	}
	return nil
}

func (i *Installer) fail(dpid domain.DPID, err error) {
	i.obs.IncCounter(ports.MetricFlowInstallFailures, 1)
	i.obs.LogError("flow_install_failed", err, ports.F("dpid", dpid))
}

func validateActions(actions []domain.Action) error {
	queued := false
	for _, a := range actions {
		switch a.Type {
		case domain.ActionSetQueue:
			queued = true
		case domain.ActionOutput:
			if queued {
				return nil
			}
		}
	}
	return ErrMalformedActions
}

func actionTargets(actions []domain.Action) (queue, out uint32) {
	for _, a := range actions {
		switch a.Type {
		case domain.ActionSetQueue:
			queue = a.Queue
		case domain.ActionOutput:
			out = a.Port
		}
	}
	return queue, out
}

func tierOf(priority uint16) domain.Tier {
	switch {
	case priority >= domain.PriorityHigh:
		return domain.TierHigh
	case priority >= domain.PriorityMedium:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}
