// Package sampler turns per-rule flow statistics into one weighted load value
// per controller.
package sampler

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/registry"
)

// Weight is the load multiplier of a rule installed with the given priority.
func Weight(priority uint16) uint64 {
	switch {
	case priority >= domain.PriorityHigh:
		return 3
	case priority >= domain.PriorityMedium:
		return 2
	default:
		return 1
	}
}

// LoadSample is one controller's load for a single round.
type LoadSample struct {
	Controller domain.ControllerID `json:"controller"`
	Load       uint64              `json:"load"`
	Switches   int                 `json:"reporting_switches"`
}

type Sampler struct {
	reg         *registry.Registry
	records     *flowrec.Table
	sb          ports.Southbound
	obs         ports.Observability
	replyWindow time.Duration

	mu          sync.Mutex
	pending     map[domain.DPID]uint64
	switchLoads map[domain.DPID]uint64
}

// New builds a sampler. replyWindow is how long Sample waits for replies after
// issuing requests; replies that arrive later count towards the next round.
func New(reg *registry.Registry, records *flowrec.Table, sb ports.Southbound, obs ports.Observability, replyWindow time.Duration) *Sampler {
	return &Sampler{
		reg:         reg,
		records:     records,
		sb:          sb,
		obs:         obs,
		replyWindow: replyWindow,
		pending:     make(map[domain.DPID]uint64),
		switchLoads: make(map[domain.DPID]uint64),
	}
}

// HandleStatsReply computes the switch's contribution from a stats reply. Rules
// without a flow record weigh as the lowest tier. Replies from switches that
// are not registered are ignored and false is returned.
//
// Registration is checked under the sampler lock, so a reply that races a
// disconnect is either stored before Forget removes it or dropped.
func (s *Sampler) HandleStatsReply(reply domain.FlowStatsReply) bool {
	var total uint64
	for _, st := range reply.Stats {
		prio, ok := s.records.Priority(flowrec.KeyOf(reply.DPID, st.Match))
		if !ok {
			prio = domain.PriorityLow
		}
		total += st.PacketCount * Weight(prio)
	}

	s.mu.Lock()
	if !s.reg.Registered(reply.DPID) {
		s.mu.Unlock()
		s.obs.IncCounter(ports.MetricStatsRepliesIgnored, 1)
		return false
	}
	s.pending[reply.DPID] = total
	s.switchLoads[reply.DPID] = total
	s.mu.Unlock()

	s.obs.LogInfo("switch_load", ports.F("dpid", reply.DPID), ports.F("load", total))
	return true
}

// Forget drops any buffered contribution of dpid.
func (s *Sampler) Forget(dpid domain.DPID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, dpid)
	delete(s.switchLoads, dpid)
}

// SwitchLoads returns the last contribution reported by each switch.
func (s *Sampler) SwitchLoads() map[domain.DPID]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.DPID]uint64, len(s.switchLoads))
	for k, v := range s.switchLoads {
		out[k] = v
	}
	return out
}

// Sample runs one sampling round: it requests statistics from every
// registered switch, waits for the reply window, and replaces the load of
// every controller that owns a polled switch with the sum of its switches'
// contributions. A switch that did not reply contributes 0. Controllers that
// own no switch get no sample and are left without a recorded load.
func (s *Sampler) Sample(ctx context.Context) []LoadSample {
	switches := s.reg.Switches()
	for _, sw := range switches {
		if err := s.sb.RequestFlowStats(ctx, sw.DPID); err != nil {
			s.obs.IncCounter(ports.MetricStatsRequestFailures, 1)
			s.obs.LogError("stats_request_failed", err, ports.F("dpid", sw.DPID))
		}
	}

	if s.replyWindow > 0 && len(switches) > 0 {
		timer := time.NewTimer(s.replyWindow)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[domain.DPID]uint64, len(pending))
	s.mu.Unlock()

	polled := make(map[domain.DPID]struct{}, len(switches)+len(pending))
	for _, sw := range switches {
		polled[sw.DPID] = struct{}{}
	}
	for dpid := range pending {
		polled[dpid] = struct{}{}
	}

	loads := make(map[domain.ControllerID]uint64)
	reporting := make(map[domain.ControllerID]int)
	for dpid := range polled {
		owner, ok := s.reg.Owner(dpid)
		if !ok {
			continue
		}
		contribution, replied := pending[dpid]
		loads[owner] += contribution
		if replied {
			reporting[owner]++
		}
	}
	s.reg.SetLoads(loads)

	out := make([]LoadSample, 0, len(loads))
	for id, load := range loads {
		s.obs.SetControllerLoad(id, load)
		out = append(out, LoadSample{Controller: id, Load: load, Switches: reporting[id]})
	}
	slices.SortFunc(out, func(a, b LoadSample) int { return cmp.Compare(a.Controller, b.Controller) })
	return out
}

// Loads extracts the load values of samples.
func Loads(samples []LoadSample) []uint64 {
	out := make([]uint64, len(samples))
	for i, s := range samples {
		out[i] = s.Load
	}
	return out
}
