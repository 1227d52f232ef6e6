// Package portstest provides recording fakes of the ports interfaces for tests.
package portstest

import (
	"context"
	"sync"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// Obs records log calls and metric updates.
type Obs struct {
	mu       sync.Mutex
	Infos    []string
	Warns    []string
	Errors   []error
	Counters map[string]float64
	Gauges   map[string]float64
	Loads    map[domain.ControllerID]uint64
}

func NewObs() *Obs {
	return &Obs{
		Counters: map[string]float64{},
		Gauges:   map[string]float64{},
		Loads:    map[domain.ControllerID]uint64{},
	}
}

func (o *Obs) LogInfo(msg string, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Infos = append(o.Infos, msg)
}

func (o *Obs) LogWarn(msg string, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Warns = append(o.Warns, msg)
}

func (o *Obs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Errors = append(o.Errors, err)
}

func (o *Obs) LogCritical(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Errors = append(o.Errors, err)
}

func (o *Obs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Counters[name] += v
}

func (o *Obs) ObserveLatency(string, float64) {}

func (o *Obs) SetGauge(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Gauges[name] = v
}

func (o *Obs) SetControllerLoad(id domain.ControllerID, load uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Loads[id] = load
}

func (o *Obs) RecordDLQ(ports.JournalEntryID, *domain.Event, error) {
	o.IncCounter(ports.MetricDLQ, 1)
}

func (o *Obs) Counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Counters[name]
}

func (o *Obs) Gauge(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Gauges[name]
}

func (o *Obs) ErrorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Errors)
}

func (o *Obs) WarnMessages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.Warns...)
}

type InstalledFlow struct {
	DPID domain.DPID
	Mod  domain.FlowMod
}

type SentPacket struct {
	DPID domain.DPID
	Out  domain.PacketOut
}

// Southbound records commands. InstallErr and SendErr are returned from every
// call when set. OnStatsRequest, when set, runs synchronously inside
// RequestFlowStats and may deliver a reply.
type Southbound struct {
	mu             sync.Mutex
	Flows          []InstalledFlow
	Packets        []SentPacket
	StatsRequests  []domain.DPID
	InstallErr     error
	SendErr        error
	StatsErr       error
	OnStatsRequest func(dpid domain.DPID)
}

func (s *Southbound) InstallFlow(_ context.Context, dpid domain.DPID, mod domain.FlowMod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InstallErr != nil {
		return s.InstallErr
	}
	s.Flows = append(s.Flows, InstalledFlow{DPID: dpid, Mod: mod})
	return nil
}

func (s *Southbound) SendPacket(_ context.Context, dpid domain.DPID, out domain.PacketOut) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Packets = append(s.Packets, SentPacket{DPID: dpid, Out: out})
	return nil
}

func (s *Southbound) RequestFlowStats(_ context.Context, dpid domain.DPID) error {
	s.mu.Lock()
	if s.StatsErr != nil {
		s.mu.Unlock()
		return s.StatsErr
	}
	s.StatsRequests = append(s.StatsRequests, dpid)
	hook := s.OnStatsRequest
	s.mu.Unlock()
	if hook != nil {
		hook(dpid)
	}
	return nil
}

func (s *Southbound) InstalledFlows() []InstalledFlow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]InstalledFlow(nil), s.Flows...)
}

func (s *Southbound) SentPackets() []SentPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentPacket(nil), s.Packets...)
}

// Emitter collects emitted events.
type Emitter struct {
	mu     sync.Mutex
	Events []*domain.Event
}

func (e *Emitter) Emit(ev *domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, ev)
}

func (e *Emitter) Kinds() []domain.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventKind, len(e.Events))
	for i, ev := range e.Events {
		out[i] = ev.Kind
	}
	return out
}

var (
	_ ports.Observability = (*Obs)(nil)
	_ ports.Southbound    = (*Southbound)(nil)
	_ ports.EventEmitter  = (*Emitter)(nil)
)
