// Package registry tracks live controllers and switches, switch ownership,
// switch tiers, per-switch MAC tables and the last sampled controller loads.
//
// All methods are safe for concurrent use. Every connected switch is owned by
// exactly one registered controller at all times.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

var (
	ErrUnknownSwitch     = errors.New("registry: unknown switch")
	ErrUnknownController = errors.New("registry: unknown controller")
	ErrSelfMigration     = errors.New("registry: target controller already owns the switch")
	ErrOwnershipConflict = errors.New("registry: switch owner changed")
	ErrLocalController   = errors.New("registry: the local controller cannot be removed")
)

// Switch is a snapshot of one connected switch.
type Switch struct {
	DPID        domain.DPID         `json:"dpid"`
	Owner       domain.ControllerID `json:"owner"`
	Tier        domain.Tier         `json:"tier"`
	MACs        int                 `json:"learned_macs"`
	ConnectedAt time.Time           `json:"connected_at"`
}

// Controller is a snapshot of one registered controller.
type Controller struct {
	ID       domain.ControllerID `json:"id"`
	Addr     string              `json:"addr,omitempty"`
	Load     uint64              `json:"load"`
	HasLoad  bool                `json:"has_load"`
	Switches []domain.DPID       `json:"switches"`
}

type switchState struct {
	owner       domain.ControllerID
	tier        domain.Tier
	macs        map[string]uint32
	connectedAt time.Time
}

type controllerState struct {
	addr    string
	load    uint64
	hasLoad bool
}

type Registry struct {
	mu          sync.RWMutex
	local       domain.ControllerID
	controllers map[domain.ControllerID]*controllerState
	switches    map[domain.DPID]*switchState
	now         func() time.Time
}

// New returns a registry with the local controller already registered.
func New(local domain.ControllerID) *Registry {
	return &Registry{
		local: local,
		controllers: map[domain.ControllerID]*controllerState{
			local: {},
		},
		switches: make(map[domain.DPID]*switchState),
		now:      time.Now,
	}
}

func (r *Registry) Local() domain.ControllerID { return r.local }

// RegisterController adds a peer. It reports false if id was already known;
// the address is updated either way.
func (r *Registry) RegisterController(id domain.ControllerID, addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[id]; ok {
		if addr != "" {
			c.addr = addr
		}
		return false
	}
	r.controllers[id] = &controllerState{addr: addr}
	return true
}

// RemoveController unregisters a peer and hands each of its switches to the
// least-loaded remaining controller. It returns the new owner per switch.
func (r *Registry) RemoveController(id domain.ControllerID) (map[domain.DPID]domain.ControllerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.local {
		return nil, ErrLocalController
	}
	if _, ok := r.controllers[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownController, id)
	}
	delete(r.controllers, id)

	moved := make(map[domain.DPID]domain.ControllerID)
	for dpid, sw := range r.switches {
		if sw.owner != id {
			continue
		}
		target := r.leastLoadedLocked()
		sw.owner = target
		moved[dpid] = target
	}
	return moved, nil
}

func (r *Registry) leastLoadedLocked() domain.ControllerID {
	best := r.local
	bestLoad := r.controllers[r.local].load
	for id, c := range r.controllers {
		if c.load < bestLoad || (c.load == bestLoad && id < best) {
			best, bestLoad = id, c.load
		}
	}
	return best
}

// ConnectSwitch registers a switch session. Tier, ownership and the MAC table
// are reset to defaults, also on reconnect. An unknown controller is
// registered on the fly so ownership always points at a live controller.
func (r *Registry) ConnectSwitch(info domain.SwitchInfo) (owner domain.ControllerID, reconnect bool) {
	owner = info.Controller
	if owner == "" {
		owner = r.local
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.controllers[owner]; !ok {
		r.controllers[owner] = &controllerState{}
	}
	_, reconnect = r.switches[info.DPID]
	r.switches[info.DPID] = &switchState{
		owner:       owner,
		tier:        domain.TierLow,
		macs:        make(map[string]uint32),
		connectedAt: r.now(),
	}
	return owner, reconnect
}

// DisconnectSwitch drops all state of dpid. It reports whether it was known.
func (r *Registry) DisconnectSwitch(dpid domain.DPID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.switches[dpid]; !ok {
		return false
	}
	delete(r.switches, dpid)
	return true
}

func (r *Registry) Registered(dpid domain.DPID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.switches[dpid]
	return ok
}

func (r *Registry) Owner(dpid domain.DPID) (domain.ControllerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return "", false
	}
	return sw.owner, true
}

func (r *Registry) SetTier(dpid domain.DPID, tier domain.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, dpid)
	}
	sw.tier = tier
	return nil
}

// LearnMAC records that mac was seen on port of dpid. It reports false when
// the switch is not connected.
func (r *Registry) LearnMAC(dpid domain.DPID, mac string, port uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return false
	}
	sw.macs[strings.ToLower(mac)] = port
	return true
}

func (r *Registry) LookupMAC(dpid domain.DPID, mac string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return 0, false
	}
	port, ok := sw.macs[strings.ToLower(mac)]
	return port, ok
}

func (r *Registry) MACTable(dpid domain.DPID) map[string]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return nil
	}
	out := make(map[string]uint32, len(sw.macs))
	for mac, port := range sw.macs {
		out[mac] = port
	}
	return out
}

func (r *Registry) Switch(dpid domain.DPID) (Switch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return Switch{}, false
	}
	return snapshotSwitch(dpid, sw), true
}

// Switches returns every connected switch ordered by DPID.
func (r *Registry) Switches() []Switch {
	r.mu.RLock()
	out := make([]Switch, 0, len(r.switches))
	for dpid, sw := range r.switches {
		out = append(out, snapshotSwitch(dpid, sw))
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Switch) int { return cmp.Compare(a.DPID, b.DPID) })
	return out
}

// OwnedBy returns the switches owned by id ordered by DPID.
func (r *Registry) OwnedBy(id domain.ControllerID) []Switch {
	r.mu.RLock()
	out := make([]Switch, 0)
	for dpid, sw := range r.switches {
		if sw.owner == id {
			out = append(out, snapshotSwitch(dpid, sw))
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Switch) int { return cmp.Compare(a.DPID, b.DPID) })
	return out
}

// Controllers returns every registered controller ordered by id.
func (r *Registry) Controllers() []Controller {
	r.mu.RLock()
	owned := make(map[domain.ControllerID][]domain.DPID, len(r.controllers))
	for dpid, sw := range r.switches {
		owned[sw.owner] = append(owned[sw.owner], dpid)
	}
	out := make([]Controller, 0, len(r.controllers))
	for id, c := range r.controllers {
		switches := owned[id]
		slices.Sort(switches)
		if switches == nil {
			switches = []domain.DPID{}
		}
		out = append(out, Controller{
			ID:       id,
			Addr:     c.addr,
			Load:     c.load,
			HasLoad:  c.hasLoad,
			Switches: switches,
		})
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Controller) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// SetLoads replaces every controller's load with the values of this round.
// Controllers missing from loads are left without a recorded load.
func (r *Registry) SetLoads(loads map[domain.ControllerID]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.controllers {
		load, ok := loads[id]
		c.load = load
		c.hasLoad = ok
	}
}

// Migrate moves dpid from one controller to another. It fails if the switch
// is gone, if its owner is no longer from, or if to is not registered.
func (r *Registry) Migrate(dpid domain.DPID, from, to domain.ControllerID) error {
	if from == to {
		return fmt.Errorf("%w: dpid %s controller %s", ErrSelfMigration, dpid, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sw, ok := r.switches[dpid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, dpid)
	}
	if _, ok := r.controllers[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownController, to)
	}
	if sw.owner == to {
		return fmt.Errorf("%w: dpid %s controller %s", ErrSelfMigration, dpid, to)
	}
	if sw.owner != from {
		return fmt.Errorf("%w: dpid %s is owned by %s, not %s", ErrOwnershipConflict, dpid, sw.owner, from)
	}
	sw.owner = to
	return nil
}

func snapshotSwitch(dpid domain.DPID, sw *switchState) Switch {
	return Switch{
		DPID:        dpid,
		Owner:       sw.owner,
		Tier:        sw.tier,
		MACs:        len(sw.macs),
		ConnectedAt: sw.connectedAt,
	}
}
