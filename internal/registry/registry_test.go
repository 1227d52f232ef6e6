package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

func TestConnectSwitchDefaults(t *testing.T) {
	r := New("c1")

	owner, reconnect := r.ConnectSwitch(domain.SwitchInfo{DPID: 1})
	require.Equal(t, domain.ControllerID("c1"), owner)
	require.False(t, reconnect)

	sw, ok := r.Switch(1)
	require.True(t, ok)
	require.Equal(t, domain.TierLow, sw.Tier)
	require.Equal(t, domain.ControllerID("c1"), sw.Owner)
}

func TestConnectSwitchRegistersUnknownController(t *testing.T) {
	r := New("c1")
	owner, _ := r.ConnectSwitch(domain.SwitchInfo{DPID: 2, Controller: "c2"})
	require.Equal(t, domain.ControllerID("c2"), owner)

	ids := []domain.ControllerID{}
	for _, c := range r.Controllers() {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []domain.ControllerID{"c1", "c2"}, ids)
}

func TestReconnectResetsState(t *testing.T) {
	r := New("c1")
	r.RegisterController("c2", "")
	r.ConnectSwitch(domain.SwitchInfo{DPID: 1})
	require.NoError(t, r.SetTier(1, domain.TierHigh))
	require.True(t, r.LearnMAC(1, "00:00:00:00:00:01", 1))
	require.NoError(t, r.Migrate(1, "c1", "c2"))

	_, reconnect := r.ConnectSwitch(domain.SwitchInfo{DPID: 1})
	require.True(t, reconnect)

	sw, _ := r.Switch(1)
	require.Equal(t, domain.TierLow, sw.Tier)
	require.Equal(t, domain.ControllerID("c1"), sw.Owner)
	require.Zero(t, sw.MACs)
}

func TestDisconnectPurgesSwitch(t *testing.T) {
	r := New("c1")
	r.ConnectSwitch(domain.SwitchInfo{DPID: 1})
	r.LearnMAC(1, "00:00:00:00:00:01", 1)

	require.True(t, r.DisconnectSwitch(1))
	require.False(t, r.DisconnectSwitch(1))
	require.False(t, r.Registered(1))

	_, ok := r.Owner(1)
	require.False(t, ok)
	_, ok = r.LookupMAC(1, "00:00:00:00:00:01")
	require.False(t, ok)
	require.False(t, r.LearnMAC(1, "00:00:00:00:00:01", 1))
	require.ErrorIs(t, r.SetTier(1, domain.TierHigh), ErrUnknownSwitch)
}

func TestMACLearningIsPerSwitch(t *testing.T) {
	r := New("c1")
	r.ConnectSwitch(domain.SwitchInfo{DPID: 1})
	r.ConnectSwitch(domain.SwitchInfo{DPID: 2})

	r.LearnMAC(1, "AA:BB:CC:00:00:01", 3)
	port, ok := r.LookupMAC(1, "aa:bb:cc:00:00:01")
	require.True(t, ok)
	require.Equal(t, uint32(3), port)

	_, ok = r.LookupMAC(2, "aa:bb:cc:00:00:01")
	require.False(t, ok)
	require.Equal(t, map[string]uint32{"aa:bb:cc:00:00:01": 3}, r.MACTable(1))
}

func TestMigrate(t *testing.T) {
	r := New("c1")
	r.RegisterController("c2", "127.0.0.1:6634")
	r.ConnectSwitch(domain.SwitchInfo{DPID: 1})

	require.NoError(t, r.Migrate(1, "c1", "c2"))
	owner, _ := r.Owner(1)
	require.Equal(t, domain.ControllerID("c2"), owner)

	tests := []struct {
		name     string
		dpid     domain.DPID
		from, to domain.ControllerID
		want     error
	}{
		{name: "self", dpid: 1, from: "c2", to: "c2", want: ErrSelfMigration},
		{name: "already owned by target", dpid: 1, from: "c1", to: "c2", want: ErrSelfMigration},
		{name: "owner changed", dpid: 1, from: "c3", to: "c1", want: ErrOwnershipConflict},
		{name: "unknown switch", dpid: 9, from: "c2", to: "c1", want: ErrUnknownSwitch},
		{name: "unknown target", dpid: 1, from: "c2", to: "c9", want: ErrUnknownController},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Migrate(tt.dpid, tt.from, tt.to)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSetLoadsReplacesValues(t *testing.T) {
	r := New("c1")
	r.RegisterController("c2", "")
	r.RegisterController("c3", "")

	r.SetLoads(map[domain.ControllerID]uint64{"c1": 100, "c2": 10})
	r.SetLoads(map[domain.ControllerID]uint64{"c1": 5, "c3": 7})

	got := map[domain.ControllerID]Controller{}
	for _, c := range r.Controllers() {
		got[c.ID] = c
	}
	require.Equal(t, uint64(5), got["c1"].Load)
	require.False(t, got["c2"].HasLoad)
	require.Zero(t, got["c2"].Load)
	require.True(t, got["c3"].HasLoad)
}

func TestRemoveControllerReassignsSwitches(t *testing.T) {
	r := New("c1")
	r.RegisterController("c2", "")
	r.RegisterController("c3", "")
	r.ConnectSwitch(domain.SwitchInfo{DPID: 1, Controller: "c2"})
	r.ConnectSwitch(domain.SwitchInfo{DPID: 2, Controller: "c2"})
	r.SetLoads(map[domain.ControllerID]uint64{"c1": 50, "c2": 100, "c3": 10})

	moved, err := r.RemoveController("c2")
	require.NoError(t, err)
	require.Equal(t, map[domain.DPID]domain.ControllerID{1: "c3", 2: "c3"}, moved)

	for _, sw := range r.Switches() {
		require.Equal(t, domain.ControllerID("c3"), sw.Owner)
	}

	_, err = r.RemoveController("c1")
	require.ErrorIs(t, err, ErrLocalController)
	_, err = r.RemoveController("c2")
	require.ErrorIs(t, err, ErrUnknownController)
}

func TestOwnershipAlwaysPointsAtRegisteredController(t *testing.T) {
	r := New("c1")
	r.RegisterController("c2", "")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(base domain.DPID) {
			defer wg.Done()
			for j := domain.DPID(0); j < 50; j++ {
				dpid := base*100 + j
				r.ConnectSwitch(domain.SwitchInfo{DPID: dpid, Controller: "c2"})
				_ = r.Migrate(dpid, "c2", "c1")
				r.LearnMAC(dpid, "00:00:00:00:00:01", 1)
				if j%3 == 0 {
					r.DisconnectSwitch(dpid)
				}
			}
		}(domain.DPID(i + 1))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.SetLoads(map[domain.ControllerID]uint64{"c1": uint64(i), "c2": 1})
			r.Controllers()
		}
	}()
	wg.Wait()

	known := map[domain.ControllerID]bool{}
	for _, c := range r.Controllers() {
		known[c.ID] = true
	}
	for _, sw := range r.Switches() {
		require.True(t, known[sw.Owner], "switch %s owned by unregistered %s", sw.DPID, sw.Owner)
	}
}
