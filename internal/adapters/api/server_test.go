package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/migrate"
	"github.com/ghalamif/AegisSDN/internal/ports/portstest"
	"github.com/ghalamif/AegisSDN/internal/registry"
	"github.com/ghalamif/AegisSDN/internal/sampler"
	"github.com/ghalamif/AegisSDN/internal/threshold"
)

type fixture struct {
	server  *Server
	reg     *registry.Registry
	flows   *flowrec.Table
	engine  *migrate.Engine
	emitter *portstest.Emitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New("c1")
	reg.RegisterController("c2", "10.0.0.2:6653")
	reg.ConnectSwitch(domain.SwitchInfo{DPID: 1, Controller: "c1"})
	reg.ConnectSwitch(domain.SwitchInfo{DPID: 2, Controller: "c2"})

	flows := flowrec.NewTable()
	m := domain.Match{InPort: 1, EthSrc: "00:00:00:00:00:01", EthDst: "00:00:00:00:00:02"}
	flows.Put(flowrec.Record{
		Key:         flowrec.KeyOf(1, m),
		Match:       m,
		Priority:    domain.PriorityHigh,
		Tier:        domain.TierHigh,
		Queue:       1,
		Actions:     []domain.Action{domain.SetQueue(1), domain.Output(2)},
		IdleTimeout: 30,
	})
	flows.Put(flowrec.Record{
		Key:     flowrec.KeyOf(2, domain.Match{}),
		Actions: []domain.Action{domain.OutputController(domain.ControllerNoBufferLen)},
	})

	obs := portstest.NewObs()
	emitter := &portstest.Emitter{}
	engine := migrate.New(reg, obs, migrate.WithEmitter(emitter))

	metrics := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "aegis_sdn_test_total", Help: "test"})
	metrics.MustRegister(c)
	c.Inc()

	srv := New(":0", Deps{
		Registry:  reg,
		Flows:     flows,
		Threshold: threshold.New(57, threshold.DefaultFactor),
		Sampler:   sampler.New(reg, flows, &portstest.Southbound{}, obs, time.Millisecond),
		Engine:    engine,
		Emitter:   emitter,
		Obs:       obs,
		Metrics:   promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}),
	})
	return &fixture{server: srv, reg: reg, flows: flows, engine: engine, emitter: emitter}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","controller":"c1","switches":2}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "aegis_sdn_test_total 1")
}

func TestFlowsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/flows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []flowrec.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/flows?dpid=1&format=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dpid=1\n priority=30,in_port=1,dl_src=00:00:00:00:00:01,dl_dst=00:00:00:00:00:02,idle_timeout=30 actions=set_queue:1,output:2\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/flows?dpid=0x2&format=text", "")
	require.Equal(t, "dpid=2\n priority=0 actions=CONTROLLER:65535\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/flows?dpid=9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/flows?dpid=banana", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwitchesAndControllers(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/switches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sws []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sws))
	require.Len(t, sws, 2)
	require.Equal(t, "c2", sws[1]["owner"])
	require.Equal(t, "LOW", sws[0]["tier"])
	require.Equal(t, float64(0), sws[0]["load"])

	rec = f.do(t, http.MethodGet, "/api/v1/controllers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ctrls []registry.Controller
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctrls))
	require.Len(t, ctrls, 2)
	require.Equal(t, domain.ControllerID("c1"), ctrls[0].ID)
	require.Equal(t, []domain.DPID{2}, ctrls[1].Switches)

	rec = f.do(t, http.MethodGet, "/api/v1/threshold", "")
	require.JSONEq(t, `{"threshold":57,"factor":1.5}`, rec.Body.String())
}

func TestSetTier(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/switches/1/tier", `{"tier":"high"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sw, ok := f.reg.Switch(1)
	require.True(t, ok)
	require.Equal(t, domain.TierHigh, sw.Tier)
	require.Equal(t, []domain.EventKind{domain.EventTierChanged}, f.emitter.Kinds())

	rec = f.do(t, http.MethodPut, "/api/v1/switches/7/tier", `{"tier":"low"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/switches/1/tier", `{"tier":"urgent"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/switches/1/tier", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMigrationsHistory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/migrations", "")
	require.JSONEq(t, `[]`, rec.Body.String())

	f.reg.SetLoads(map[domain.ControllerID]uint64{"c1": 100, "c2": 1})
	moves, err := f.engine.Rebalance(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, moves, 1)

	rec = f.do(t, http.MethodGet, "/api/v1/migrations", "")
	var history []domain.Migration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, domain.DPID(1), history[0].DPID)
	require.Equal(t, domain.ControllerID("c2"), history[0].To)
}

func TestRemoveController(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/controllers/c1", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/controllers/c9", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, f.emitter.Kinds())

	rec = f.do(t, http.MethodDelete, "/api/v1/controllers/c2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Controller domain.ControllerID `json:"controller"`
		Reassigned []domain.Migration  `json:"reassigned"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, domain.ControllerID("c2"), body.Controller)
	require.Len(t, body.Reassigned, 1)
	require.Equal(t, domain.DPID(2), body.Reassigned[0].DPID)
	require.Equal(t, domain.ControllerID("c1"), body.Reassigned[0].To)
	require.Equal(t, domain.MigrationReasonControllerRemoved, body.Reassigned[0].Reason)

	owner, ok := f.reg.Owner(2)
	require.True(t, ok)
	require.Equal(t, domain.ControllerID("c1"), owner)
	require.Len(t, f.reg.Controllers(), 1)
	require.Equal(t, []domain.EventKind{domain.EventMigration}, f.emitter.Kinds())
	require.Len(t, f.engine.History(), 1)
}
