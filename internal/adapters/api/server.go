// Package api serves the admin HTTP interface: health, Prometheus metrics,
// flow tables, switches, controller membership, the threshold and migration
// history.
package api

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/migrate"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/registry"
	"github.com/ghalamif/AegisSDN/internal/sampler"
	"github.com/ghalamif/AegisSDN/internal/threshold"
)

type Deps struct {
	Registry  *registry.Registry
	Flows     *flowrec.Table
	Threshold *threshold.Adapter
	Sampler   *sampler.Sampler
	Engine    *migrate.Engine
	Emitter   ports.EventEmitter
	Obs       ports.Observability
	// Metrics defaults to promhttp.Handler().
	Metrics http.Handler
	Now     func() time.Time
}

type Server struct {
	deps   Deps
	router *gin.Engine
	srv    *http.Server
}

func New(addr string, d Deps) *Server {
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{deps: d}
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(s.deps.Metrics))

	v1 := r.Group("/api/v1")
	v1.GET("/flows", s.flows)
	v1.GET("/switches", s.switches)
	v1.PUT("/switches/:dpid/tier", s.setTier)
	v1.GET("/controllers", s.controllers)
	v1.DELETE("/controllers/:id", s.removeController)
	v1.GET("/threshold", s.threshold)
	v1.GET("/migrations", s.migrations)
	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && s.deps.Obs != nil {
			s.deps.Obs.LogError("api_server_failed", err)
		}
	}()
	if s.deps.Obs != nil {
		s.deps.Obs.LogInfo("api_listening", ports.F("addr", ln.Addr().String()))
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"controller": s.deps.Registry.Local(),
		"switches":   len(s.deps.Registry.Switches()),
	})
}

func (s *Server) flows(c *gin.Context) {
	var records []flowrec.Record
	if raw := c.Query("dpid"); raw != "" {
		dpid, err := domain.ParseDPID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		records = s.deps.Flows.Switch(dpid)
	} else {
		records = s.deps.Flows.All()
	}

	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := flowrec.WriteDump(&buf, records); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}
	if records == nil {
		records = []flowrec.Record{}
	}
	c.JSON(http.StatusOK, records)
}

type switchView struct {
	registry.Switch
	Load uint64 `json:"load"`
}

func (s *Server) switches(c *gin.Context) {
	var loads map[domain.DPID]uint64
	if s.deps.Sampler != nil {
		loads = s.deps.Sampler.SwitchLoads()
	}
	sws := s.deps.Registry.Switches()
	out := make([]switchView, 0, len(sws))
	for _, sw := range sws {
		out = append(out, switchView{Switch: sw, Load: loads[sw.DPID]})
	}
	c.JSON(http.StatusOK, out)
}

type tierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (s *Server) setTier(c *gin.Context) {
	dpid, err := domain.ParseDPID(c.Param("dpid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Registry.SetTier(dpid, tier); err != nil {
		if errors.Is(err, registry.ErrUnknownSwitch) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if s.deps.Obs != nil {
		s.deps.Obs.LogInfo("switch_tier_changed", ports.F("dpid", dpid), ports.F("tier", tier.String()))
	}
	if s.deps.Emitter != nil {
		e := domain.NewEvent(domain.EventTierChanged, s.deps.Now())
		e.DPID = dpid
		e.Tier = &tier
		s.deps.Emitter.Emit(e)
	}
	sw, _ := s.deps.Registry.Switch(dpid)
	c.JSON(http.StatusOK, sw)
}

func (s *Server) controllers(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Registry.Controllers())
}

// removeController hands the controller's switches to its peers and replies
// with the resulting hand-overs.
func (s *Server) removeController(c *gin.Context) {
	if s.deps.Engine == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "migration engine not configured"})
		return
	}
	id := domain.ControllerID(c.Param("id"))
	moves, err := s.deps.Engine.Evict(context.WithoutCancel(c.Request.Context()), id)
	switch {
	case errors.Is(err, registry.ErrLocalController):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrUnknownController):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"controller": id, "reassigned": moves})
}

func (s *Server) threshold(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"threshold": s.deps.Threshold.Value(),
		"factor":    s.deps.Threshold.Factor(),
	})
}

func (s *Server) migrations(c *gin.Context) {
	var history []domain.Migration
	if s.deps.Engine != nil {
		history = s.deps.Engine.History()
	}
	if history == nil {
		history = []domain.Migration{}
	}
	c.JSON(http.StatusOK, history)
}
