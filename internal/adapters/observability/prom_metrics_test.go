package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

func useTestRegistry(t *testing.T) {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
}

func TestPromObsMetrics(t *testing.T) {
	useTestRegistry(t)
	obs := NewPromObs(zerolog.Nop())

	obs.IncCounter(ports.MetricFlowsInstalled, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricFlowsInstalled]); got != 5 {
		t.Fatalf("expected flows counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricMigrations, 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricMigrations]); got != 2 {
		t.Fatalf("expected migrations counter 2, got %f", got)
	}

	obs.SetGauge(ports.MetricThreshold, 57)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricThreshold]); got != 57 {
		t.Fatalf("expected threshold gauge 57, got %f", got)
	}

	obs.SetControllerLoad("c1", 100)
	obs.SetControllerLoad("c2", 10)
	if got := testutil.ToFloat64(obs.loads.WithLabelValues("c1")); got != 100 {
		t.Fatalf("expected c1 load 100, got %f", got)
	}
	if n := testutil.CollectAndCount(obs.loads); n != 2 {
		t.Fatalf("expected 2 controller load series, got %d", n)
	}

	obs.ObserveLatency(ports.MetricRoundLatency, 0.5)
	hCollector := obs.histos[ports.MetricRoundLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected round histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDLQ(1, nil, nil)
	if got := testutil.ToFloat64(obs.counters[ports.MetricDLQ]); got != 1 {
		t.Fatalf("expected dlq counter 1, got %f", got)
	}

	obs.IncCounter("unknown_metric", 1)
	obs.SetGauge("unknown_gauge", 1)
}

func TestPromObsLogsStructuredFields(t *testing.T) {
	useTestRegistry(t)

	var buf bytes.Buffer
	obs := NewPromObs(NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf))

	obs.LogInfo("switch_migrated", ports.F("dpid", domain.DPID(3)), ports.F("to", domain.ControllerID("c2")))
	obs.LogError("flow_install_failed", errors.New("boom"), ports.F("dpid", 1))
	obs.RecordDLQ(9, &domain.Event{ID: "ev-1", Kind: domain.EventMigration}, errors.New("sink down"))

	out := buf.String()
	for _, want := range []string{`"message":"switch_migrated"`, `"dpid":3`, `"to":"c2"`, `"error":"boom"`, `"event_id":"ev-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log output to contain %s, got:\n%s", want, out)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected level filtering: %s", buf.String())
	}

	buf.Reset()
	logger = NewLogger(LogConfig{Level: "nonsense"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}
