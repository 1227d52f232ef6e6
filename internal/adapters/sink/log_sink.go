package sink

import (
	"github.com/rs/zerolog"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// LogSink writes each decision event as one structured log line. It is the
// default sink when no database is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) WriteBatch(events []*domain.Event) error {
	for _, e := range events {
		ev := l.logger.Info().
			Str("event_id", e.ID).
			Str("kind", string(e.Kind)).
			Time("ts", e.Time)
		if e.DPID != 0 {
			ev = ev.Uint64("dpid", uint64(e.DPID))
		}
		if e.Controller != "" {
			ev = ev.Str("controller", string(e.Controller))
		}
		if e.Tier != nil {
			ev = ev.Stringer("tier", *e.Tier)
		}
		switch {
		case e.Migration != nil:
			m := e.Migration
			ev = ev.Str("from", string(m.From)).
				Str("to", string(m.To)).
				Uint64("from_load", m.FromLoad).
				Uint64("threshold", m.Threshold)
		case e.Threshold != nil:
			ev = ev.Uint64("old", e.Threshold.Old).
				Uint64("new", e.Threshold.New).
				Float64("mean", e.Threshold.Mean)
		case e.Flow != nil:
			ev = ev.Uint16("priority", e.Flow.Priority).
				Stringer("flow_tier", e.Flow.Tier).
				Uint32("queue", e.Flow.Queue).
				Uint32("out_port", e.Flow.OutPort)
		}
		ev.Msg("sdn_event")
	}
	return nil
}

var _ ports.EventSink = (*LogSink)(nil)
