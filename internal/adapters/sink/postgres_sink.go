package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// PostgresSink stores decision events, one row per event. Re-exporting a batch
// after a crash is harmless because rows are keyed by event id.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, tableName: table}
}

func (p *PostgresSink) Name() string { return "postgres" }

// Schema returns the DDL for the event table.
func (p *PostgresSink) Schema() string {
	return "CREATE TABLE IF NOT EXISTS " + p.tableName +
		" (id TEXT PRIMARY KEY, kind TEXT NOT NULL, ts TIMESTAMPTZ NOT NULL, dpid BIGINT, controller TEXT, payload JSONB NOT NULL)"
}

// EnsureSchema creates the event table when missing.
func (p *PostgresSink) EnsureSchema() error {
	_, err := p.db.Exec(p.Schema())
	return err
}

func (p *PostgresSink) WriteBatch(events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.tableName)
	b.WriteString(" (id, kind, ts, dpid, controller, payload) VALUES ")

	args := make([]any, 0, len(events)*6)
	for i, e := range events {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6))
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}

		args = append(args,
			e.ID,
			string(e.Kind),
			e.Time,
			int64(e.DPID),
			string(e.Controller),
			payload,
		)
	}

	b.WriteString(" ON CONFLICT (id) DO NOTHING")

	_, err := p.db.Exec(b.String(), args...)
	return err
}

var _ ports.EventSink = (*PostgresSink)(nil)
