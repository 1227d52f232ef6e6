package flowrec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

// FormatLine renders r the way dump-flows prints a rule, e.g.
//
//	priority=30,in_port=1,dl_src=00:00:00:00:00:01,dl_dst=00:00:00:00:00:02 actions=set_queue:1,output:2
func FormatLine(r Record) string {
	var b strings.Builder
	b.WriteString("priority=")
	b.WriteString(strconv.FormatUint(uint64(r.Priority), 10))
	m := r.Match
	if m.InPort != 0 {
		b.WriteString(",in_port=")
		b.WriteString(strconv.FormatUint(uint64(m.InPort), 10))
	}
	if m.EthType != 0 {
		fmt.Fprintf(&b, ",dl_type=0x%04x", m.EthType)
	}
	if m.IPProto != 0 {
		b.WriteString(",nw_proto=")
		b.WriteString(strconv.FormatUint(uint64(m.IPProto), 10))
	}
	if m.L4DstPort != 0 {
		b.WriteString(",tp_dst=")
		b.WriteString(strconv.FormatUint(uint64(m.L4DstPort), 10))
	}
	if m.EthSrc != "" {
		b.WriteString(",dl_src=")
		b.WriteString(m.EthSrc)
	}
	if m.EthDst != "" {
		b.WriteString(",dl_dst=")
		b.WriteString(m.EthDst)
	}
	if r.IdleTimeout != 0 {
		b.WriteString(",idle_timeout=")
		b.WriteString(strconv.FormatUint(uint64(r.IdleTimeout), 10))
	}
	if r.HardTimeout != 0 {
		b.WriteString(",hard_timeout=")
		b.WriteString(strconv.FormatUint(uint64(r.HardTimeout), 10))
	}
	b.WriteString(" actions=")
	for i, a := range r.Actions {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.String())
	}
	return b.String()
}

// WriteDump writes records grouped per switch. Records must be in dump order,
// as returned by Table.All.
func WriteDump(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	var (
		current domain.DPID
		started bool
	)
	for _, r := range records {
		if !started || r.Key.DPID != current {
			current = r.Key.DPID
			started = true
			if _, err := fmt.Fprintf(bw, "dpid=%s\n", current); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, " %s\n", FormatLine(r)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
