package flowrec

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

func record(dpid domain.DPID, src, dst string, inPort uint32, prio uint16) Record {
	m := domain.Match{InPort: inPort, EthSrc: src, EthDst: dst}
	return Record{
		Key:      KeyOf(dpid, m),
		Match:    m,
		Priority: prio,
		Queue:    1,
		Actions:  []domain.Action{domain.SetQueue(1), domain.Output(2)},
	}
}

func TestTablePutOverwritesSameKey(t *testing.T) {
	tbl := NewTable()
	tbl.Put(record(1, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 10))
	tbl.Put(record(1, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 30))

	if tbl.Len() != 1 {
		t.Fatalf("expected one record, got %d", tbl.Len())
	}
	prio, ok := tbl.Priority(Key{DPID: 1, EthSrc: "00:00:00:00:00:01", EthDst: "00:00:00:00:00:02", InPort: 1})
	if !ok || prio != 30 {
		t.Fatalf("expected priority 30, got %d ok=%v", prio, ok)
	}
}

func TestKeyOfNormalizesMACCase(t *testing.T) {
	a := KeyOf(1, domain.Match{EthSrc: "AA:BB:CC:DD:EE:FF", InPort: 2})
	b := KeyOf(1, domain.Match{EthSrc: "aa:bb:cc:dd:ee:ff", InPort: 2})
	if a != b {
		t.Fatalf("expected keys to match regardless of case: %+v vs %+v", a, b)
	}
}

func TestTablePurgeSwitch(t *testing.T) {
	tbl := NewTable()
	tbl.Put(record(1, "a", "b", 1, 10))
	tbl.Put(record(1, "b", "a", 2, 20))
	tbl.Put(record(2, "a", "b", 1, 30))

	if n := tbl.PurgeSwitch(1); n != 2 {
		t.Fatalf("expected 2 purged records, got %d", n)
	}
	if len(tbl.Switch(1)) != 0 {
		t.Fatalf("switch 1 should have no records left")
	}
	if len(tbl.Switch(2)) != 1 {
		t.Fatalf("switch 2 records must survive")
	}
}

func TestTableConcurrentAccess(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(port uint32) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tbl.Put(record(1, "a", "b", port, 10))
				tbl.Priority(KeyOf(1, domain.Match{EthSrc: "a", EthDst: "b", InPort: port}))
				tbl.All()
			}
		}(uint32(i + 1))
	}
	wg.Wait()
	if tbl.Len() != 8 {
		t.Fatalf("expected 8 records, got %d", tbl.Len())
	}
}

func TestFormatLine(t *testing.T) {
	r := record(1, "00:00:00:00:00:01", "00:00:00:00:00:02", 1, 30)
	r.IdleTimeout = 30
	want := "priority=30,in_port=1,dl_src=00:00:00:00:00:01,dl_dst=00:00:00:00:00:02,idle_timeout=30 actions=set_queue:1,output:2"
	if got := FormatLine(r); got != want {
		t.Fatalf("unexpected line:\n got %s\nwant %s", got, want)
	}

	miss := Record{
		Key:     KeyOf(1, domain.Match{}),
		Actions: []domain.Action{domain.OutputController(domain.ControllerNoBufferLen)},
	}
	if got := FormatLine(miss); got != "priority=0 actions=CONTROLLER:65535" {
		t.Fatalf("unexpected table-miss line %q", got)
	}
}

func TestWriteDumpGroupsBySwitch(t *testing.T) {
	tbl := NewTable()
	tbl.Put(record(2, "a", "b", 1, 10))
	tbl.Put(record(1, "a", "b", 1, 10))
	tbl.Put(record(1, "b", "a", 2, 30))

	var buf bytes.Buffer
	if err := WriteDump(&buf, tbl.All()); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "dpid=1" || lines[3] != "dpid=2" {
		t.Fatalf("unexpected switch headers:\n%s", buf.String())
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[1]), "priority=30") {
		t.Fatalf("expected highest priority first, got %q", lines[1])
	}
}
