package main

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/AegisSDN"
)

//go:embed assets/banner_color.ansi
var bannerColor string

//go:embed assets/banner_plain.txt
var bannerPlain string

func main() {
	fmt.Print(selectBanner())
	fmt.Println()
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "flows":
		err = flowsCommand(os.Args[2:])
	case "tier":
		err = tierCommand(os.Args[2:])
	case "replay":
		err = replayCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("aegis-sdn %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to controller configuration file (built-in emulator defaults when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		flow *aegissdn.Flow
		err  error
	)
	if *cfgPath == "" {
		flow, err = aegissdn.ConfFromConfig(aegissdn.DefaultConfig())
	} else {
		flow, err = aegissdn.Conf(*cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := aegissdn.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good ✅\n", *cfgPath)
	return nil
}

func selectBanner() string {
	if os.Getenv("NO_COLOR") != "" {
		return bannerPlain
	}
	return bannerColor
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"aegis_sdn_packet_in_total":       0,
		"aegis_sdn_flows_installed_total": 0,
		"aegis_sdn_migrations_total":      0,
		"aegis_sdn_threshold":             0,
		"aegis_sdn_switches":              0,
		"aegis_sdn_queue_length":          0,
		"aegis_sdn_journal_size_bytes":    0,
		"aegis_sdn_events_exported_total": 0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] switches=%.0f packet_in=%.0f flows=%.0f migrations=%.0f threshold=%.0f queue=%.0f journal_bytes=%.0f exported=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["aegis_sdn_switches"],
		targets["aegis_sdn_packet_in_total"],
		targets["aegis_sdn_flows_installed_total"],
		targets["aegis_sdn_migrations_total"],
		targets["aegis_sdn_threshold"],
		targets["aegis_sdn_queue_length"],
		targets["aegis_sdn_journal_size_bytes"],
		targets["aegis_sdn_events_exported_total"],
	)
	return nil
}

func flowsCommand(args []string) error {
	fs := flag.NewFlagSet("flows", flag.ExitOnError)
	api := fs.String("api", "http://localhost:9100", "Admin API base URL")
	dpid := fs.String("dpid", "", "Only dump this switch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	url := strings.TrimRight(*api, "/") + "/api/v1/flows?format=text"
	if *dpid != "" {
		url += "&dpid=" + *dpid
	}
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func tierCommand(args []string) error {
	fs := flag.NewFlagSet("tier", flag.ExitOnError)
	api := fs.String("api", "http://localhost:9100", "Admin API base URL")
	dpid := fs.String("dpid", "", "Switch to pin")
	tier := fs.String("tier", "", "HIGH, MEDIUM or LOW")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dpid == "" || *tier == "" {
		return fmt.Errorf("-dpid and -tier are required")
	}

	body, err := json.Marshal(map[string]string{"tier": *tier})
	if err != nil {
		return err
	}
	url := strings.TrimRight(*api, "/") + "/api/v1/switches/" + *dpid + "/tier"
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(out)))
	}
	fmt.Printf("%s\n", out)
	return nil
}

func replayCommand(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	dir := fs.String("journal", "./data/journal", "Journal directory to reconstruct")
	events := fs.Bool("events", false, "Print every journaled event as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *events {
		enc := json.NewEncoder(os.Stdout)
		return aegissdn.ReadJournal(*dir, func(_ aegissdn.JournalEntryID, e *aegissdn.Event) error {
			return enc.Encode(e)
		})
	}

	snap, err := aegissdn.Replay(*dir)
	if err != nil {
		return err
	}
	printSnapshot(os.Stdout, snap)
	return nil
}

func printSnapshot(w io.Writer, snap *aegissdn.Snapshot) {
	fmt.Fprintf(w, "events=%d threshold=%d migrations=%d\n", snap.Events, snap.Threshold, len(snap.Migrations))

	dpids := make([]aegissdn.DPID, 0, len(snap.Switches))
	for dpid := range snap.Switches {
		dpids = append(dpids, dpid)
	}
	sort.Slice(dpids, func(i, j int) bool { return dpids[i] < dpids[j] })
	for _, dpid := range dpids {
		sw := snap.Switches[dpid]
		state := "down"
		if sw.Connected {
			state = "up"
		}
		fmt.Fprintf(w, "dpid=%s owner=%s tier=%s %s flows=%d\n", dpid, sw.Owner, sw.Tier, state, len(sw.Flows))
		for _, f := range sw.Flows {
			fmt.Fprintf(w, "  priority=%d in_port=%d dl_src=%s dl_dst=%s queue=%d out=%d\n",
				f.Priority, f.Match.InPort, f.Match.EthSrc, f.Match.EthDst, f.Queue, f.OutPort)
		}
	}
	for _, m := range snap.Migrations {
		fmt.Fprintf(w, "migration %s dpid=%s %s -> %s load=%d/%d threshold=%d\n",
			m.Time.Format(time.RFC3339), m.DPID, m.From, m.To, m.FromLoad, m.ToLoad, m.Threshold)
	}
}

func printUsage() {
	fmt.Printf(`AegisSDN CLI

Usage:
  aegis-sdn <command> [flags]

Commands:
  run        Start the controller (built-in emulator when no config is given)
  validate   Load and validate a config file without starting the controller
  stats      Poll the Prometheus metrics endpoint and print live counters
  flows      Print the installed flow tables from a running controller
  tier       Pin a switch to a tier (only LOW switches are migrated)
  replay     Rebuild switch ownership, flows and migrations from a journal

Examples:
  aegis-sdn run -config ./data/config.yaml
  aegis-sdn validate -config ./data/config.yaml
  aegis-sdn stats -url http://localhost:9100/metrics -interval 1s
  aegis-sdn flows -dpid 1
  aegis-sdn tier -dpid 2 -tier high
  aegis-sdn replay -journal ./data/journal
`)
}
