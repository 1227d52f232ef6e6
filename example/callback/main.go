package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisSDN/pkg/aegissdn"
)

func main() {
	flow, err := aegissdn.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []aegissdn.Event) error {
		for _, e := range batch {
			switch {
			case e.Migration != nil:
				fmt.Printf("%s migration dpid=%s %s -> %s\n",
					e.Time.Format(time.RFC3339Nano), e.Migration.DPID, e.Migration.From, e.Migration.To)
			case e.Threshold != nil:
				fmt.Printf("%s threshold %d -> %d\n",
					e.Time.Format(time.RFC3339Nano), e.Threshold.Old, e.Threshold.New)
			default:
				fmt.Printf("%s %s dpid=%s\n", e.Time.Format(time.RFC3339Nano), e.Kind, e.DPID)
			}
		}
		return nil
	}

	if err := flow.Run(ctx, aegissdn.ExportCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
