package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisSDN"
)

func main() {
	flow, err := aegissdn.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := aegissdn.NewChannelSink("fanout", 32)
	defer closeBatches()

	go tally("decisions", batches)

	if err := flow.Run(ctx, aegissdn.ExportSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

// tally prints a running count of decisions per kind.
func tally(name string, batches <-chan []aegissdn.Event) {
	counts := map[aegissdn.EventKind]int{}
	for batch := range batches {
		for _, e := range batch {
			counts[e.Kind]++
		}
		fmt.Printf("[%s] %s %v\n", name, time.Now().Format(time.RFC3339), counts)
	}
}
