package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codedmart/rethinkdb-go/bench"
)

func main() {
	addr := flag.String("addr", "localhost:28015", "RethinkDB server address")
	numClients := flag.Int("clients", 1, "number of concurrent connections")
	iterations := flag.Int("iterations", 100, "number of iterations per connection")
	batchSize := flag.Int("batch", 16, "max_batch_rows for cursor mode")
	mode := flag.String("mode", "atom", "benchmark mode: atom or cursor")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Printf("\n=== rethinkdb-go benchmark ===\n\n")
	fmt.Printf("Server:     %s\n", *addr)
	fmt.Printf("Mode:       %s\n", *mode)
	fmt.Printf("Iterations: %d\n", *iterations)

	switch *mode {
	case "atom":
		fmt.Printf("Clients:    %d\n\n", *numClients)
		result, err := bench.RunAtomLatency(*addr, logger, *numClients, *iterations)
		if err != nil {
			fmt.Printf("benchmark failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ops:        %d across %d client(s)\n", result.TotalOps, result.NumClients)
		fmt.Printf("avg:        %v\n", time.Duration(result.AvgLatencyNs))
		fmt.Printf("p50 / p95 / p99: %v / %v / %v\n",
			time.Duration(result.P50LatencyNs), time.Duration(result.P95LatencyNs), time.Duration(result.P99LatencyNs))

	case "cursor":
		fmt.Printf("Batch size: %d\n\n", *batchSize)
		result, err := bench.RunCursorThroughput(*addr, logger, *batchSize, *iterations)
		if err != nil {
			fmt.Printf("benchmark failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("datums:     %d over %d queries\n", result.TotalDatums, result.Iterations)
		fmt.Printf("CONTINUEs:  %d\n", result.ContinueCount)
		fmt.Printf("throughput: %.0f datums/sec\n", result.DatumsPerSecond)
		fmt.Printf("duration:   %v\n", result.Duration)

	default:
		fmt.Printf("unknown mode %q (want atom or cursor)\n", *mode)
		os.Exit(1)
	}

	fmt.Printf("\nBenchmark complete.\n\n")
}
