package bench

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	rethinkdb "github.com/codedmart/rethinkdb-go"
)

// LatencyResult reports round-trip percentiles for a single-response
// (SUCCESS_ATOM) query workload.
type LatencyResult struct {
	Operation    string
	NumClients   int
	TotalOps     int
	Duration     time.Duration
	AvgLatencyNs int64
	P50LatencyNs int64
	P95LatencyNs int64
	P99LatencyNs int64
}

// ThroughputResult reports how a Cursor drains a multi-batch sequence:
// how many CONTINUE round trips it took and how fast datums arrived.
type ThroughputResult struct {
	BatchSize       int
	Iterations      int
	TotalDatums     int
	ContinueCount   int
	Duration        time.Duration
	DatumsPerSecond float64
}

// datumEchoTerm builds the minimal DATUM term (ql2 term type 1, whose
// single argument slot carries the literal value itself rather than
// an args array) needed to exercise a full request/response round
// trip without the out-of-scope query builder.
func datumEchoTerm(value interface{}) rethinkdb.Term {
	return []interface{}{1, value}
}

// rangeTerm builds a RANGE(n) term (ql2 term type 173): a sequence of
// n integers the server streams back as SUCCESS_PARTIAL batches
// followed by a terminal SUCCESS_SEQUENCE, the shape this harness
// needs to drive CONTINUE round trips without a table.
func rangeTerm(n int) rethinkdb.Term {
	return []interface{}{173, []interface{}{n}}
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return host, port, nil
}

func closeAll(conns []*rethinkdb.Connection) {
	for _, c := range conns {
		if c != nil {
			c.Close()
		}
	}
}

// RunAtomLatency measures round-trip latency of a single-result
// (SUCCESS_ATOM) query across numClients concurrent connections,
// iterations times per connection.
func RunAtomLatency(addr string, logger *slog.Logger, numClients, iterations int) (LatencyResult, error) {
	host, port, err := splitAddr(addr)
	if err != nil {
		return LatencyResult{}, err
	}

	conns := make([]*rethinkdb.Connection, numClients)
	for i := range conns {
		conn, err := rethinkdb.Connect(host, port, "", rethinkdb.WithLogger(logger))
		if err != nil {
			closeAll(conns[:i])
			return LatencyResult{}, fmt.Errorf("connect client %d: %w", i, err)
		}
		conns[i] = conn
	}
	defer closeAll(conns)

	latencies := make([]int64, 0, numClients*iterations)

	for _, conn := range conns {
		for iter := 0; iter < iterations; iter++ {
			term := datumEchoTerm(iter)
			start := time.Now()

			handle, err := conn.RunQuery(rethinkdb.NewStartQuery(term, nil), term)
			if err != nil {
				return LatencyResult{}, fmt.Errorf("run query: %w", err)
			}
			cursor := rethinkdb.MakeCursor(handle)
			if _, _, err := cursor.Next(); err != nil {
				cursor.Close()
				return LatencyResult{}, fmt.Errorf("read response: %w", err)
			}
			cursor.Close()

			latencies = append(latencies, time.Since(start).Nanoseconds())
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum, total int64
	for _, l := range latencies {
		sum += l
		total += l
	}

	return LatencyResult{
		Operation:    "Atom round trip",
		NumClients:   numClients,
		TotalOps:     len(latencies),
		Duration:     time.Duration(total),
		AvgLatencyNs: sum / int64(len(latencies)),
		P50LatencyNs: latencies[len(latencies)*50/100],
		P95LatencyNs: latencies[len(latencies)*95/100],
		P99LatencyNs: latencies[len(latencies)*99/100],
	}, nil
}

// RunCursorThroughput issues RANGE queries capped to batchSize rows
// per response (via the max_batch_rows global optarg) and drains each
// one with a Cursor, counting how many CONTINUE round trips it took
// to reach the terminal SUCCESS_SEQUENCE and how many datums/sec
// arrived overall.
func RunCursorThroughput(addr string, logger *slog.Logger, batchSize, iterations int) (ThroughputResult, error) {
	host, port, err := splitAddr(addr)
	if err != nil {
		return ThroughputResult{}, err
	}

	conn, err := rethinkdb.Connect(host, port, "", rethinkdb.WithLogger(logger))
	if err != nil {
		return ThroughputResult{}, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	opts := map[string]interface{}{"max_batch_rows": batchSize}

	totalDatums := 0
	continueCount := 0
	start := time.Now()

	for iter := 0; iter < iterations; iter++ {
		term := rangeTerm(batchSize * 4)

		handle, err := conn.RunQuery(rethinkdb.NewStartQuery(term, opts), term)
		if err != nil {
			return ThroughputResult{}, fmt.Errorf("run query: %w", err)
		}
		cursor := rethinkdb.MakeCursor(handle)

		batchCount := 0
		for {
			batch, err := cursor.NextBatch()
			if err != nil {
				cursor.Close()
				return ThroughputResult{}, fmt.Errorf("drain cursor: %w", err)
			}
			if len(batch) == 0 {
				break
			}
			batchCount++
			totalDatums += len(batch)
		}
		cursor.Close()

		// Every batch after the first was preceded by a CONTINUE;
		// the first arrives unsolicited in response to START.
		if batchCount > 0 {
			continueCount += batchCount - 1
		}
	}

	duration := time.Since(start)
	var datumsPerSecond float64
	if duration > 0 {
		datumsPerSecond = float64(totalDatums) / duration.Seconds()
	}

	return ThroughputResult{
		BatchSize:       batchSize,
		Iterations:      iterations,
		TotalDatums:     totalDatums,
		ContinueCount:   continueCount,
		Duration:        duration,
		DatumsPerSecond: datumsPerSecond,
	}, nil
}
