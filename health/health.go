package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShardStatus describes one gateway session.
type ShardStatus struct {
	ID      int
	Status  string
	Latency time.Duration
}

// Pinger is implemented by backing stores whose reachability is reported.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is a point-in-time view of the gateway and its host.
type Report struct {
	Shards   []ShardStatus
	Counters map[string]int64
	CPU      float64
	Memory   float64
	Host     string
	Cache    string
}

// Collect gathers host metrics and the cache status concurrently. Host
// metric failures are reported in the Host field instead of failing the
// whole report. A nil cache is reported as not configured.
func Collect(ctx context.Context, shards []ShardStatus, counters *Counters, cache Pinger) Report {
	report := Report{
		Shards:   append([]ShardStatus(nil), shards...),
		Counters: counters.Snapshot(),
		Host:     FormatStatus(nil),
		Cache:    "`Not Configured`",
	}
	sort.Slice(report.Shards, func(i, j int) bool { return report.Shards[i].ID < report.Shards[j].ID })

	var hostErr, cacheErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cpuUsage, err := CPUUsage(gctx)
		if err != nil {
			hostErr = err
			return nil
		}
		report.CPU = cpuUsage
		return nil
	})
	g.Go(func() error {
		memUsage, err := MemoryUsage(gctx)
		if err != nil {
			return err
		}
		report.Memory = memUsage
		return nil
	})
	if cache != nil {
		g.Go(func() error {
			cacheErr = cache.Ping(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil && hostErr == nil {
		hostErr = err
	}

	report.Host = FormatStatus(hostErr)
	if cache != nil {
		report.Cache = FormatStatus(cacheErr)
	}
	return report
}

// FormatStatus renders err as a short status string.
func FormatStatus(err error) string {
	if err != nil {
		return fmt.Sprintf("**ERROR**: `%v`", err)
	}
	return "**OK**"
}

// String renders the report as markdown lines.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Host**: %s (cpu %.1f%%, memory %.1f%%)\n", r.Host, r.CPU, r.Memory)
	fmt.Fprintf(&b, "**Cache**: %s\n", r.Cache)
	for _, s := range r.Shards {
		fmt.Fprintf(&b, "**Shard %d**: `%s` (%dms)\n", s.ID, s.Status, s.Latency.Milliseconds())
	}

	names := make([]string, 0, len(r.Counters))
	for name := range r.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "`%s`: %d\n", name, r.Counters[name])
	}
	return b.String()
}
