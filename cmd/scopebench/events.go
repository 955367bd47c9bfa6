package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/delaneyj/scopeparty/pkg/telemetry"
	"github.com/delaneyj/scopeparty/scope"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
)

const pingEvent = "ping"

// eventTree is width chains of depth scopes, every one listening for pings.
type eventTree struct {
	root       *scope.Scope
	leaves     []*scope.Scope
	size       int
	deliveries int64
}

func buildEventTree(width, depth int, opts ...scope.Option) *eventTree {
	t := &eventTree{root: scope.New(opts...), size: 1}
	listen := func(s *scope.Scope) {
		s.On(pingEvent, func(*scope.Event, ...any) error {
			t.deliveries++
			return nil
		})
	}
	listen(t.root)

	for range width {
		parent := t.root
		for range depth {
			parent = parent.NewChild()
			listen(parent)
			t.size++
		}
		t.leaves = append(t.leaves, parent)
	}
	return t
}

type eventResult struct {
	duration   time.Duration
	deliveries int64
}

func (r eventResult) rate() int64 {
	if r.duration <= 0 {
		return 0
	}
	return int64(float64(r.deliveries) / r.duration.Seconds())
}

func (t *eventTree) measure(iterations int, fire func()) eventResult {
	t.deliveries = 0
	start := time.Now()
	for range iterations {
		fire()
	}
	return eventResult{duration: time.Since(start), deliveries: t.deliveries}
}

func runEventsBench(ctx context.Context, cfg EventsConfig, w io.Writer, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheus(telemetry.WithRegistry(reg))

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"size", "scopes", "mode", "nTimes", "deliveries", "time", "deliveries/s"})

	for _, width := range cfg.Widths {
		for _, depth := range cfg.Depths {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Info("running events", "width", width, "depth", depth)

			t := buildEventTree(width, depth,
				scope.WithLogger(logger),
				scope.WithInstrumentation(metrics),
			)
			results := []struct {
				mode string
				eventResult
			}{
				{"emit", t.measure(cfg.Iterations, func() {
					for _, leaf := range t.leaves {
						leaf.Emit(pingEvent, width, depth)
					}
				})},
				{"broadcast", t.measure(cfg.Iterations, func() {
					t.root.Broadcast(pingEvent, width, depth)
				})},
			}

			for _, r := range results {
				tbl.Append([]string{
					fmt.Sprintf("%dx%d", width, depth),
					humanize.Comma(int64(t.size)),
					r.mode,
					humanize.Comma(int64(cfg.Iterations)),
					humanize.Comma(r.deliveries),
					fmt.Sprint(r.duration),
					humanize.Comma(r.rate()),
				})
			}

			// a digest per tree so the counters show the tree was idle
			if err := t.root.Digest(); err != nil {
				return err
			}
		}
	}
	tbl.Render()

	return renderCounters(w, reg)
}
