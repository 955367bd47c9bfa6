package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/scopeparty/loop"
	"github.com/delaneyj/scopeparty/pkg/telemetry"
	"github.com/delaneyj/scopeparty/scope"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
)

func levelKey(level int) string {
	return "v" + strconv.Itoa(level)
}

// digestTree is width chains of depth child scopes under one root. Every scope
// of a chain watches the value its parent derived and derives the next one.
// Parents are digested before children, so a change at the root reaches the
// leaves in a single pass.
type digestTree struct {
	root      *scope.Scope
	hash      *xxhash.Digest
	reactions int
}

func buildDigestTree(width, depth int, opts ...scope.Option) *digestTree {
	t := &digestTree{
		root: scope.New(opts...),
		hash: xxhash.New(),
	}
	t.root.Set(levelKey(0), 0)

	for chain := range width {
		parent := t.root
		for level := 1; level <= depth; level++ {
			child := parent.NewChild()
			child.Watch(scope.Field(levelKey(level-1)), func(newValue, _ any, s *scope.Scope) error {
				n, _ := newValue.(int)
				s.Set(levelKey(level), n+1)
				t.reactions++
				fmt.Fprintf(t.hash, "%d.%d=%d;", chain, level, n)
				return nil
			})
			parent = child
		}
	}
	return t
}

// fingerprint identifies the order and values of every reaction so far.
func (t *digestTree) fingerprint() uint64 {
	return t.hash.Sum64()
}

func runDigestBench(ctx context.Context, cfg DigestConfig, w io.Writer, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheus(telemetry.WithRegistry(reg))

	var l *loop.Loop
	if cfg.Async {
		l = loop.New(logger)
		go func() {
			if err := l.Run(ctx); err != nil {
				logger.Error("loop stopped", "error", err)
			}
		}()
		defer l.Stop()
	}

	title := "Apply round trips"
	if cfg.Async {
		title = "ApplyAsync round trips on a loop"
	}
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(w)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max", "reactions", "fingerprint"})

	logger.Info("warming up")
	for _, width := range cfg.Widths {
		for _, depth := range cfg.Depths {
			opts := []scope.Option{scope.WithLogger(logger)}
			if l != nil {
				opts = append(opts, scope.WithScheduler(l))
			}

			warm := buildDigestTree(width, depth, opts...)
			if err := drive(ctx, l, warm, cfg.Iterations, nil); err != nil {
				return err
			}

			tach := tachymeter.New(&tachymeter.Config{Size: cfg.Iterations})
			measured := buildDigestTree(width, depth, append(opts, scope.WithInstrumentation(metrics))...)
			if err := drive(ctx, l, measured, cfg.Iterations, tach); err != nil {
				return err
			}
			if warm.fingerprint() != measured.fingerprint() {
				return fmt.Errorf("reaction order of %d * %d differs between runs", width, depth)
			}

			calc := tach.Calc()
			tbl.AppendRow(table.Row{
				fmt.Sprintf("propagate: %d * %d", width, depth),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
				measured.reactions,
				fmt.Sprintf("%016x", measured.fingerprint()),
			})
		}
	}
	tbl.Render()

	return renderCounters(w, reg)
}

// drive changes the root value iterations times and waits for each change to
// settle, timing it when tach is set.
func drive(ctx context.Context, l *loop.Loop, t *digestTree, iterations int, tach *tachymeter.Tachymeter) error {
	for i := range iterations {
		start := time.Now()
		var err error
		if l == nil {
			err = t.root.Apply(func(s *scope.Scope, _ scope.Locals) (any, error) {
				s.Set(levelKey(0), i+1)
				return nil, nil
			})
		} else {
			err = driveAsync(ctx, l, t, i+1)
		}
		if err != nil {
			return err
		}
		if tach != nil {
			tach.AddTime(time.Since(start))
		}
	}
	return nil
}

func driveAsync(ctx context.Context, l *loop.Loop, t *digestTree, value int) error {
	settled := make(chan struct{})
	err := l.Submit(func() {
		t.root.ApplyAsync(func(s *scope.Scope, _ scope.Locals) (any, error) {
			s.Set(levelKey(0), value)
			return nil, nil
		})
		t.root.PostDigest(func() error {
			close(settled)
			return nil
		})
	})
	if err != nil {
		return err
	}

	select {
	case <-settled:
		return nil
	case <-l.Done():
		return loop.ErrLoopTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}
