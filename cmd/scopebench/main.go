package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

const (
	configKey  = "config"
	verboseKey = "verbose"
	asyncKey   = "async"
	itersKey   = "iterations"
)

func main() {
	cmd := &cli.Command{
		Name:  "scopebench",
		Usage: "Benchmark digests and events of scope trees",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configKey,
				Usage: "YAML file overriding tree sizes and iterations",
			},
			&cli.BoolFlag{
				Name:  verboseKey,
				Usage: "Log every digest",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "digest",
				Usage: "Measure Apply round trips through width x depth watcher chains",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  asyncKey,
						Usage: "Drive the trees with ApplyAsync on an event loop",
					},
					&cli.IntFlag{
						Name:  itersKey,
						Usage: "Override the configured iteration count",
					},
				},
				Action: digestAction,
			},
			{
				Name:  "events",
				Usage: "Measure Emit and Broadcast throughput over scope trees",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  itersKey,
						Usage: "Override the configured iteration count",
					},
				},
				Action: eventsAction,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("scopebench failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelInfo
	if cmd.Bool(verboseKey) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func digestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String(configKey))
	if err != nil {
		return err
	}
	if cmd.Bool(asyncKey) {
		cfg.Digest.Async = true
	}
	if n := int(cmd.Int(itersKey)); n > 0 {
		cfg.Digest.Iterations = n
	}
	return runDigestBench(ctx, cfg.Digest, output(cmd), newLogger(cmd))
}

func eventsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String(configKey))
	if err != nil {
		return err
	}
	if n := int(cmd.Int(itersKey)); n > 0 {
		cfg.Events.Iterations = n
	}
	return runEventsBench(ctx, cfg.Events, output(cmd), newLogger(cmd))
}
