// Command process runs a single processing pass over the message queues and
// exits. It is intended for cron-style deployments where no long-running
// scheduler is wanted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/kwetu-labs/whatsdrip/internal/app"
	"github.com/kwetu-labs/whatsdrip/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("WHATSDRIP_CONFIG"), "path to YAML config file")
	queue := flag.String("queue", "", "process only this queue family (drip or hybrid)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall pass timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	// The pass runs in-process; the embedded scheduler must stay off.
	cfg.Scheduler.Enabled = false

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	processors := application.Processors()

	names := make([]string, 0, len(processors))
	for name := range processors {
		if *queue != "" && name != *queue {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		slog.Error("no matching queue", "queue", *queue)
		os.Exit(1)
	}

	failed := false
	for _, name := range names {
		result, err := processors[name].ProcessPass(ctx)
		if err != nil {
			slog.Error("queue pass failed", "queue", name, "error", err)
			failed = true
			continue
		}
		slog.Info("queue pass finished",
			"queue", name,
			"scanned", result.Scanned,
			"sent", result.Sent,
			"failed", result.Failed,
			"completed", result.Completed,
			"removed", result.Removed,
		)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = application.Shutdown(shutdownCtx)

	if failed {
		os.Exit(1)
	}
}
