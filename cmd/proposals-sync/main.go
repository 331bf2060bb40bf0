package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"governance-sync/internal/app"
	"governance-sync/internal/config"
	"governance-sync/internal/export"
	"governance-sync/internal/logging"

	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run performs one sync pass and returns the process exit status. The CSV
// export is derived from the saved state, so it never decides whether the
// pass succeeded.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("proposals-sync", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to an optional YAML configuration file")
	csvPath := fs.String("csv", "", "Write every stored proposal to this CSV file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Errorf("failed to load config: %v", err)
		return 1
	}

	if closer := logging.Init(cfg.Log); closer != nil {
		defer closer.Close()
	}

	// Prepare cancellable context that listens to OS signals (Ctrl+C).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logrus.Info("interrupt received, aborting sync…")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Errorf("failed to initialise: %v", err)
		return 1
	}
	defer a.Close()

	res, err := a.Engine.Run(ctx, a.Store, a.Source)
	if err != nil {
		logrus.Errorf("sync failed: %v", err)
		return 1
	}

	for _, p := range a.Parser.ParseAll(res.Discovered) {
		logrus.Infof("proposal %s by %s at block %d", p.ID, p.Proposer.Hex(), p.BlockNumber)
	}

	if *csvPath != "" {
		if err := export.WriteFile(*csvPath, a.Parser.ParseAll(res.State.Logs)); err != nil {
			logrus.Warnf("state saved but csv export to %s failed, the next run rewrites it: %v", *csvPath, err)
		}
	}

	fmt.Fprintf(stdout, "Discovered and wrote %d proposals\n", len(res.Discovered))
	return 0
}
