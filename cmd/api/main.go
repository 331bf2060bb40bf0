package main

import (
	"context"
	"flag"
	"os"

	"governance-sync/internal/api"
	"governance-sync/internal/app"
	"governance-sync/internal/config"
	"governance-sync/internal/logging"

	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Errorf("failed to load config: %v", err)
		return 1
	}
	if closer := logging.Init(cfg.Log); closer != nil {
		defer closer.Close()
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logrus.Errorf("failed to initialise: %v", err)
		return 1
	}
	defer a.Close()

	srv := api.NewServer(a.Engine, a.Store, a.Source, a.Parser)
	logrus.Infof("API server listening on %s", cfg.API.Addr)
	if err := srv.Run(cfg.API.Addr); err != nil {
		logrus.Errorf("server stopped with error: %v", err)
		return 1
	}
	return 0
}
