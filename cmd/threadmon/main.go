package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/nhdewitt/threadmon/internal/agent"
	"github.com/nhdewitt/threadmon/internal/collector"
	"github.com/nhdewitt/threadmon/internal/config"
	"github.com/nhdewitt/threadmon/internal/platform"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadmon: %v\n", err)
		return 2
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "threadmon",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
		Output:     os.Stderr,
	})

	info := platform.Detect()

	src, err := collector.NewSource(info)
	if err != nil {
		logger.Error("no stat source", "error", err)
		return 1
	}

	a, err := agent.New(cfg, src, info, logger)
	if err != nil {
		logger.Error("starting agent", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel, logger)

	go func() {
		<-ctx.Done()
		a.Shutdown()
	}()

	if err := a.Start(); err != nil {
		logger.Error("agent stopped", "error", err)
		a.Shutdown()
		return 1
	}
	a.Shutdown()
	return 0
}

func setupSignalHandler(cancel context.CancelFunc, logger hclog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received termination signal, shutting down", "signal", sig)
		cancel()
	}()
}
