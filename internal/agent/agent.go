// Package agent wires the scheduler to its consumers: the command server,
// the push sender and the console reporter.
package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/nhdewitt/threadmon/internal/broadcast"
	"github.com/nhdewitt/threadmon/internal/collector"
	"github.com/nhdewitt/threadmon/internal/config"
	"github.com/nhdewitt/threadmon/internal/console"
	"github.com/nhdewitt/threadmon/internal/monitor"
	"github.com/nhdewitt/threadmon/internal/platform"
	"github.com/nhdewitt/threadmon/internal/sender"
	"github.com/nhdewitt/threadmon/internal/server"
)

const (
	consoleBuffer = 1
	senderBuffer  = 16
)

// Agent is the main application controller
type Agent struct {
	Config   config.Config
	Platform platform.Info

	// Out receives console output when the agent is not serving.
	Out io.Writer

	logger hclog.Logger
	hub    *broadcast.Hub
	sched  *monitor.Scheduler

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	errOnce sync.Once
	err     error
}

// New builds the agent and primes the cpu sampler. Nothing runs until Start.
func New(cfg config.Config, src collector.Source, info platform.Info, logger hclog.Logger) (*Agent, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	hub := broadcast.NewHub(logger)

	sched, err := monitor.New(src, hub, monitor.Config{
		Interval:    cfg.Interval,
		UpdateCores: cfg.UpdateCores || cfg.CoresOnly,
		AllCores:    cfg.AllCores,
	}, monitor.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Agent{
		Config:   cfg,
		Platform: info,
		Out:      os.Stdout,
		logger:   logger,
		hub:      hub,
		sched:    sched,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Scheduler exposes the command surface.
func (a *Agent) Scheduler() *monitor.Scheduler {
	return a.sched
}

// Start launches every subsystem and blocks until Shutdown is called or a
// subsystem fails.
func (a *Agent) Start() error {
	a.logger.Info("threadmon starting",
		"hostname", a.Config.Hostname,
		"cpus", a.Platform.NumCPU,
		"kernel", a.Platform.KernelVersion,
		"interval", a.Config.Interval)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Run(a.ctx)
	}()

	if !a.Config.CoresOnly {
		a.Register(a.ctx)
	}

	if a.Config.Serve {
		a.startServer()
	}

	if a.Config.PushURL != "" {
		if err := a.startSender(); err != nil {
			a.fail(err)
		}
	}

	if !a.Config.Serve {
		if err := a.startConsole(); err != nil {
			a.fail(err)
		}
	}

	<-a.ctx.Done()
	return a.err
}

// Shutdown gracefully stops all background tasks
func (a *Agent) Shutdown() {
	a.cancel()
	a.wg.Wait()
	a.hub.Close()
}

func (a *Agent) fail(err error) {
	a.errOnce.Do(func() {
		a.err = err
		a.cancel()
	})
}

func (a *Agent) startServer() {
	srv := server.New(server.Config{
		Addr:     a.Config.ListenAddr,
		Hostname: a.Config.Hostname,
	}, a.sched, a.hub, a.logger)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := srv.Start(a.ctx); err != nil {
			a.fail(fmt.Errorf("server: %w", err))
		}
	}()
}

func (a *Agent) startSender() error {
	snd, err := sender.New(sender.Config{
		URL:      a.Config.PushURL,
		Hostname: a.Config.Hostname,
		Interval: a.Config.PushInterval,
	}, a.logger)
	if err != nil {
		return err
	}

	sub, err := a.hub.Subscribe(senderBuffer)
	if err != nil {
		return fmt.Errorf("subscribing sender: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer sub.Close()
		snd.Run(a.ctx, sub.C)
	}()
	return nil
}

func (a *Agent) startConsole() error {
	sub, err := a.hub.Subscribe(consoleBuffer)
	if err != nil {
		return fmt.Errorf("subscribing console: %w", err)
	}

	rep := console.New(a.Out, a.Config.CoresOnly)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer sub.Close()
		if err := rep.Run(a.ctx, sub.C); err != nil {
			a.fail(fmt.Errorf("console: %w", err))
		}
	}()
	return nil
}
