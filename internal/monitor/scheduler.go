// Package monitor owns the set of monitored processes and drives the
// periodic sample, reconcile and broadcast cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nhdewitt/threadmon/internal/broadcast"
	"github.com/nhdewitt/threadmon/internal/collector"
	"github.com/nhdewitt/threadmon/internal/protocol"
	"oss.indeed.com/go/libtime"
)

const DefaultInterval = time.Second

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("scheduler stopped")

// State is the phase of the current tick.
type State int32

const (
	StateIdle State = iota
	StateSamplingCPU
	StateSamplingTasks
	StateReconciling
	StateBroadcasting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSamplingCPU:
		return "sampling-cpu"
	case StateSamplingTasks:
		return "sampling-tasks"
	case StateReconciling:
		return "reconciling"
	case StateBroadcasting:
		return "broadcasting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Broadcaster receives one snapshot per tick.
type Broadcaster interface {
	Broadcast(protocol.Snapshot) error
}

type Config struct {
	Interval time.Duration

	// UpdateCores samples every core on each tick, not just the aggregate.
	UpdateCores bool

	// AllCores normalizes thread usage against the whole machine instead
	// of a single core.
	AllCores bool
}

type Option func(*Scheduler)

func WithClock(clock libtime.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithLogger(logger hclog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler runs the tick loop. All registry and sampler state is touched
// only from the goroutine running Run; commands are sent to it over cmds.
type Scheduler struct {
	cfg      Config
	interval time.Duration

	src      collector.Source
	cpu      *collector.CPUSampler
	registry *Registry
	out      Broadcaster

	clock  libtime.Clock
	logger hclog.Logger

	state   atomic.Int32
	cmds    chan func()
	stopped chan struct{}
}

// New builds a scheduler and takes the baseline CPU reading.
func New(src collector.Source, out Broadcaster, cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	s := &Scheduler{
		cfg:      cfg,
		interval: cfg.Interval,
		src:      src,
		registry: NewRegistry(),
		out:      out,
		clock:    libtime.SystemClock(),
		logger:   hclog.NewNullLogger(),
		cmds:     make(chan func()),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")

	cpu, err := collector.NewCPUSampler(src)
	if err != nil {
		return nil, fmt.Errorf("priming cpu sampler: %w", err)
	}
	s.cpu = cpu

	return s, nil
}

// State reports the phase of the tick in progress.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run ticks every interval until ctx is cancelled. Commands are executed
// between ticks. A slow tick delays the next one; ticks never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.stopped)

	s.logger.Info("starting", "interval", s.interval, "cores", s.cpu.NumCores())

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopped")
			return
		case fn := <-s.cmds:
			fn()
		case <-timer.C:
			s.tick()
			timer.Reset(s.interval)
		}
	}
}

// tick runs one full cycle. Tasks and processes found gone are still in
// the snapshot broadcast by this tick and are removed right after it.
func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in tick", "panic", r)
		}
		s.setState(StateIdle)
	}()

	now := s.clock.Now()

	s.setState(StateSamplingCPU)
	cpuErr := s.cpu.Update(s.cfg.UpdateCores)
	if cpuErr != nil {
		s.logger.Warn("cpu sample failed, task usage held", "error", cpuErr)
	}
	intervalTicks := s.cpu.IntervalTicks(s.cfg.AllCores)

	entries := s.registry.Entries()

	// Task counters are only read alongside a good cpu reading so that both
	// deltas of the next update span the same window.
	s.setState(StateSamplingTasks)
	for _, e := range entries {
		if cpuErr == nil {
			s.sampleTasks(e, intervalTicks)
		}
		s.sampleMemory(e)
	}

	s.setState(StateReconciling)
	for _, e := range entries {
		e.plan = collector.PlanReconcile(s.src, e.PID, e.Tasks.IDs())
		if cpuErr != nil {
			// seeded on the next good tick instead
			e.plan.Fresh = nil
		}
	}

	s.setState(StateBroadcasting)
	if err := s.out.Broadcast(s.snapshot(now)); err != nil {
		if errors.Is(err, broadcast.ErrNoSubscribers) {
			s.logger.Trace("snapshot not delivered", "error", err)
		} else {
			s.logger.Warn("broadcast failed", "error", err)
		}
	}

	for _, e := range entries {
		s.applyPlan(e)
	}
}

func (s *Scheduler) sampleTasks(e *ProcessEntry, intervalTicks uint64) {
	e.dead = e.dead[:0]
	for _, t := range e.Tasks.Sorted() {
		if !t.Update(s.src, intervalTicks) {
			e.dead = append(e.dead, t.ID)
		}
	}
}

func (s *Scheduler) sampleMemory(e *ProcessEntry) {
	mem, err := s.src.ReadMemory(e.PID)
	if err != nil {
		s.logger.Debug("process exited", "pid", e.PID, "name", e.Name, "error", err)
		return
	}
	e.Mem = mem
}

func (s *Scheduler) applyPlan(e *ProcessEntry) {
	if !e.plan.OK {
		s.registry.Remove(e.PID)
		s.logger.Info("process gone, no longer monitored", "pid", e.PID, "name", e.Name)
		return
	}

	for _, tid := range e.dead {
		if e.Tasks.Remove(tid) {
			s.logger.Debug("task gone", "pid", e.PID, "tid", tid)
		}
	}
	for _, tid := range e.plan.Gone {
		s.logger.Debug("thread exited", "pid", e.PID, "tid", tid)
	}

	added := e.plan.Apply(s.src, e.PID, e.Tasks)
	for _, tid := range added {
		s.logger.Debug("thread added", "pid", e.PID, "tid", tid)
	}

	e.dead = e.dead[:0]
	e.plan = collector.ReconcileResult{}
}

// snapshot assembles the outbound messages from the current state. Every
// message shares the tick's timestamp.
func (s *Scheduler) snapshot(now time.Time) protocol.Snapshot {
	ts := now.UnixMilli()

	cpu := protocol.CPUMessage{
		Aggregate: protocol.CPUInfo{
			Name:      s.cpu.Aggregate.Name,
			Usage:     s.cpu.Aggregate.Usage,
			Timestamp: ts,
		},
		Timestamp: ts,
	}
	if s.cfg.UpdateCores {
		cpu.Cores = make([]protocol.CPUInfo, len(s.cpu.Cores))
		for i, c := range s.cpu.Cores {
			cpu.Cores[i] = protocol.CPUInfo{Name: c.Name, Usage: c.Usage, Timestamp: ts}
		}
	}

	entries := s.registry.Entries()
	procs := protocol.ProcessMessage{
		Infos:     make([]protocol.ProcessInfo, 0, len(entries)),
		Timestamp: ts,
	}
	for _, e := range entries {
		info := protocol.ProcessInfo{
			ID:   e.PID,
			Name: e.Name,
			Mem: protocol.MemInfo{
				Peak:      e.Mem.Peak,
				Size:      e.Mem.Size,
				HWM:       e.Mem.HWM,
				RSS:       e.Mem.RSS,
				Timestamp: ts,
			},
		}
		tasks := e.Tasks.Sorted()
		info.Threads = make([]protocol.ThreadInfo, len(tasks))
		for i, t := range tasks {
			info.Threads[i] = protocol.ThreadInfo{
				ID:        t.ID,
				Name:      t.Name,
				Usage:     t.Usage,
				Timestamp: ts,
			}
		}
		procs.Infos = append(procs.Infos, info)
	}

	return protocol.Snapshot{
		Timestamp: now,
		CPU:       cpu,
		Processes: procs,
	}
}
