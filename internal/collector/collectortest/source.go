// Package collectortest provides an in-memory collector.Source for tests.
package collectortest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nhdewitt/threadmon/internal/collector"
)

type task struct {
	name  string
	ticks uint64
}

type process struct {
	name  string
	tasks map[int]*task
	mem   collector.MemUsage
}

// Source is a scriptable collector.Source. Tests add processes and threads,
// advance tick counters, and kill things between scheduler ticks.
type Source struct {
	mu sync.Mutex

	cores  int
	idle   uint64
	total  uint64
	cpuErr error

	procs map[int]*process
}

var _ collector.Source = (*Source)(nil)

// New returns a Source with the given number of cores and all counters at
// zero.
func New(cores int) *Source {
	if cores < 1 {
		cores = 1
	}
	return &Source{
		cores: cores,
		procs: make(map[int]*process),
	}
}

// AdvanceCPU moves the aggregate counters forward by total ticks, idle of
// which were idle. Cores share the delta evenly.
func (s *Source) AdvanceCPU(total, idle uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += total
	s.idle += idle
}

// CPUErr makes ReadCPU fail with err until called again with nil.
func (s *Source) CPUErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuErr = err
}

// AddProcess registers pid with a main thread whose id is pid.
func (s *Source) AddProcess(pid int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[pid] = &process{
		name:  name,
		tasks: map[int]*task{pid: {name: name}},
	}
}

// AddThread adds a thread to an existing process.
func (s *Source) AddThread(pid, tid int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		p.tasks[tid] = &task{name: name}
	}
}

// KillThread removes a single thread.
func (s *Source) KillThread(pid, tid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		delete(p.tasks, tid)
	}
}

// Exit removes the process and all its threads.
func (s *Source) Exit(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, pid)
}

// Burn adds ticks of CPU time to a thread.
func (s *Source) Burn(pid, tid int, ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		if t, ok := p.tasks[tid]; ok {
			t.ticks += ticks
		}
	}
}

func (s *Source) SetMemory(pid int, mem collector.MemUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		p.mem = mem
	}
}

func (s *Source) ReadCPU(withCores bool) (collector.CPUTicks, []collector.CPUTicks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cpuErr != nil {
		return collector.CPUTicks{}, nil, s.cpuErr
	}

	agg := collector.CPUTicks{Name: "cpu", Idle: s.idle, Total: s.total}
	if !withCores {
		return agg, nil, nil
	}

	n := uint64(s.cores)
	cores := make([]collector.CPUTicks, s.cores)
	for i := range cores {
		cores[i] = collector.CPUTicks{
			Name:  fmt.Sprintf("cpu%d", i),
			Idle:  s.idle / n,
			Total: s.total / n,
		}
	}
	return agg, cores, nil
}

func (s *Source) ReadTask(pid, tid int) (collector.TaskStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[pid]
	if !ok {
		return collector.TaskStat{}, fmt.Errorf("%w: pid %d", collector.ErrNotFound, pid)
	}
	t, ok := p.tasks[tid]
	if !ok {
		return collector.TaskStat{}, fmt.Errorf("%w: task %d of pid %d", collector.ErrNotFound, tid, pid)
	}

	return collector.TaskStat{
		ID:         tid,
		Name:       t.name,
		State:      "R",
		UTime:      t.ticks,
		NumThreads: len(p.tasks),
	}, nil
}

func (s *Source) ListThreads(pid int) (string, []int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[pid]
	if !ok {
		return "", nil, collector.ErrNotFound
	}

	tids := make([]int, 0, len(p.tasks))
	for tid := range p.tasks {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return p.name, tids, nil
}

func (s *Source) ReadMemory(pid int) (collector.MemUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[pid]
	if !ok {
		return collector.MemUsage{}, collector.ErrNotFound
	}
	return p.mem, nil
}

// FindPID returns the lowest pid whose name matches.
func (s *Source) FindPID(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return 0, collector.ErrNotFound
	}

	pids := make([]int, 0, len(s.procs))
	for pid := range s.procs {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	for _, pid := range pids {
		if s.procs[pid].name == name {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("%w: no process named %q", collector.ErrNotFound, name)
}

// ErrTickSource is a ready-made failure for CPUErr.
var ErrTickSource = errors.New("tick source unavailable")
