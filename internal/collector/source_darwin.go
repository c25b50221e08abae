//go:build darwin && cgo

package collector

import (
	"errors"
	"fmt"

	"github.com/mitchellh/go-ps"
	"github.com/nhdewitt/threadmon/internal/platform"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// mach reads host counters through gopsutil and per-thread counters
// through task_threads.
type mach struct {
	clkTck    int64
	processes func() ([]ps.Process, error)
}

// NewSource returns the darwin Source.
func NewSource(info platform.Info) (Source, error) {
	clk := info.ClockTicks
	if clk <= 0 {
		clk = 100
	}
	return &mach{clkTck: clk, processes: ps.Processes}, nil
}

func (m *mach) ticks(sec float64) uint64 {
	if sec <= 0 {
		return 0
	}
	return uint64(sec * float64(m.clkTck))
}

func (m *mach) toTicks(name string, t cpu.TimesStat) CPUTicks {
	idle := m.ticks(t.Idle)
	busy := m.ticks(t.User) + m.ticks(t.System) + m.ticks(t.Nice) +
		m.ticks(t.Irq) + m.ticks(t.Softirq) + m.ticks(t.Steal)
	return CPUTicks{Name: name, Idle: idle, Total: idle + busy}
}

func (m *mach) ReadCPU(withCores bool) (CPUTicks, []CPUTicks, error) {
	all, err := cpu.Times(false)
	if err != nil {
		return CPUTicks{}, nil, fmt.Errorf("host_statistics: %w", err)
	}
	if len(all) != 1 {
		return CPUTicks{}, nil, fmt.Errorf("%w: unexpected number of aggregate cpus (%d)", ErrMalformed, len(all))
	}
	agg := m.toTicks("cpu", all[0])

	if !withCores {
		return agg, nil, nil
	}

	per, err := cpu.Times(true)
	if err != nil {
		return CPUTicks{}, nil, fmt.Errorf("host_processor_info: %w", err)
	}

	cores := make([]CPUTicks, len(per))
	for i, t := range per {
		cores[i] = m.toTicks(fmt.Sprintf("cpu%d", i), t)
	}
	return agg, cores, nil
}

// alive fails with ErrNotFound once pid is gone. EPERM still means the
// process exists.
func alive(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}
	return nil
}

func (m *mach) threads(pid int) ([]machThread, error) {
	if err := alive(pid); err != nil {
		return nil, err
	}
	threads, err := machThreads(pid)
	if err != nil {
		// the task port goes away with the process
		if alive(pid) != nil {
			return nil, fmt.Errorf("%w: pid %d", ErrNotFound, pid)
		}
		return nil, err
	}
	return threads, nil
}

func (m *mach) ReadTask(pid, tid int) (TaskStat, error) {
	threads, err := m.threads(pid)
	if err != nil {
		return TaskStat{}, err
	}
	return machTaskStat(threads, pid, tid, procName(pid), m.clkTck)
}

func (m *mach) ListThreads(pid int) (string, []int, error) {
	threads, err := m.threads(pid)
	if err != nil {
		return "", nil, err
	}
	return procName(pid), machThreadIDs(threads), nil
}

// ReadMemory reports size and rss. Peak and high-water values are not
// exposed by proc_pidinfo and stay zero.
func (m *mach) ReadMemory(pid int) (MemUsage, error) {
	if err := alive(pid); err != nil {
		return MemUsage{}, err
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return MemUsage{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	info, err := p.MemoryInfo()
	if err != nil {
		return MemUsage{}, fmt.Errorf("%w: proc_pidinfo: %v", ErrNotFound, err)
	}

	return MemUsage{
		Size: info.VMS / 1024,
		RSS:  info.RSS / 1024,
	}, nil
}

func (m *mach) FindPID(name string) (int, error) {
	return findPID(name, 0, m.processes)
}
