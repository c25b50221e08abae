package collector

import (
	"errors"
)

var (
	// ErrNotFound means the task or process no longer exists. It is the
	// normal signal for thread and process death, not a failure.
	ErrNotFound = errors.New("task not found")

	// ErrMalformed means a stat source returned data in an unexpected
	// layout. Callers treat it like ErrNotFound.
	ErrMalformed = errors.New("malformed stat data")

	// ErrReadFailed wraps failures of the system-wide tick source.
	ErrReadFailed = errors.New("cpu tick source unavailable")
)

// CPUTicks is one reading of the aggregate or a single core.
type CPUTicks struct {
	Name  string
	Idle  uint64
	Total uint64
}

// TaskStat holds the scheduling counters of one task (thread or process).
type TaskStat struct {
	ID         int
	Name       string
	State      string
	PPID       int
	UTime      uint64
	STime      uint64
	CUTime     uint64
	CSTime     uint64
	NumThreads int
	RSSPages   uint64
	Processor  int
}

// TotalTicks is the task's cumulative CPU time, including reaped children.
func (s TaskStat) TotalTicks() uint64 {
	return s.UTime + s.STime + s.CUTime + s.CSTime
}

// MemUsage is a process memory snapshot in kB.
type MemUsage struct {
	Peak uint64
	Size uint64
	HWM  uint64
	RSS  uint64
}

// TickReader reads the system-wide tick counters. The aggregate is always
// read; cores only when withCores is set.
type TickReader interface {
	ReadCPU(withCores bool) (CPUTicks, []CPUTicks, error)
}

// TaskReader reads the counters of a single task of pid.
type TaskReader interface {
	ReadTask(pid, tid int) (TaskStat, error)
}

// ThreadLister enumerates the live task ids of a process.
type ThreadLister interface {
	ListThreads(pid int) (name string, tids []int, err error)
}

// Source is everything the monitor needs from the platform. Exactly one
// implementation is compiled into each build.
type Source interface {
	TickReader
	TaskReader
	ThreadLister
	ReadMemory(pid int) (MemUsage, error)
	FindPID(name string) (int, error)
}
