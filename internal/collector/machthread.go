package collector

import "fmt"

// machThread is one Mach thread as reported by thread_info.
type machThread struct {
	ID         int
	Name       string
	RunState   int
	UserMicros uint64
	SysMicros  uint64
}

// TH_STATE_* from mach/thread_info.h
const (
	thStateRunning = iota + 1
	thStateStopped
	thStateWaiting
	thStateUninterruptible
	thStateHalted
)

// machRunState maps a Mach run state onto the procfs state letters.
func machRunState(s int) string {
	switch s {
	case thStateRunning:
		return "R"
	case thStateStopped:
		return "T"
	case thStateWaiting:
		return "S"
	case thStateUninterruptible:
		return "D"
	case thStateHalted:
		return "Z"
	}
	return "?"
}

func microsToTicks(us uint64, clkTck int64) uint64 {
	if clkTck <= 0 {
		return 0
	}
	return us * uint64(clkTck) / 1_000_000
}

func machThreadIDs(threads []machThread) []int {
	ids := make([]int, len(threads))
	for i, th := range threads {
		ids[i] = th.ID
	}
	return ids
}

// machTaskStat picks tid out of a thread enumeration. Threads that never
// named themselves take procName.
func machTaskStat(threads []machThread, pid, tid int, procName string, clkTck int64) (TaskStat, error) {
	for _, th := range threads {
		if th.ID != tid {
			continue
		}

		name := th.Name
		if name == "" {
			name = procName
		}
		return TaskStat{
			ID:         tid,
			Name:       name,
			State:      machRunState(th.RunState),
			UTime:      microsToTicks(th.UserMicros, clkTck),
			STime:      microsToTicks(th.SysMicros, clkTck),
			NumThreads: len(threads),
		}, nil
	}
	return TaskStat{}, fmt.Errorf("%w: thread %d of pid %d", ErrNotFound, tid, pid)
}
