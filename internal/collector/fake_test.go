package collector

import (
	"errors"
	"fmt"
)

// fakeTicks replays a fixed series of readings, one per ReadCPU call.
type fakeTicks struct {
	readings []fakeReading
	calls    int
}

type fakeReading struct {
	agg   CPUTicks
	cores []CPUTicks
	err   error
}

func (f *fakeTicks) ReadCPU(withCores bool) (CPUTicks, []CPUTicks, error) {
	if f.calls >= len(f.readings) {
		return CPUTicks{}, nil, errors.New("no more readings")
	}
	r := f.readings[f.calls]
	f.calls++
	if r.err != nil {
		return CPUTicks{}, nil, r.err
	}
	if !withCores {
		return r.agg, nil, nil
	}
	return r.agg, r.cores, nil
}

type taskKey struct{ pid, tid int }

// fakeTasks serves task reads and listings from maps the test mutates.
type fakeTasks struct {
	ticks   map[taskKey]uint64
	errs    map[taskKey]error
	threads map[int][]int
	names   map[int]string
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{
		ticks:   make(map[taskKey]uint64),
		errs:    make(map[taskKey]error),
		threads: make(map[int][]int),
		names:   make(map[int]string),
	}
}

func (f *fakeTasks) set(pid, tid int, ticks uint64) {
	f.ticks[taskKey{pid, tid}] = ticks
}

func (f *fakeTasks) ReadTask(pid, tid int) (TaskStat, error) {
	k := taskKey{pid, tid}
	if err, ok := f.errs[k]; ok {
		return TaskStat{}, err
	}
	ticks, ok := f.ticks[k]
	if !ok {
		return TaskStat{}, fmt.Errorf("%w: %d/%d", ErrNotFound, pid, tid)
	}
	return TaskStat{
		ID:    tid,
		Name:  fmt.Sprintf("thread-%d", tid),
		State: "S",
		UTime: ticks,
	}, nil
}

func (f *fakeTasks) ListThreads(pid int) (string, []int, error) {
	tids, ok := f.threads[pid]
	if !ok {
		return "", nil, ErrNotFound
	}
	return f.names[pid], tids, nil
}
