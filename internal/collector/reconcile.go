package collector

import (
	"slices"

	"github.com/hashicorp/go-set/v3"
)

// ReconcileResult is the diff between the tracked tasks of a process and
// what the OS reports as live.
type ReconcileResult struct {
	// OK is false when the process itself could not be enumerated.
	OK      bool
	Name    string
	LiveIDs []int

	// Gone are tracked ids that are no longer live; Fresh are live ids
	// that are not tracked yet. Both are sorted.
	Gone  []int
	Fresh []int
}

// PlanReconcile enumerates the live tasks of pid and diffs them against
// tracked. Nothing is mutated.
func PlanReconcile(l ThreadLister, pid int, tracked set.Collection[int]) ReconcileResult {
	name, tids, err := l.ListThreads(pid)
	if err != nil {
		return ReconcileResult{OK: false}
	}

	live := set.From(tids)

	gone := tracked.Difference(live).Slice()
	fresh := live.Difference(tracked).Slice()
	slices.Sort(gone)
	slices.Sort(fresh)

	return ReconcileResult{
		OK:      true,
		Name:    name,
		LiveIDs: tids,
		Gone:    gone,
		Fresh:   fresh,
	}
}

// Apply removes the gone tasks from tasks and then adds a seeded sample for
// every fresh id. A fresh task that dies before its seed read is skipped;
// the next pass will not list it. The ids actually added are returned.
func (res ReconcileResult) Apply(r TaskReader, pid int, tasks *TaskSet) []int {
	for _, tid := range res.Gone {
		tasks.Remove(tid)
	}

	added := make([]int, 0, len(res.Fresh))
	for _, tid := range res.Fresh {
		t := NewTaskSample(pid, tid)
		if err := t.Seed(r); err != nil {
			continue
		}
		if tasks.Add(t) {
			added = append(added, tid)
		}
	}
	return added
}

// TaskLister can both enumerate and read tasks.
type TaskLister interface {
	ThreadLister
	TaskReader
}

// Reconcile plans and applies in one step.
func Reconcile(src TaskLister, pid int, tasks *TaskSet) ReconcileResult {
	res := PlanReconcile(src, pid, tasks.IDs())
	if res.OK {
		res.Apply(src, pid, tasks)
	}
	return res
}
