package collector

import (
	"slices"

	"github.com/hashicorp/go-set/v3"
)

// TaskSample tracks one thread (or process) of a monitored pid.
type TaskSample struct {
	PID   int
	ID    int
	Name  string
	State string
	Usage float64

	slots  [2]uint64
	cur    int
	seeded bool
}

// NewTaskSample returns an unseeded sample for task tid of pid.
func NewTaskSample(pid, tid int) *TaskSample {
	return &TaskSample{PID: pid, ID: tid}
}

func (t *TaskSample) store(stat TaskStat) {
	t.cur ^= 1
	t.slots[t.cur] = stat.TotalTicks()
	if stat.Name != "" {
		t.Name = stat.Name
	}
	t.State = stat.State
}

// Seed takes the baseline reading without computing usage.
func (t *TaskSample) Seed(r TaskReader) error {
	stat, err := r.ReadTask(t.PID, t.ID)
	if err != nil {
		return err
	}
	t.store(stat)
	t.seeded = true
	return nil
}

// Update reads the task and recomputes Usage against intervalTicks. It
// returns false, leaving Usage untouched, when the task can no longer be
// read.
func (t *TaskSample) Update(r TaskReader, intervalTicks uint64) bool {
	stat, err := r.ReadTask(t.PID, t.ID)
	if err != nil {
		return false
	}

	t.store(stat)
	if !t.seeded {
		// the previous slot is not a real reading yet
		t.seeded = true
		t.Usage = 0
		return true
	}

	d := delta(t.slots[t.cur], t.slots[t.cur^1])
	t.Usage = clampPercent(percent(d, intervalTicks))
	return true
}

// TaskSet is the collection of tracked tasks of one process.
type TaskSet struct {
	tasks map[int]*TaskSample
}

func NewTaskSet() *TaskSet {
	return &TaskSet{tasks: make(map[int]*TaskSample)}
}

// Add inserts t unless a task with the same id is already tracked.
func (s *TaskSet) Add(t *TaskSample) bool {
	if _, ok := s.tasks[t.ID]; ok {
		return false
	}
	s.tasks[t.ID] = t
	return true
}

func (s *TaskSet) Remove(tid int) bool {
	if _, ok := s.tasks[tid]; !ok {
		return false
	}
	delete(s.tasks, tid)
	return true
}

func (s *TaskSet) Get(tid int) (*TaskSample, bool) {
	t, ok := s.tasks[tid]
	return t, ok
}

func (s *TaskSet) Len() int {
	return len(s.tasks)
}

// IDs returns the tracked task ids.
func (s *TaskSet) IDs() *set.Set[int] {
	ids := set.New[int](len(s.tasks))
	for tid := range s.tasks {
		ids.Insert(tid)
	}
	return ids
}

// Sorted returns the tracked tasks ordered by id.
func (s *TaskSet) Sorted() []*TaskSample {
	out := make([]*TaskSample, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *TaskSample) int { return a.ID - b.ID })
	return out
}
