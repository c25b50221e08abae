package monitor

import (
	"slices"

	"github.com/nhdewitt/threadmon/internal/collector"
	"github.com/nhdewitt/threadmon/internal/protocol"
)

// Key identifies a monitored process.
type Key struct {
	PID  int
	Name string
}

// ProcessEntry is one monitored process: its tracked tasks and the last
// memory reading.
type ProcessEntry struct {
	Key
	Tasks *collector.TaskSet
	Mem   collector.MemUsage

	// filled during a tick, consumed after the broadcast
	dead []int
	plan collector.ReconcileResult
}

func newEntry(pid int, name string) *ProcessEntry {
	return &ProcessEntry{
		Key:   Key{PID: pid, Name: name},
		Tasks: collector.NewTaskSet(),
	}
}

// Registry maps pids to their entries. It is owned by the scheduler
// goroutine and has no locking of its own.
type Registry struct {
	entries map[int]*ProcessEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]*ProcessEntry)}
}

// Add inserts e unless its pid is already present.
func (r *Registry) Add(e *ProcessEntry) bool {
	if _, ok := r.entries[e.PID]; ok {
		return false
	}
	r.entries[e.PID] = e
	return true
}

func (r *Registry) Remove(pid int) bool {
	if _, ok := r.entries[pid]; !ok {
		return false
	}
	delete(r.entries, pid)
	return true
}

func (r *Registry) ByPID(pid int) (*ProcessEntry, bool) {
	e, ok := r.entries[pid]
	return e, ok
}

// ByName returns the entry with the lowest pid whose name matches.
func (r *Registry) ByName(name string) (*ProcessEntry, bool) {
	for _, e := range r.Entries() {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Entries returns all entries ordered by pid.
func (r *Registry) Entries() []*ProcessEntry {
	out := make([]*ProcessEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *ProcessEntry) int { return a.PID - b.PID })
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Identities lists the monitored processes ordered by pid.
func (r *Registry) Identities() []protocol.ProcessIdentity {
	entries := r.Entries()
	out := make([]protocol.ProcessIdentity, len(entries))
	for i, e := range entries {
		out[i] = protocol.ProcessIdentity{PID: e.PID, Name: e.Name}
	}
	return out
}
