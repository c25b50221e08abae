package collector

import (
	"fmt"
)

type tickSlot struct {
	idle  uint64
	total uint64
}

// CPUSample tracks one core, or the aggregate, across ticks. Two raw
// readings are kept; cur selects the newest and flips on every update.
type CPUSample struct {
	Name  string
	Usage float64

	// TotalDelta and IdleDelta are the tick deltas of the last update.
	TotalDelta uint64
	IdleDelta  uint64

	slots [2]tickSlot
	cur   int
}

func (c *CPUSample) current() tickSlot  { return c.slots[c.cur] }
func (c *CPUSample) previous() tickSlot { return c.slots[c.cur^1] }

// record flips the buffers, stores t and recomputes usage. A zero total
// delta leaves Usage at its previous value.
func (c *CPUSample) record(t CPUTicks) {
	if t.Name != "" {
		c.Name = t.Name
	}

	c.cur ^= 1
	c.slots[c.cur] = tickSlot{idle: t.Idle, total: t.Total}

	// Only total going backwards is a reset. Idle includes iowait, which
	// the kernel may report lower than before.
	cur, prev := c.current(), c.previous()
	if cur.total < prev.total {
		c.TotalDelta, c.IdleDelta = 0, 0
		return
	}

	c.TotalDelta = cur.total - prev.total
	c.IdleDelta = min(delta(cur.idle, prev.idle), c.TotalDelta)
	if c.TotalDelta == 0 {
		return
	}

	busy := delta(c.TotalDelta, c.IdleDelta)
	c.Usage = percent(busy, c.TotalDelta)
}

// CPUSampler holds the aggregate and per-core samples of the host.
type CPUSampler struct {
	Aggregate *CPUSample
	Cores     []*CPUSample

	src TickReader
}

// NewCPUSampler takes a first full reading so the next Update yields real
// deltas.
func NewCPUSampler(src TickReader) (*CPUSampler, error) {
	s := &CPUSampler{
		Aggregate: &CPUSample{Name: "cpu"},
		src:       src,
	}
	if err := s.Update(true); err != nil {
		return nil, err
	}
	return s, nil
}

// Update reads the tick source once. On error nothing is mutated and the
// previous usage values stand.
func (s *CPUSampler) Update(withCores bool) error {
	agg, cores, err := s.src.ReadCPU(withCores)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	s.Aggregate.record(agg)

	if !withCores {
		return nil
	}

	for i, t := range cores {
		if i == len(s.Cores) {
			s.Cores = append(s.Cores, &CPUSample{Name: fmt.Sprintf("cpu%d", i)})
		}
		s.Cores[i].record(t)
	}

	return nil
}

// NumCores returns the number of cores seen so far, at least 1.
func (s *CPUSampler) NumCores() int {
	if len(s.Cores) == 0 {
		return 1
	}
	return len(s.Cores)
}

// IntervalTicks is the tick budget that task usage is normalized against.
// With allCores the whole machine's delta is returned, otherwise the share
// of a single core.
func (s *CPUSampler) IntervalTicks(allCores bool) uint64 {
	total := s.Aggregate.TotalDelta
	if allCores {
		return total
	}
	return total / uint64(s.NumCores())
}
