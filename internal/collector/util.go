package collector

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/constraints"
)

type Numeric interface {
	constraints.Integer | constraints.Float
}

func percent[T Numeric](part, total T) float64 {
	if total == 0 {
		return 0.0
	}
	return (float64(part) / float64(total)) * 100.0
}

// clampPercent maps anything outside [0,100] to 0. Out of range values come
// from counter skew between two reads and are not worth reporting.
func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0
	}
	return v
}

// delta returns cur-prev, or 0 when the counter went backwards.
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// makeUintParser returns a function that parses fields[i] as uint64. The
// first failure is kept in *errp and later calls keep returning 0.
func makeUintParser(fields []string, source string, errp *error) func(int) uint64 {
	return func(index int) uint64 {
		if *errp != nil {
			return 0
		}
		if index >= len(fields) {
			*errp = fmt.Errorf("%w: %s field[%d] missing", ErrMalformed, source, index)
			return 0
		}
		v, err := strconv.ParseUint(fields[index], 10, 64)
		if err != nil {
			*errp = fmt.Errorf("%w: %s field[%d] = %q: %v", ErrMalformed, source, index, fields[index], err)
			return 0
		}
		return v
	}
}
