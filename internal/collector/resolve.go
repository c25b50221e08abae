package collector

import (
	"fmt"

	"github.com/mitchellh/go-ps"
)

// findPID returns the first process, in enumeration order, whose command
// name equals name. commLen > 0 truncates name first, for kernels that cap
// the reported command name.
func findPID(name string, commLen int, processes func() ([]ps.Process, error)) (int, error) {
	if name == "" {
		return 0, ErrNotFound
	}
	if commLen > 0 && len(name) > commLen {
		name = name[:commLen]
	}

	all, err := processes()
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	for _, p := range all {
		if p == nil || p.Pid() == 0 {
			continue
		}
		if p.Executable() == name {
			return p.Pid(), nil
		}
	}

	return 0, fmt.Errorf("%w: no process named %q", ErrNotFound, name)
}
