//go:build linux

package collector

import (
	"github.com/mitchellh/go-ps"
	"github.com/nhdewitt/threadmon/internal/platform"
)

// procfs reads everything from a procfs mount.
type procfs struct {
	root      string
	commLen   int
	processes func() ([]ps.Process, error)
}

// NewSource returns the procfs backed Source.
func NewSource(info platform.Info) (Source, error) {
	root := info.ProcRoot
	if root == "" {
		root = "/proc"
	}
	return &procfs{
		root:      root,
		commLen:   info.CommLen,
		processes: ps.Processes,
	}, nil
}

func (p *procfs) FindPID(name string) (int, error) {
	return findPID(name, p.commLen, p.processes)
}
