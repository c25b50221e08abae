//go:build darwin && !cgo

package collector

import (
	"errors"

	"github.com/nhdewitt/threadmon/internal/platform"
)

// NewSource fails: host and thread counters are only reachable through
// the Mach calls, which need cgo.
func NewSource(info platform.Info) (Source, error) {
	return nil, errors.New("darwin stat source requires a cgo build (CGO_ENABLED=1)")
}
