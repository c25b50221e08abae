//go:build !linux && !darwin

package collector

import (
	"fmt"
	"runtime"

	"github.com/nhdewitt/threadmon/internal/platform"
)

func NewSource(info platform.Info) (Source, error) {
	return nil, fmt.Errorf("no stat source for %s", runtime.GOOS)
}
