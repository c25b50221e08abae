//go:build !linux && !darwin

package platform

import "runtime"

func Detect() Info {
	return Info{
		NumCPU:     runtime.NumCPU(),
		ClockTicks: 100,
	}
}
