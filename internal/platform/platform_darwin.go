//go:build darwin

package platform

import (
	"runtime"

	"github.com/tklauser/go-sysconf"
	"golang.org/x/sys/unix"
)

func Detect() Info {
	info := Info{
		NumCPU:     runtime.NumCPU(),
		ClockTicks: 100,
	}

	if sc, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && sc > 0 {
		info.ClockTicks = sc
	}
	if n, err := sysconf.Sysconf(sysconf.SC_NPROCESSORS_ONLN); err == nil && n > 0 {
		info.NumCPU = int(n)
	}
	if release, err := unix.Sysctl("kern.osrelease"); err == nil {
		info.KernelVersion = release
	}

	return info
}
