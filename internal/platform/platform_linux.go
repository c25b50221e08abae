//go:build linux

package platform

import (
	"os"
	"runtime"
	"strings"

	"github.com/tklauser/go-sysconf"
)

// TASK_COMM_LEN is 16 including the trailing NUL
const linuxCommLen = 15

func Detect() Info {
	info := Info{
		NumCPU:     runtime.NumCPU(),
		ClockTicks: 100,
		ProcRoot:   "/proc",
		CommLen:    linuxCommLen,
	}

	if sc, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && sc > 0 {
		info.ClockTicks = sc
	}
	if n, err := sysconf.Sysconf(sysconf.SC_NPROCESSORS_ONLN); err == nil && n > 0 {
		info.NumCPU = int(n)
	}
	if data, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		info.KernelVersion = strings.TrimSpace(string(data))
	}

	return info
}
