package platform

// Info describes the host the monitor is sampling.
type Info struct {
	// Hardware
	NumCPU int

	// ClockTicks is USER_HZ, the unit of every tick counter.
	ClockTicks int64

	// Kernel/OS
	KernelVersion string

	// ProcRoot is the procfs mount point, empty where there is none.
	ProcRoot string

	// CommLen is the longest command name the kernel reports, 0 for no
	// limit.
	CommLen int
}
