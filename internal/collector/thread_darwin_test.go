//go:build darwin && cgo

package collector

import (
	"os"
	"runtime"
	"testing"

	"github.com/nhdewitt/threadmon/internal/platform"
	"github.com/shoenig/test/must"
)

func TestMachThreads_Self(t *testing.T) {
	// hold a second OS thread busy so the process has several
	done := make(chan struct{})
	started := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		close(started)
		<-done
	}()
	<-started
	defer close(done)

	threads, err := machThreads(os.Getpid())
	must.NoError(t, err)
	must.Greater(t, 1, len(threads))

	seen := make(map[int]bool)
	for _, th := range threads {
		must.Positive(t, th.ID)
		must.False(t, seen[th.ID])
		seen[th.ID] = true
	}
}

func TestMach_ReadTaskPerThread(t *testing.T) {
	src, err := NewSource(platform.Info{ClockTicks: 100})
	must.NoError(t, err)

	pid := os.Getpid()
	name, tids, err := src.ListThreads(pid)
	must.NoError(t, err)
	must.NotEq(t, "", name)
	must.Greater(t, 1, len(tids))

	for _, tid := range tids {
		stat, err := src.ReadTask(pid, tid)
		if err != nil {
			// the runtime may retire a thread between the two calls
			must.ErrorIs(t, err, ErrNotFound)
			continue
		}
		must.Eq(t, tid, stat.ID)
		must.NotEq(t, "", stat.Name)
	}
}
