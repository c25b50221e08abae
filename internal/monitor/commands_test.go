package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/nhdewitt/threadmon/internal/collector/collectortest"
	"github.com/nhdewitt/threadmon/internal/protocol"
	"github.com/shoenig/test/must"
)

// runScheduler starts s and stops it when the test ends.
func runScheduler(t *testing.T, s *Scheduler) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.stopped
	})
	return ctx
}

func pidsOf(ids []protocol.ProcessIdentity) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = id.PID
	}
	return out
}

func TestAddPID_Idempotent(t *testing.T) {
	src := collectortest.New(1)
	src.AddProcess(100, "web")
	src.AddThread(100, 101, "web-io")

	s, _ := newTestScheduler(t, src, Config{})

	must.Eq(t, protocol.StatusOK, s.addPID(100))
	must.Eq(t, protocol.StatusAlreadyAdded, s.addPID(100))

	must.Eq(t, 1, s.registry.Len())
	entry, ok := s.registry.ByPID(100)
	must.True(t, ok)
	must.Eq(t, 2, entry.Tasks.Len())
	must.Eq(t, "web", entry.Name)
}

func TestAddPID_NoSuchPID(t *testing.T) {
	s, _ := newTestScheduler(t, collectortest.New(1), Config{})

	must.Eq(t, protocol.StatusNoSuchPID, s.addPID(4242))
	must.Eq(t, 0, s.registry.Len())
}

func TestPIDRoundTrip(t *testing.T) {
	src := collectortest.New(1)
	src.AddProcess(123, "cron")
	src.AddProcess(7, "init")

	s, _ := newTestScheduler(t, src, Config{})
	ctx := runScheduler(t, s)

	st, err := s.AddPID(ctx, 123)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusOK, st)

	st, err = s.AddPID(ctx, 7)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusOK, st)

	ids, err := s.AddedPIDs(ctx)
	must.NoError(t, err)
	must.Eq(t, []int{7, 123}, pidsOf(ids))
	must.Eq(t, "cron", ids[1].Name)

	st, err = s.DelPID(ctx, 123)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusOK, st)

	ids, err = s.AddedPIDs(ctx)
	must.NoError(t, err)
	must.Eq(t, []int{7}, pidsOf(ids))

	st, err = s.DelPID(ctx, 123)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusNoSuchPID, st)
}

func TestNameCommands(t *testing.T) {
	src := collectortest.New(1)
	src.AddProcess(300, "nginx")
	src.AddProcess(301, "nginx")

	s, _ := newTestScheduler(t, src, Config{})
	ctx := runScheduler(t, s)

	st, err := s.AddName(ctx, "postgres")
	must.NoError(t, err)
	must.Eq(t, protocol.StatusNoSuchName, st)

	st, err = s.AddName(ctx, "nginx")
	must.NoError(t, err)
	must.Eq(t, protocol.StatusOK, st)

	st, err = s.AddName(ctx, "nginx")
	must.NoError(t, err)
	must.Eq(t, protocol.StatusAlreadyAdded, st)

	// a pid first added by name is also known by pid
	st, err = s.AddPID(ctx, 300)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusAlreadyAdded, st)

	ids, err := s.AddedPIDs(ctx)
	must.NoError(t, err)
	must.Eq(t, []protocol.ProcessIdentity{{PID: 300, Name: "nginx"}}, ids)

	st, err = s.DelName(ctx, "nginx")
	must.NoError(t, err)
	must.Eq(t, protocol.StatusOK, st)

	st, err = s.DelName(ctx, "nginx")
	must.NoError(t, err)
	must.Eq(t, protocol.StatusNoSuchName, st)
}

func TestAddName_SharedName(t *testing.T) {
	src := collectortest.New(1)
	src.AddProcess(10, "worker")
	src.AddProcess(20, "worker")

	s, _ := newTestScheduler(t, src, Config{})

	// lookup would resolve to pid 10, but a worker is already tracked
	must.Eq(t, protocol.StatusOK, s.addPID(20))
	must.Eq(t, protocol.StatusAlreadyAdded, s.addName("worker"))

	must.Eq(t, 1, s.registry.Len())
	_, ok := s.registry.ByPID(10)
	must.False(t, ok)
}

func TestSetInterval(t *testing.T) {
	s, _ := newTestScheduler(t, collectortest.New(1), Config{Interval: time.Second})
	ctx := runScheduler(t, s)

	st, err := s.SetInterval(ctx, 0)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusInvalid, st)

	st, err = s.SetInterval(ctx, 250*time.Millisecond)
	must.NoError(t, err)
	must.Eq(t, protocol.StatusOK, st)

	var got time.Duration
	must.NoError(t, s.do(ctx, func() { got = s.interval }))
	must.Eq(t, 250*time.Millisecond, got)
}

func TestCommand_ContextCancelled(t *testing.T) {
	s, _ := newTestScheduler(t, collectortest.New(1), Config{})

	// not running, so the command can never be picked up
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.AddPID(ctx, 1)
	must.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle(t *testing.T) {
	src := collectortest.New(1)
	src.AddProcess(55, "redis")

	s, _ := newTestScheduler(t, src, Config{})
	ctx := runScheduler(t, s)

	tests := []struct {
		name      string
		cmd       protocol.Command
		status    protocol.Status
		wantError bool
		pids      []int
	}{
		{"add pid", protocol.Command{Type: protocol.CmdAddPID, Arg: "55"}, protocol.StatusOK, false, nil},
		{"add pid again", protocol.Command{Type: protocol.CmdAddPID, Arg: "55"}, protocol.StatusAlreadyAdded, false, nil},
		{"bad pid", protocol.Command{Type: protocol.CmdAddPID, Arg: "x"}, protocol.StatusInvalid, true, nil},
		{"list", protocol.Command{Type: protocol.CmdGetAddedPIDs}, protocol.StatusOK, false, []int{55}},
		{"del missing name", protocol.Command{Type: protocol.CmdDelName, Arg: "memcached"}, protocol.StatusNoSuchName, false, nil},
		{"empty name", protocol.Command{Type: protocol.CmdAddName}, protocol.StatusInvalid, true, nil},
		{"interval", protocol.Command{Type: protocol.CmdSetUpdateInterval, Arg: "500"}, protocol.StatusOK, false, nil},
		{"del pid", protocol.Command{Type: protocol.CmdDelPID, Arg: "55"}, protocol.StatusOK, false, nil},
		{"unknown", protocol.Command{Type: "reboot"}, "", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cmd.ID = tt.name
			res := s.Handle(ctx, tt.cmd)

			must.Eq(t, tt.name, res.ID)
			must.Eq(t, tt.cmd.Type, res.Type)
			must.Eq(t, tt.status, res.Status)
			must.Eq(t, tt.wantError, res.Error != "")
			if tt.pids != nil {
				must.Eq(t, tt.pids, pidsOf(res.PIDs))
			}
		})
	}
}
