package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/nhdewitt/threadmon/internal/collector"
	"github.com/nhdewitt/threadmon/internal/protocol"
)

// do runs fn on the scheduler goroutine and waits for it to finish.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case s.cmds <- wrapped:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) status(ctx context.Context, fn func() protocol.Status) (protocol.Status, error) {
	var st protocol.Status
	if err := s.do(ctx, func() { st = fn() }); err != nil {
		return "", err
	}
	return st, nil
}

// AddPID starts monitoring pid.
func (s *Scheduler) AddPID(ctx context.Context, pid int) (protocol.Status, error) {
	return s.status(ctx, func() protocol.Status { return s.addPID(pid) })
}

// DelPID stops monitoring pid.
func (s *Scheduler) DelPID(ctx context.Context, pid int) (protocol.Status, error) {
	return s.status(ctx, func() protocol.Status { return s.delPID(pid) })
}

// AddName starts monitoring the first live process called name.
func (s *Scheduler) AddName(ctx context.Context, name string) (protocol.Status, error) {
	return s.status(ctx, func() protocol.Status { return s.addName(name) })
}

// DelName stops monitoring the process registered under name.
func (s *Scheduler) DelName(ctx context.Context, name string) (protocol.Status, error) {
	return s.status(ctx, func() protocol.Status { return s.delName(name) })
}

// AddedPIDs lists the monitored processes.
func (s *Scheduler) AddedPIDs(ctx context.Context) ([]protocol.ProcessIdentity, error) {
	var ids []protocol.ProcessIdentity
	if err := s.do(ctx, func() { ids = s.registry.Identities() }); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetInterval changes the tick interval. The current wait is not cut
// short; the new value applies from the next tick.
func (s *Scheduler) SetInterval(ctx context.Context, d time.Duration) (protocol.Status, error) {
	return s.status(ctx, func() protocol.Status { return s.setInterval(d) })
}

// Handle dispatches a decoded command.
func (s *Scheduler) Handle(ctx context.Context, cmd protocol.Command) protocol.CommandResult {
	res := protocol.CommandResult{ID: cmd.ID, Type: cmd.Type}

	var err error
	switch cmd.Type {
	case protocol.CmdAddPID, protocol.CmdDelPID:
		var pid int
		if pid, err = cmd.IntArg(); err != nil {
			res.Status = protocol.StatusInvalid
			break
		}
		if cmd.Type == protocol.CmdAddPID {
			res.Status, err = s.AddPID(ctx, pid)
		} else {
			res.Status, err = s.DelPID(ctx, pid)
		}

	case protocol.CmdAddName, protocol.CmdDelName:
		if cmd.Arg == "" {
			res.Status = protocol.StatusInvalid
			err = fmt.Errorf("%s: missing name", cmd.Type)
			break
		}
		if cmd.Type == protocol.CmdAddName {
			res.Status, err = s.AddName(ctx, cmd.Arg)
		} else {
			res.Status, err = s.DelName(ctx, cmd.Arg)
		}

	case protocol.CmdGetAddedPIDs:
		res.PIDs, err = s.AddedPIDs(ctx)
		if err == nil {
			res.Status = protocol.StatusOK
		}

	case protocol.CmdSetUpdateInterval:
		var ms int
		if ms, err = cmd.IntArg(); err != nil {
			res.Status = protocol.StatusInvalid
			break
		}
		res.Status, err = s.SetInterval(ctx, time.Duration(ms)*time.Millisecond)

	default:
		err = fmt.Errorf("unknown command type: %s", cmd.Type)
	}

	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (s *Scheduler) addPID(pid int) protocol.Status {
	if _, ok := s.registry.ByPID(pid); ok {
		return protocol.StatusAlreadyAdded
	}
	if !s.track(pid, "") {
		return protocol.StatusNoSuchPID
	}
	return protocol.StatusOK
}

func (s *Scheduler) addName(name string) protocol.Status {
	if _, ok := s.registry.ByName(name); ok {
		return protocol.StatusAlreadyAdded
	}
	pid, err := s.src.FindPID(name)
	if err != nil {
		s.logger.Debug("name lookup failed", "name", name, "error", err)
		return protocol.StatusNoSuchName
	}
	if _, ok := s.registry.ByPID(pid); ok {
		return protocol.StatusAlreadyAdded
	}
	if !s.track(pid, name) {
		return protocol.StatusNoSuchName
	}
	return protocol.StatusOK
}

// track registers pid with all of its live tasks seeded. An empty name is
// filled in from the process itself.
func (s *Scheduler) track(pid int, name string) bool {
	e := newEntry(pid, name)

	res := collector.Reconcile(s.src, pid, e.Tasks)
	if !res.OK || e.Tasks.Len() == 0 {
		return false
	}
	if e.Name == "" {
		e.Name = res.Name
	}
	if mem, err := s.src.ReadMemory(pid); err == nil {
		e.Mem = mem
	}

	s.registry.Add(e)
	s.logger.Info("monitoring process", "pid", pid, "name", e.Name, "tasks", e.Tasks.Len())
	return true
}

func (s *Scheduler) delPID(pid int) protocol.Status {
	if !s.registry.Remove(pid) {
		return protocol.StatusNoSuchPID
	}
	s.logger.Info("stopped monitoring process", "pid", pid)
	return protocol.StatusOK
}

func (s *Scheduler) delName(name string) protocol.Status {
	e, ok := s.registry.ByName(name)
	if !ok {
		return protocol.StatusNoSuchName
	}
	s.registry.Remove(e.PID)
	s.logger.Info("stopped monitoring process", "pid", e.PID, "name", name)
	return protocol.StatusOK
}

func (s *Scheduler) setInterval(d time.Duration) protocol.Status {
	if d <= 0 {
		return protocol.StatusInvalid
	}
	s.interval = d
	s.logger.Info("update interval changed", "interval", d)
	return protocol.StatusOK
}
