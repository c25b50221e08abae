package agent

import (
	"context"

	"github.com/nhdewitt/threadmon/internal/protocol"
)

// Register adds the configured pids and names. A target that cannot be
// added is logged and skipped.
func (a *Agent) Register(ctx context.Context) {
	for _, pid := range a.Config.PIDs {
		st, err := a.sched.AddPID(ctx, pid)
		a.logRegistration("pid", pid, st, err)
	}
	for _, name := range a.Config.Names {
		st, err := a.sched.AddName(ctx, name)
		a.logRegistration("name", name, st, err)
	}
}

func (a *Agent) logRegistration(kind string, target any, st protocol.Status, err error) {
	switch {
	case err != nil:
		a.logger.Error("registering target failed", kind, target, "error", err)
	case st == protocol.StatusOK:
		a.logger.Info("monitoring", kind, target)
	default:
		a.logger.Warn("target not added", kind, target, "status", st)
	}
}
