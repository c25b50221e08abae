package protocol

import (
	"fmt"
	"strconv"
)

// Status is the outcome string returned for every inbound command.
type Status string

const (
	StatusOK           Status = "ok"
	StatusAlreadyAdded Status = "already added"
	StatusNoSuchPID    Status = "no such pid"
	StatusNoSuchName   Status = "no such name"
	StatusInvalid      Status = "invalid argument"
)

type CommandType string

const (
	CmdAddPID            CommandType = "add_pid"
	CmdDelPID            CommandType = "del_pid"
	CmdAddName           CommandType = "add_name"
	CmdDelName           CommandType = "del_name"
	CmdGetAddedPIDs      CommandType = "get_added_pids"
	CmdSetUpdateInterval CommandType = "set_update_interval"
)

// Valid reports whether t is a known command.
func (t CommandType) Valid() bool {
	switch t {
	case CmdAddPID, CmdDelPID, CmdAddName, CmdDelName, CmdGetAddedPIDs, CmdSetUpdateInterval:
		return true
	}
	return false
}

// Command is a single request against the monitor. Arg carries the pid,
// the process name or the interval in milliseconds, depending on Type.
type Command struct {
	ID   string      `json:"id,omitempty"`
	Type CommandType `json:"type"`
	Arg  string      `json:"arg,omitempty"`
}

// IntArg parses Arg as a positive integer.
func (c Command) IntArg() (int, error) {
	n, err := strconv.Atoi(c.Arg)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid argument %q: %w", c.Type, c.Arg, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: argument must be positive, got %d", c.Type, n)
	}
	return n, nil
}

// ProcessIdentity names one monitored process.
type ProcessIdentity struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// CommandResult is the response to a Command.
type CommandResult struct {
	ID     string            `json:"id"`   // Command.ID
	Type   CommandType       `json:"type"` // Command.Type
	Status Status            `json:"status,omitempty"`
	PIDs   []ProcessIdentity `json:"pids,omitempty"`
	Error  string            `json:"error,omitempty"`
}
