package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCommandType_Valid(t *testing.T) {
	valid := []CommandType{
		CmdAddPID,
		CmdDelPID,
		CmdAddName,
		CmdDelName,
		CmdGetAddedPIDs,
		CmdSetUpdateInterval,
	}

	for _, c := range valid {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
		if strings.ToLower(string(c)) != string(c) {
			t.Errorf("command %s should be lower case", c)
		}
	}

	for _, c := range []CommandType{"", "ADD_PID", "restart"} {
		if c.Valid() {
			t.Errorf("%q should not be valid", c)
		}
	}
}

func TestStatus_Strings(t *testing.T) {
	statuses := map[Status]string{
		StatusOK:           "ok",
		StatusAlreadyAdded: "already added",
		StatusNoSuchPID:    "no such pid",
		StatusNoSuchName:   "no such name",
	}

	for s, want := range statuses {
		if string(s) != want {
			t.Errorf("status %v should be %q", s, want)
		}
	}
}

func TestCommand_IntArg(t *testing.T) {
	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{"123", 123, false},
		{"1", 1, false},
		{"0", 0, true},
		{"-4", 0, true},
		{"", 0, true},
		{"12a", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := Command{Type: CmdAddPID, Arg: tt.arg}.IntArg()
			if (err != nil) != tt.wantErr {
				t.Fatalf("IntArg(%q) err = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("IntArg(%q) = %d, want %d", tt.arg, got, tt.want)
			}
		})
	}
}

func TestCommand_JSON(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"type":"add_name","arg":"nginx"}`), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.Type != CmdAddName || cmd.Arg != "nginx" {
		t.Errorf("got %+v", cmd)
	}
}

func TestCommandResult_JSON(t *testing.T) {
	res := CommandResult{
		ID:     "abc",
		Type:   CmdGetAddedPIDs,
		Status: StatusOK,
		PIDs:   []ProcessIdentity{{PID: 1, Name: "init"}},
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	s := string(b)
	for _, want := range []string{`"status":"ok"`, `"pids":[{"pid":1,"name":"init"}]`} {
		if !strings.Contains(s, want) {
			t.Errorf("%s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("empty error should be omitted: %s", s)
	}
}
