package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nhdewitt/threadmon/internal/protocol"
	"github.com/shoenig/test/must"
)

func sampleSnapshot() protocol.Snapshot {
	now := time.Date(2025, 3, 1, 14, 30, 5, 0, time.Local)
	ms := now.UnixMilli()
	return protocol.Snapshot{
		Timestamp: now,
		CPU: protocol.CPUMessage{
			Aggregate: protocol.CPUInfo{Name: "cpu", Usage: 42.5, Timestamp: ms},
			Cores: []protocol.CPUInfo{
				{Name: "cpu0", Usage: 80, Timestamp: ms},
				{Name: "cpu1", Usage: 5, Timestamp: ms},
			},
			Timestamp: ms,
		},
		Processes: protocol.ProcessMessage{
			Infos: []protocol.ProcessInfo{{
				ID:   812,
				Name: "postgres",
				Threads: []protocol.ThreadInfo{
					{ID: 812, Name: "postgres", Usage: 12.5},
					{ID: 813, Name: "pg-walwriter", Usage: 2.5},
				},
				Mem: protocol.MemInfo{Peak: 223364, Size: 221248, HWM: 28112, RSS: 27040},
			}},
			Timestamp: ms,
		},
	}
}

func TestReporter_Print(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)
	must.False(t, r.tty)

	must.NoError(t, r.Print(sampleSnapshot()))
	out := buf.String()

	must.StrContains(t, out, "14:30:05")
	must.StrContains(t, out, "cpu  42.5%")
	must.StrContains(t, out, "cpu0  80.0%")
	must.StrContains(t, out, "postgres")
	must.StrContains(t, out, " 15.0%")
	must.StrContains(t, out, "rss 26 MiB")
	must.StrContains(t, out, "pg-walwriter")
	must.StrContains(t, out, "threads 2")
	must.False(t, strings.Contains(out, clearScreen))
}

func TestReporter_CoresOnly(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)

	must.NoError(t, r.Print(sampleSnapshot()))

	out := buf.String()
	must.Eq(t, 1, strings.Count(out, "\n"))
	must.StrContains(t, out, "cpu1   5.0%")
	must.False(t, strings.Contains(out, "postgres"))
}

func TestReporter_NoProcesses(t *testing.T) {
	var buf bytes.Buffer
	snap := sampleSnapshot()
	snap.Processes.Infos = nil

	must.NoError(t, New(&buf, false).Print(snap))
	must.StrContains(t, buf.String(), "no processes monitored")
}

func TestReporter_Run(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)

	in := make(chan protocol.Snapshot, 3)
	for range 3 {
		in <- sampleSnapshot()
	}
	close(in)

	must.NoError(t, r.Run(context.Background(), in))
	must.Eq(t, 3, strings.Count(buf.String(), "\n"))
}

func TestBar(t *testing.T) {
	must.Eq(t, "[#####.....]", bar(50, 10))
	must.Eq(t, "[..........]", bar(-3, 4))
	must.Eq(t, "[##########]", bar(150, 10))
}
