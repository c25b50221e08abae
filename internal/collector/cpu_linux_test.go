//go:build linux

package collector

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const procStat = `cpu  10132153 290696 3084719 46828483 16683 0 25195 0 175628 0
cpu0 1393280 32966 572056 13343292 6130 0 17875 0 23933 0
cpu1 1335557 19938 493283 13481726 3572 0 6223 0 46012 0
intr 199292311 57 0 0 0 0 0 0 0 1 0 0 0 0 0 0 0 0
ctxt 356045463
btime 1700000000
`

func TestParseProcStatFrom(t *testing.T) {
	got, err := parseProcStatFrom(strings.NewReader(procStat), true)
	if err != nil {
		t.Fatalf("parseProcStatFrom failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected aggregate and 2 cores, got %d entries", len(got))
	}

	agg := got[0]
	if agg.Name != "cpu" {
		t.Errorf("first entry = %q, want cpu", agg.Name)
	}
	// user nice system idle iowait irq softirq steal
	wantTotal := uint64(10132153 + 290696 + 3084719 + 46828483 + 16683 + 0 + 25195 + 0)
	if agg.Total != wantTotal {
		t.Errorf("aggregate total = %d, want %d", agg.Total, wantTotal)
	}
	if agg.Idle != 46828483+16683 {
		t.Errorf("aggregate idle = %d, want %d", agg.Idle, 46828483+16683)
	}

	if got[1].Name != "cpu0" || got[2].Name != "cpu1" {
		t.Errorf("core order = %q, %q", got[1].Name, got[2].Name)
	}
}

func TestParseProcStatFrom_AggregateOnly(t *testing.T) {
	got, err := parseProcStatFrom(strings.NewReader(procStat), false)
	if err != nil {
		t.Fatalf("parseProcStatFrom failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected only the aggregate, got %d entries", len(got))
	}
}

func TestParseProcStatFrom_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no cpu lines", "intr 1 2 3\nctxt 4\n"},
		{"short line", "cpu 1 2 3\n"},
		{"bad number", "cpu 1 2 x 4 5 6 7 8\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProcStatFrom(strings.NewReader(tt.input), true)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParseCPULine_OldKernel(t *testing.T) {
	// 2.4 kernels only report four counters after the name
	got, err := parseCPULine("cpu 100 0 50 850")
	if err != nil {
		t.Fatalf("parseCPULine failed: %v", err)
	}
	if got.Total != 1000 || got.Idle != 850 {
		t.Errorf("got total=%d idle=%d, want 1000/850", got.Total, got.Idle)
	}
}

func TestProcfs_ReadCPU(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "stat"), []byte(procStat), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &procfs{root: root}
	agg, cores, err := p.ReadCPU(true)
	if err != nil {
		t.Fatalf("ReadCPU failed: %v", err)
	}
	if agg.Name != "cpu" {
		t.Errorf("aggregate name = %q", agg.Name)
	}
	if len(cores) != 2 {
		t.Errorf("expected 2 cores, got %d", len(cores))
	}

	if _, _, err := (&procfs{root: t.TempDir()}).ReadCPU(false); err == nil {
		t.Error("expected error for missing stat file")
	}
}
