//go:build linux

package collector

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const procStatus = `Name:	postgres
Umask:	0077
State:	S (sleeping)
Tgid:	812
Pid:	812
PPid:	1
VmPeak:	  223364 kB
VmSize:	  221248 kB
VmLck:	       0 kB
VmHWM:	   28112 kB
VmRSS:	   27040 kB
RssAnon:	    4288 kB
Threads:	1
`

func TestParseStatusMemFrom(t *testing.T) {
	got, err := parseStatusMemFrom(strings.NewReader(procStatus))
	if err != nil {
		t.Fatalf("parseStatusMemFrom failed: %v", err)
	}

	want := MemUsage{Peak: 223364, Size: 221248, HWM: 28112, RSS: 27040}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseStatusMemFrom_KernelThread(t *testing.T) {
	input := "Name:\tkworker/0:1\nState:\tI (idle)\nThreads:\t1\n"

	got, err := parseStatusMemFrom(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseStatusMemFrom failed: %v", err)
	}
	if got != (MemUsage{}) {
		t.Errorf("expected zero usage, got %+v", got)
	}
}

func TestParseStatusMemFrom_Malformed(t *testing.T) {
	_, err := parseStatusMemFrom(strings.NewReader("VmRSS:\tlots kB\n"))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestProcfs_ReadMemory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "812")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte(procStatus), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := (&procfs{root: root}).ReadMemory(812)
	if err != nil {
		t.Fatalf("ReadMemory failed: %v", err)
	}
	if got.RSS != 27040 {
		t.Errorf("RSS = %d, want 27040", got.RSS)
	}
}

func TestProcfs_ReadMemory_InvalidPID(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "0", "status"), []byte(procStatus), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, pid := range []int{0, -1} {
		if _, err := (&procfs{root: root}).ReadMemory(pid); !errors.Is(err, ErrNotFound) {
			t.Errorf("ReadMemory(%d) err = %v, want ErrNotFound", pid, err)
		}
	}
}
