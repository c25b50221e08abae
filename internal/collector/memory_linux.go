//go:build linux

package collector

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (p *procfs) ReadMemory(pid int) (MemUsage, error) {
	if pid <= 0 {
		return MemUsage{}, fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}

	f, err := os.Open(filepath.Join(p.root, strconv.Itoa(pid), "status"))
	if err != nil {
		return MemUsage{}, notFound(err)
	}
	defer f.Close()

	return parseStatusMemFrom(f)
}

// parseStatusMemFrom picks the Vm* lines out of /proc/[pid]/status. Kernel
// threads have none of them and report zeros.
func parseStatusMemFrom(r io.Reader) (MemUsage, error) {
	var mem MemUsage

	targets := map[string]*uint64{
		"VmPeak": &mem.Peak,
		"VmSize": &mem.Size,
		"VmHWM":  &mem.HWM,
		"VmRSS":  &mem.RSS,
	}

	found := 0
	scanner := bufio.NewScanner(r)

	for scanner.Scan() && found < len(targets) {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		key := strings.TrimSuffix(fields[0], ":")
		target, ok := targets[key]
		if !ok {
			continue
		}

		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return MemUsage{}, fmt.Errorf("%w: parsing %s: %v", ErrMalformed, key, err)
		}

		*target = value
		found++
	}

	if err := scanner.Err(); err != nil {
		return MemUsage{}, fmt.Errorf("reading status: %w", err)
	}

	return mem, nil
}
