//go:build linux

package collector

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func (p *procfs) ReadCPU(withCores bool) (CPUTicks, []CPUTicks, error) {
	f, err := os.Open(filepath.Join(p.root, "stat"))
	if err != nil {
		return CPUTicks{}, nil, err
	}
	defer f.Close()

	all, err := parseProcStatFrom(f, withCores)
	if err != nil {
		return CPUTicks{}, nil, fmt.Errorf("parsing %s/stat: %w", p.root, err)
	}
	return all[0], all[1:], nil
}

// parseProcStatFrom returns the aggregate "cpu" line first, followed by the
// per-core lines in file order. Cores are skipped unless withCores is set.
func parseProcStatFrom(r io.Reader, withCores bool) ([]CPUTicks, error) {
	var result []CPUTicks
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu") {
			break
		}

		ticks, err := parseCPULine(line)
		if err != nil {
			return nil, err
		}

		if ticks.Name == "cpu" {
			result = append([]CPUTicks{ticks}, result...)
			if !withCores {
				break
			}
			continue
		}
		result = append(result, ticks)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 || result[0].Name != "cpu" {
		return nil, fmt.Errorf("%w: aggregate cpu line not found", ErrMalformed)
	}

	return result, nil
}

// parseCPULine reads user nice system idle iowait irq softirq steal. Guest
// time is already folded into user and nice by the kernel and is not added
// again.
func parseCPULine(line string) (CPUTicks, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return CPUTicks{}, fmt.Errorf("%w: insufficient fields: %d", ErrMalformed, len(fields))
	}

	var err error
	parse := makeUintParser(fields, "/proc/stat", &err)

	var total uint64
	for i := 1; i < len(fields) && i <= 8; i++ {
		total += parse(i)
	}
	idle := parse(4)
	if len(fields) > 5 {
		idle += parse(5)
	}
	if err != nil {
		return CPUTicks{}, err
	}

	return CPUTicks{
		Name:  fields[0],
		Idle:  idle,
		Total: total,
	}, nil
}
