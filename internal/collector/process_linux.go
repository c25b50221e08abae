//go:build linux

package collector

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// /proc/[pid]/task/[tid]/stat is positional. After the pid and the
// parenthesized comm there are at least 39 more fields; the indices below
// are relative to the field that follows the closing paren.
const (
	statState      = 0
	statPPID       = 1
	statUTime      = 11
	statSTime      = 12
	statCUTime     = 13
	statCSTime     = 14
	statNumThreads = 17
	statRSS        = 21
	statProcessor  = 36

	statMinFields = 39 // 41 documented fields minus pid and comm
)

func (p *procfs) taskDir(pid int) string {
	return filepath.Join(p.root, strconv.Itoa(pid), "task")
}

func (p *procfs) ReadTask(pid, tid int) (TaskStat, error) {
	path := filepath.Join(p.taskDir(pid), strconv.Itoa(tid), "stat")

	f, err := os.Open(path)
	if err != nil {
		return TaskStat{}, notFound(err)
	}
	defer f.Close()

	stat, err := parseTaskStatFrom(f)
	if err != nil {
		return TaskStat{}, fmt.Errorf("%s: %w", path, notFound(err))
	}
	return stat, nil
}

func (p *procfs) ListThreads(pid int) (string, []int, error) {
	if pid <= 0 {
		return "", nil, ErrNotFound
	}

	entries, err := os.ReadDir(p.taskDir(pid))
	if err != nil {
		return "", nil, notFound(err)
	}

	tids := make([]int, 0, len(entries))
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}

	var name string
	if stat, err := p.ReadTask(pid, pid); err == nil {
		name = stat.Name
	}

	return name, tids, nil
}

// notFound folds the ways a vanished task shows up in procfs into
// ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// parseTaskStatFrom parses a single /proc/[pid]/task/[tid]/stat line.
func parseTaskStatFrom(r io.Reader) (TaskStat, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return TaskStat{}, err
	}
	str := strings.TrimSpace(string(data))

	// comm may itself contain spaces and parens, so cut at the last ')'
	firstParen := strings.Index(str, "(")
	lastParen := strings.LastIndex(str, ")")
	if firstParen <= 0 || lastParen <= firstParen || lastParen+2 > len(str) {
		return TaskStat{}, fmt.Errorf("%w: invalid format", ErrMalformed)
	}

	id, err := strconv.Atoi(strings.TrimSpace(str[:firstParen]))
	if err != nil {
		return TaskStat{}, fmt.Errorf("%w: task id: %v", ErrMalformed, err)
	}

	fields := strings.Fields(str[lastParen+1:])
	if len(fields) < statMinFields {
		return TaskStat{}, fmt.Errorf("%w: insufficient fields: %d", ErrMalformed, len(fields))
	}

	var perr error
	parse := makeUintParser(fields, "task stat", &perr)
	parseInt := func(index int) int64 {
		if perr != nil {
			return 0
		}
		v, err := strconv.ParseInt(fields[index], 10, 64)
		if err != nil {
			perr = fmt.Errorf("%w: task stat field[%d] = %q: %v", ErrMalformed, index, fields[index], err)
		}
		return v
	}
	nonNegative := func(v int64) uint64 {
		if v < 0 {
			return 0
		}
		return uint64(v)
	}

	stat := TaskStat{
		ID:         id,
		Name:       str[firstParen+1 : lastParen],
		State:      fields[statState],
		PPID:       int(parseInt(statPPID)),
		UTime:      parse(statUTime),
		STime:      parse(statSTime),
		CUTime:     nonNegative(parseInt(statCUTime)),
		CSTime:     nonNegative(parseInt(statCSTime)),
		NumThreads: int(parseInt(statNumThreads)),
		RSSPages:   nonNegative(parseInt(statRSS)),
		Processor:  int(parseInt(statProcessor)),
	}
	if perr != nil {
		return TaskStat{}, perr
	}

	return stat, nil
}
