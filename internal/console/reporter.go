// Package console prints snapshots to a terminal or any other writer.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/nhdewitt/threadmon/internal/protocol"
)

const (
	clearScreen  = "\033[H\033[2J"
	defaultWidth = 80
)

// Reporter renders snapshots as text. On a terminal each snapshot replaces
// the previous one; otherwise they are appended.
type Reporter struct {
	w         io.Writer
	coresOnly bool
	tty       bool
	width     int
}

func New(w io.Writer, coresOnly bool) *Reporter {
	r := &Reporter{w: w, coresOnly: coresOnly, width: defaultWidth}

	if f, ok := w.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			r.tty = true
			if width, _, err := term.GetSize(fd); err == nil && width > 0 {
				r.width = width
			}
		}
	}
	return r
}

// Run prints every snapshot from in until ctx is done or in is closed.
func (r *Reporter) Run(ctx context.Context, in <-chan protocol.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.Print(snap); err != nil {
				return err
			}
		}
	}
}

func (r *Reporter) Print(snap protocol.Snapshot) error {
	bw := bufio.NewWriter(r.w)

	if r.coresOnly {
		r.printCores(bw, snap.CPU)
		return bw.Flush()
	}

	if r.tty {
		bw.WriteString(clearScreen)
	}

	fmt.Fprintf(bw, "%s  ", snap.Timestamp.Format(time.TimeOnly))
	r.printCores(bw, snap.CPU)

	if len(snap.Processes.Infos) == 0 {
		fmt.Fprintln(bw, "  no processes monitored")
	}
	for _, p := range snap.Processes.Infos {
		r.printProcess(bw, p)
	}

	return bw.Flush()
}

func (r *Reporter) printCores(w *bufio.Writer, cpu protocol.CPUMessage) {
	fmt.Fprintf(w, "%s %5.1f%%", cpu.Aggregate.Name, cpu.Aggregate.Usage)
	if r.tty {
		fmt.Fprintf(w, " %s", bar(cpu.Aggregate.Usage, r.width/4))
	}
	for _, c := range cpu.Cores {
		fmt.Fprintf(w, "  %s %5.1f%%", c.Name, c.Usage)
	}
	w.WriteString("\n")
}

func (r *Reporter) printProcess(w *bufio.Writer, p protocol.ProcessInfo) {
	var total float64
	for _, t := range p.Threads {
		total += t.Usage
	}

	fmt.Fprintf(w, "%7d %-16s %6.1f%%  rss %s  hwm %s  size %s  peak %s  threads %d\n",
		p.ID, p.Name, total,
		kib(p.Mem.RSS), kib(p.Mem.HWM), kib(p.Mem.Size), kib(p.Mem.Peak),
		len(p.Threads))

	for _, t := range p.Threads {
		fmt.Fprintf(w, "        %7d %-16s %6.1f%%\n", t.ID, t.Name, t.Usage)
	}
}

// kib formats a kB count in human units.
func kib(v uint64) string {
	return humanize.IBytes(v * 1024)
}

func bar(pct float64, width int) string {
	if width < 10 {
		width = 10
	}
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
