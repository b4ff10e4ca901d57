package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

type Reporter interface {
	Start(total int)
	Row(current, total int, claimID string)
	Success(message string)
	Failure(err error)
}

// Terminal prints one status line per event.
type Terminal struct {
	mu   sync.Mutex
	out  io.Writer
	info *color.Color
	ok   *color.Color
	fail *color.Color
}

func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{
		out:  out,
		info: color.New(color.FgCyan),
		ok:   color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
	}
}

func (t *Terminal) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Fprintf(t.out, "exporting %d selected rows\n", total)
}

func (t *Terminal) Row(current, total int, claimID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Fprintf(t.out, "[%d/%d] ", current, total)
	fmt.Fprintf(t.out, "%s\n", claimID)
}

func (t *Terminal) Success(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ok.Fprintf(t.out, "done: %s\n", message)
}

func (t *Terminal) Failure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail.Fprintf(t.out, "failed: %v\n", err)
}

type Nop struct{}

func (Nop) Start(int) {}
func (Nop) Row(int, int, string) {}
func (Nop) Success(string) {}
func (Nop) Failure(error) {}

// Recorder keeps every event; used by tests and dry runs.
type Recorder struct {
	mu      sync.Mutex
	Total   int
	Rows    []RowEvent
	Message string
	Err     error
}

type RowEvent struct {
	Current int
	Total   int
	ClaimID string
}

func (r *Recorder) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Total = total
}

func (r *Recorder) Row(current, total int, claimID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rows = append(r.Rows, RowEvent{Current: current, Total: total, ClaimID: claimID})
}

func (r *Recorder) Success(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Message = message
}

func (r *Recorder) Failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}
