// Package telemetry writes the control loop's debug line: the PID output and
// the steering command, tab separated, CR LF terminated.
package telemetry

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
	"github.com/Taha-404/Autonomous-Car/internal/logic/control"
)

// Writer emits one record per control iteration.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	buf    []byte
	failed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64)}
}

// Emit writes "<pid>\t<steps>\r\n". The PID output is truncated to a 32-bit
// integer, as the receiving side parses integers only.
func (t *Writer) Emit(pidOutput float64, steps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.buf[:0]
	b = strconv.AppendInt(b, int64(truncate32(pidOutput)), 10)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(steps), 10)
	b = append(b, '\r', '\n')
	t.buf = b

	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.Flush()
}

// Observer adapts the writer to the control loop. Write errors are logged
// once and otherwise ignored; telemetry never stalls steering.
func (t *Writer) Observer() control.Observer {
	return func(s control.Sample) {
		if err := t.Emit(s.Output, s.Steps); err != nil {
			t.mu.Lock()
			first := !t.failed
			t.failed = true
			t.mu.Unlock()
			if first {
				debug.Error(err)
			}
		}
	}
}

func truncate32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}
