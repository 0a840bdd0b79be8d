// Package command decodes the ASCII command stream received over the
// USB/serial link into orientation updates.
//
// A command is a target letter followed by a decimal number and a line
// terminator:
//
//	D-12.5\r\n   desired orientation delta of -12.5°
//	C171\n       current orientation of 171°
//
// Letters are case-insensitive. Any unexpected byte aborts the command in
// progress. Values are normalized into [-180, 180) before publishing.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Taha-404/Autonomous-Car/internal/debug"
	"github.com/Taha-404/Autonomous-Car/internal/logic/heading"
	"github.com/Taha-404/Autonomous-Car/internal/mailbox"
)

// TaskName is the name the decoder registers under.
const TaskName = "command-decoder"

const maxDigits = 16

type decodeState int

const (
	stateIdle decodeState = iota
	stateNumber
)

// Target selects which mailbox a command feeds.
type Target byte

const (
	TargetDesiredDelta Target = 'D'
	TargetCurrent      Target = 'C'
)

// Decoder is a byte-at-a-time state machine. Not safe for concurrent use.
type Decoder struct {
	desired *mailbox.Mailbox[float64]
	current *mailbox.Mailbox[float64]
	echo    io.Writer

	state  decodeState
	target Target
	buf    []byte

	decoded  int
	rejected int
}

// NewDecoder publishes decoded values to the given mailboxes. If echo is not
// nil every received byte is written back to it.
func NewDecoder(desired, current *mailbox.Mailbox[float64], echo io.Writer) *Decoder {
	return &Decoder{
		desired: desired,
		current: current,
		echo:    echo,
		buf:     make([]byte, 0, maxDigits),
	}
}

// Feed consumes one byte. It returns true when the byte completed a command.
func (d *Decoder) Feed(b byte) bool {
	switch d.state {
	case stateIdle:
		switch b {
		case 'D', 'd':
			d.begin(TargetDesiredDelta)
		case 'C', 'c':
			d.begin(TargetCurrent)
		case '\r', '\n', ' ':
		default:
			d.reject(b)
		}
		return false

	case stateNumber:
		switch {
		case isDigit(b), b == '.', (b == '-' || b == '+') && len(d.buf) == 0:
			if len(d.buf) >= maxDigits {
				d.reject(b)
				return false
			}
			d.buf = append(d.buf, b)
			return false
		case b == '\r' || b == '\n':
			return d.commit()
		default:
			d.reject(b)
			return false
		}
	}
	return false
}

func (d *Decoder) begin(t Target) {
	d.state = stateNumber
	d.target = t
	d.buf = d.buf[:0]
}

func (d *Decoder) commit() bool {
	v, err := strconv.ParseFloat(string(d.buf), 64)
	d.state = stateIdle
	if err != nil {
		d.rejected++
		debug.Trace("Command: bad number %q for %c", d.buf, d.target)
		return false
	}

	o := heading.Normalize(v).Degrees()
	switch d.target {
	case TargetDesiredDelta:
		d.desired.Overwrite(o)
	case TargetCurrent:
		d.current.Overwrite(o)
	}
	d.decoded++
	debug.Trace("Command: %c %.2f", d.target, o)
	return true
}

func (d *Decoder) reject(b byte) {
	d.rejected++
	d.state = stateIdle
	debug.Trace("Command: unexpected byte 0x%02x", b)
}

// Stats returns the number of decoded and rejected commands.
func (d *Decoder) Stats() (decoded, rejected int) {
	return d.decoded, d.rejected
}

// Run reads r until it fails or ctx is done. Closing the underlying port
// is how a blocked read is interrupted at shutdown.
func (d *Decoder) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			d.Feed(b)
		}
		if n > 0 && d.echo != nil {
			if _, werr := d.echo.Write(buf[:n]); werr != nil {
				debug.Trace("Command: echo failed: %v", werr)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read commands: %w", err)
		}
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '0'+9
}
