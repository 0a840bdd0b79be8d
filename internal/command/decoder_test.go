package command

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Taha-404/Autonomous-Car/internal/mailbox"
)

func newTestDecoder(echo *bytes.Buffer) (*Decoder, *mailbox.Mailbox[float64], *mailbox.Mailbox[float64]) {
	desired := mailbox.New[float64]()
	current := mailbox.New[float64]()
	if echo == nil {
		return NewDecoder(desired, current, nil), desired, current
	}
	return NewDecoder(desired, current, echo), desired, current
}

func feed(d *Decoder, s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if d.Feed(s[i]) {
			n++
		}
	}
	return n
}

func TestFeed_DesiredAndCurrent(t *testing.T) {
	d, desired, current := newTestDecoder(nil)

	if n := feed(d, "D-12.5\r\nC171\n"); n != 2 {
		t.Fatalf("committed %d commands, want 2", n)
	}
	if v, ok := desired.Peek(); !ok || v != -12.5 {
		t.Errorf("desired = (%v, %v), want (-12.5, true)", v, ok)
	}
	if v, ok := current.Peek(); !ok || v != 171 {
		t.Errorf("current = (%v, %v), want (171, true)", v, ok)
	}
}

func TestFeed_LowercaseAndPlus(t *testing.T) {
	d, desired, _ := newTestDecoder(nil)
	feed(d, "d+20\n")
	if v, _ := desired.Peek(); v != 20 {
		t.Errorf("desired = %v, want 20", v)
	}
}

func TestFeed_NormalizesValues(t *testing.T) {
	d, _, current := newTestDecoder(nil)
	feed(d, "C190\n")
	if v, _ := current.Peek(); v != -170 {
		t.Errorf("current = %v, want -170", v)
	}
}

func TestFeed_LatestValueWins(t *testing.T) {
	d, desired, _ := newTestDecoder(nil)
	feed(d, "D5\nD-3\n")
	if v := desired.Receive(); v != -3 {
		t.Errorf("desired = %v, want -3", v)
	}
}

func TestFeed_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"unknown_letter", "X12\n"},
		{"letter_in_number", "D1a2\n"},
		{"sign_in_middle", "D1-2\n"},
		{"empty_number", "D\n"},
		{"two_dots", "D1.2.3\n"},
		{"too_long", "D" + strings.Repeat("1", maxDigits+1) + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, desired, current := newTestDecoder(nil)
			if n := feed(d, tc.input); n != 0 {
				t.Errorf("committed %d commands, want 0", n)
			}
			if _, ok := desired.Peek(); ok {
				t.Error("desired should be empty")
			}
			if _, ok := current.Peek(); ok {
				t.Error("current should be empty")
			}
			if _, rejected := d.Stats(); rejected == 0 {
				t.Error("expected a rejection to be counted")
			}
		})
	}
}

func TestFeed_RecoversAfterGarbage(t *testing.T) {
	d, desired, _ := newTestDecoder(nil)
	feed(d, "D1?\nD7\n")
	if v, ok := desired.Peek(); !ok || v != 7 {
		t.Errorf("desired = (%v, %v), want (7, true)", v, ok)
	}
	if decoded, _ := d.Stats(); decoded != 1 {
		t.Errorf("decoded = %d, want 1", decoded)
	}
}

func TestRun_ReadsUntilEOFAndEchoes(t *testing.T) {
	var echo bytes.Buffer
	d, desired, current := newTestDecoder(&echo)
	input := "C10\r\nD15\r\n"

	if err := d.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := current.Peek(); v != 10 {
		t.Errorf("current = %v, want 10", v)
	}
	if v, _ := desired.Peek(); v != 15 {
		t.Errorf("desired = %v, want 15", v)
	}
	if echo.String() != input {
		t.Errorf("echo = %q, want %q", echo.String(), input)
	}
}
