package input

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/PolarGo/internal/motion"
	"github.com/cjeanneret/PolarGo/internal/units"
)

// testConverter yields 0.2 steps per arcsecond, so 1.30 (1'30") is 18 steps.
func testConverter() *units.Converter {
	return units.NewConverter(units.Mechanism{
		StepsPerRev:       200,
		Microstepping:     4,
		DriveReduction:    7.2,
		LeadScrewTravelMm: 8,
		GearRatio:         45,
	})
}

// runConsole feeds the input to a console over a fresh controller and
// returns the output once the input is exhausted.
func runConsole(t *testing.T, seed int64, input string) (string, *motion.Controller, bool) {
	t.Helper()
	ctrl, _ := newTestController(t, seed)
	var out bytes.Buffer
	quit := false
	con := NewConsole(ctrl, testConverter(), strings.NewReader(input), &out, func() { quit = true })
	con.Run(context.Background())
	return out.String(), ctrl, quit
}

func TestConsole_StepCommand(t *testing.T) {
	out, ctrl, _ := runConsole(t, 0, "st 10\n")
	if got := ctrl.Position(); got != 10 {
		t.Errorf("Position = %d, want 10", got)
	}
	if !strings.Contains(out, "Move finished at 10 steps.") {
		t.Errorf("missing completion report in output:\n%s", out)
	}
}

func TestConsole_NegativeStepCommand(t *testing.T) {
	_, ctrl, _ := runConsole(t, 0, "st -7\n")
	if got := ctrl.Position(); got != -7 {
		t.Errorf("Position = %d, want -7", got)
	}
}

func TestConsole_ArcCommand(t *testing.T) {
	_, ctrl, _ := runConsole(t, 0, "1.30\n")
	if got := ctrl.Position(); got != 18 {
		t.Errorf("Position = %d, want 18 (1'30\" at 0.2 steps/arcsec)", got)
	}
}

func TestConsole_SlowArcCommand(t *testing.T) {
	_, ctrl, _ := runConsole(t, 0, "s -1.30\n")
	if got := ctrl.Position(); got != -18 {
		t.Errorf("Position = %d, want -18", got)
	}
}

func TestConsole_GoToZero(t *testing.T) {
	out, ctrl, _ := runConsole(t, 12, "gt0\n")
	if got := ctrl.Position(); got != 0 {
		t.Errorf("Position = %d after gt0, want 0", got)
	}
	if !strings.Contains(out, "Move finished at 0 steps.") {
		t.Errorf("missing completion report in output:\n%s", out)
	}
}

func TestConsole_ResetConfirmed(t *testing.T) {
	out, ctrl, _ := runConsole(t, 55, "reset\ny\n")
	if got := ctrl.Position(); got != 0 {
		t.Errorf("Position = %d after confirmed reset, want 0", got)
	}
	if !strings.Contains(out, "Position reset to 0.") {
		t.Errorf("missing reset report in output:\n%s", out)
	}
}

func TestConsole_ResetDeclined(t *testing.T) {
	out, ctrl, _ := runConsole(t, 55, "reset\nn\n")
	if got := ctrl.Position(); got != 55 {
		t.Errorf("Position = %d after declined reset, want 55", got)
	}
	if !strings.Contains(out, "Reset cancelled.") {
		t.Errorf("missing cancel report in output:\n%s", out)
	}
}

func TestConsole_InvalidCommandRejected(t *testing.T) {
	out, ctrl, _ := runConsole(t, 0, "bogus\nst 1.5\n1 2 3\n")
	if got := ctrl.Position(); got != 0 {
		t.Errorf("Position = %d after invalid input, want 0", got)
	}
	if strings.Count(out, "Invalid command") != 3 {
		t.Errorf("expected three rejections in output:\n%s", out)
	}
}

func TestConsole_QuitCommands(t *testing.T) {
	for _, cmd := range []string{"end", "exit", "quit"} {
		_, _, quit := runConsole(t, 0, cmd+"\n")
		if !quit {
			t.Errorf("%q did not trigger quit", cmd)
		}
	}
}

func TestConsole_EOFQuits(t *testing.T) {
	_, _, quit := runConsole(t, 0, "")
	if !quit {
		t.Error("expected quit on end of input")
	}
}

func TestConsole_PromptShowsPosition(t *testing.T) {
	out, _, _ := runConsole(t, 18, "pos\n")
	if !strings.Contains(out, "Position: 18 steps (1'30.00\")") {
		t.Errorf("prompt missing arc-formatted position:\n%s", out)
	}
}

func TestConsole_ContextCancelStops(t *testing.T) {
	ctrl, _ := newTestController(t, 0)
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	con := NewConsole(ctrl, testConverter(), pr, io.Discard, func() {})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		con.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop on context cancellation")
	}
}

func TestConsole_ResetAbortedByCancel(t *testing.T) {
	ctrl, _ := newTestController(t, 55)
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	con := NewConsole(ctrl, testConverter(), pr, io.Discard, func() {})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		con.Run(ctx)
		close(done)
	}()

	// Park the console on the y/n confirmation, then cancel: it must not
	// stay blocked waiting for an answer.
	if _, err := pw.Write([]byte("reset\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop while awaiting reset confirmation")
	}
	if got := ctrl.Position(); got != 55 {
		t.Errorf("Position = %d, want 55 (no reset applied)", got)
	}
}

func TestConsole_ParseMove(t *testing.T) {
	con := NewConsole(nil, testConverter(), nil, io.Discard, nil)

	cases := []struct {
		cmd   string
		steps int64
		speed float64
		ok    bool
	}{
		{"st 10", 10, consoleSpeed, true},
		{"st -400", -400, consoleSpeed, true},
		{"1.30", 18, consoleSpeed, true},
		{"-1.30", -18, consoleSpeed, true},
		{"s 1.30", 18, consoleSlowSpeed, true},
		{"slow 2.00", 24, consoleSlowSpeed, true},
		{"0", 0, consoleSpeed, true},
		{"st abc", 0, 0, false},
		{"s", 0, 0, false},
		{"x 1.30", 0, 0, false},
		{"1 2 3", 0, 0, false},
	}
	for _, tc := range cases {
		steps, speed, err := con.parseMove(tc.cmd)
		if tc.ok != (err == nil) {
			t.Errorf("parseMove(%q) error = %v, want ok=%v", tc.cmd, err, tc.ok)
			continue
		}
		if !tc.ok {
			continue
		}
		if steps != tc.steps || speed != tc.speed {
			t.Errorf("parseMove(%q) = (%d, %v), want (%d, %v)",
				tc.cmd, steps, speed, tc.steps, tc.speed)
		}
	}
}
