package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cjeanneret/PolarGo/internal/debug"
	"github.com/cjeanneret/PolarGo/internal/motion"
	"github.com/cjeanneret/PolarGo/internal/units"
)

// Speed settings for console-initiated moves.
const (
	consoleSpeed     = 0.5
	consoleSlowSpeed = 0.1
)

// Console reads line-oriented commands and drives the motion controller.
// Commands use the arcmin.arcsec notation: "1.30" moves 1'30".
type Console struct {
	ctrl   *motion.Controller
	conv   *units.Converter
	in     io.Reader
	out    io.Writer
	onQuit func()
}

// NewConsole wires a command reader to the motion controller. onQuit is
// invoked on the end/exit/quit commands and on EOF.
func NewConsole(ctrl *motion.Controller, conv *units.Converter, in io.Reader, out io.Writer, onQuit func()) *Console {
	return &Console{
		ctrl:   ctrl,
		conv:   conv,
		in:     in,
		out:    out,
		onQuit: onQuit,
	}
}

// Run reads commands until the context is cancelled or input ends.
func (c *Console) Run(ctx context.Context) {
	debug.Info("Console reader started")
	c.printHelp()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			debug.Info("Console reader stopped")
			return
		case line, ok := <-lines:
			if !ok {
				debug.Info("Console input closed")
				c.onQuit()
				return
			}
			c.process(ctx, strings.ToLower(strings.TrimSpace(line)), lines)
		}
	}
}

func (c *Console) prompt() {
	pos := c.ctrl.Position()
	fmt.Fprintf(c.out, "Position: %d steps (%s)\n> ", pos, c.conv.FormatPosition(pos))
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `
Stepper Motor Control Commands:
------------------------------
  <number>        - Move by arc minutes.seconds (e.g. 1.30 = 1'30")
  s <number>      - Move at slow speed (e.g. s 1.30)
  st <steps>      - Move by raw steps (e.g. st -400)
  gt0, go to zero - Return to zero position
  reset           - Reset current position to zero (no motion)
  pos             - Show current position
  help, ?         - Show this help
  end, exit, quit - Exit program
------------------------------
`)
}

func (c *Console) process(ctx context.Context, cmd string, lines <-chan string) {
	if cmd == "" {
		return
	}

	switch cmd {
	case "help", "?":
		c.printHelp()
		return
	case "end", "exit", "quit":
		debug.Info("Exit command received")
		c.onQuit()
		return
	case "gt0", "go to zero":
		c.report(c.ctrl.GoToZero())
		return
	case "reset":
		fmt.Fprint(c.out, "Reset current position to 0? (y/n): ")
		select {
		case <-ctx.Done():
			return
		case answer, ok := <-lines:
			if ok && strings.ToLower(strings.TrimSpace(answer)) == "y" {
				c.ctrl.ResetReference()
				fmt.Fprintln(c.out, "Position reset to 0.")
			} else {
				fmt.Fprintln(c.out, "Reset cancelled.")
			}
		}
		return
	case "pos":
		c.prompt()
		fmt.Fprintln(c.out)
		return
	}

	steps, speed, err := c.parseMove(cmd)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid command %q: %v\n", cmd, err)
		return
	}
	debug.Live("Console move: %d steps at speed %.2f", steps, speed)
	c.report(c.ctrl.MoveRelative(steps, speed))
}

// parseMove handles the move commands: "<arc>", "s <arc>", "slow <arc>"
// and "st <steps>". Malformed input is rejected with no state change.
func (c *Console) parseMove(cmd string) (steps int64, speed float64, err error) {
	parts := strings.Fields(cmd)
	speed = consoleSpeed

	switch {
	case len(parts) == 2 && (parts[0] == "s" || parts[0] == "slow"):
		speed = consoleSlowSpeed
		parts = parts[1:]
	case len(parts) == 2 && parts[0] == "st":
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("not a step count: %q", parts[1])
		}
		return n, speed, nil
	case len(parts) == 1:
	default:
		return 0, 0, errors.New("unknown command format")
	}

	arc, perr := strconv.ParseFloat(parts[0], 64)
	if perr != nil {
		return 0, 0, fmt.Errorf("not an arcmin.arcsec value: %q", parts[0])
	}
	return c.conv.ArcToSteps(arc), speed, nil
}

// report prints the outcome of a blocking move.
func (c *Console) report(err error) {
	var fault *motion.DriverFault
	switch {
	case err == nil:
		fmt.Fprintf(c.out, "Move finished at %d steps.\n", c.ctrl.Position())
	case errors.Is(err, motion.ErrLimitReached):
		fmt.Fprintf(c.out, "Travel limit reached at %d steps.\n", c.ctrl.Position())
	case errors.Is(err, motion.ErrMoveCancelled):
		fmt.Fprintf(c.out, "Move cancelled at %d steps.\n", c.ctrl.Position())
	case errors.As(err, &fault):
		fmt.Fprintf(c.out, "Driver fault: %v (position held at %d)\n", fault.Err, c.ctrl.Position())
	default:
		fmt.Fprintf(c.out, "Move failed: %v\n", err)
	}
}
