package input

import (
	"context"
	"time"

	"github.com/cjeanneret/PolarGo/internal/debug"
	"github.com/cjeanneret/PolarGo/internal/motion"
)

// JoystickReader decodes one raw joystick sample. x is the stick deflection
// centered on 0 (roughly -128..127); z and c are the button states.
// The I2C/Nunchuk decoding lives behind this interface.
type JoystickReader interface {
	Sample() (x int, z, c bool, err error)
}

// NullReader is a JoystickReader that always reports a centered stick and
// released buttons. Used when no physical joystick decoder is wired in.
type NullReader struct{}

func (NullReader) Sample() (int, bool, bool, error) {
	return 0, false, false, nil
}

// JoystickConfig tunes the poller.
type JoystickConfig struct {
	DeadZone   int           // |x| below this is treated as centered
	Poll       time.Duration // tick period
	DoubleTap  time.Duration // max gap between two taps of a button
	FixedSpeed float64       // speed setting for joystick motion
}

// Poller evaluates the joystick once per tick and drives the motion
// controller. All button handling is press-edge detection: no inner
// wait-for-release loops, so the poller always reacts to shutdown within
// one tick.
//
// Gestures: double-tap Z homes to zero, double-tap C toggles half-speed
// mode, Z+C together quits.
type Poller struct {
	r      JoystickReader
	ctrl   *motion.Controller
	cfg    JoystickConfig
	onQuit func()

	prevZ, prevC bool
	lastZTap     time.Time
	lastCTap     time.Time
	halfSpeed    bool
	moving       bool
}

// NewPoller wires a joystick reader to the motion controller. onQuit is
// invoked when Z and C are pressed together.
func NewPoller(r JoystickReader, ctrl *motion.Controller, cfg JoystickConfig, onQuit func()) *Poller {
	return &Poller{
		r:      r,
		ctrl:   ctrl,
		cfg:    cfg,
		onQuit: onQuit,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	debug.Info("Joystick poller started (dead zone %d, tick %v)", p.cfg.DeadZone, p.cfg.Poll)
	ticker := time.NewTicker(p.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Info("Joystick poller stopped")
			return
		case <-ticker.C:
			p.tick(time.Now())
		}
	}
}

// tick processes one sample. Split out so tests can drive it with
// synthetic samples and timestamps.
func (p *Poller) tick(now time.Time) {
	x, z, c, err := p.r.Sample()
	if err != nil {
		debug.Error(err)
		return
	}

	if z && c {
		debug.Live("Z+C pressed: quitting")
		p.onQuit()
		return
	}

	if z && !p.prevZ {
		if !p.lastZTap.IsZero() && now.Sub(p.lastZTap) < p.cfg.DoubleTap {
			p.lastZTap = time.Time{}
			debug.Live("Double tap Z: homing to zero")
			// Homing is a long synchronous move; keep polling while it runs.
			go func() {
				if err := p.ctrl.GoToZero(); err != nil {
					debug.Error(err)
				}
			}()
		} else {
			p.lastZTap = now
		}
	}

	if c && !p.prevC {
		if !p.lastCTap.IsZero() && now.Sub(p.lastCTap) < p.cfg.DoubleTap {
			p.lastCTap = time.Time{}
			p.halfSpeed = !p.halfSpeed
			mode := "full"
			if p.halfSpeed {
				mode = "half"
			}
			debug.Live("Double tap C: speed now %s", mode)
		} else {
			p.lastCTap = now
		}
	}

	p.prevZ, p.prevC = z, c

	if x > -p.cfg.DeadZone && x < p.cfg.DeadZone {
		if p.moving {
			p.ctrl.StopContinuous()
			p.moving = false
		}
		return
	}

	dir := 1
	if x < 0 {
		dir = -1
	}
	// Issued every tick; the controller makes repeats a no-op.
	if err := p.ctrl.StartContinuous(dir, p.cfg.FixedSpeed, p.halfSpeed); err != nil {
		debug.Error(err)
		return
	}
	p.moving = true
}
