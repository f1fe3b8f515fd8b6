package motion

import (
	"time"

	"github.com/cjeanneret/PolarGo/internal/debug"
)

// move tracks one finite, cancellable move in flight.
type move struct {
	remaining int64
	cancelled bool
	err       error         // terminal result, written before done is closed
	done      chan struct{} // closed by the engine when the move ends
}

// engine is the pulse generator. One goroutine owns all physical stepping:
// it turns the current intent into timed pulses and is the only writer of
// the step counter during motion. The shared fields live on Controller and
// are guarded by its mutex; the lock is never held across a pulse.
func (c *Controller) run() {
	defer close(c.stopped)

	for {
		select {
		case <-c.stop:
			// Fail any pending finite move so its caller never blocks on
			// a channel nobody will close.
			c.mu.Lock()
			if c.cur != nil {
				c.finishLocked(c.cur, ErrMoveCancelled)
			}
			c.mu.Unlock()
			return
		default:
		}

		c.mu.Lock()
		if !c.active || c.direction == 0 {
			c.mu.Unlock()
			c.idleSleep()
			continue
		}

		m := c.cur
		dir := c.direction
		interval := c.interval

		// Cooperative cancellation, checked once per pulse.
		if m != nil && m.cancelled {
			c.finishLocked(m, ErrMoveCancelled)
			c.mu.Unlock()
			continue
		}

		// Travel limit is enforced before the increment, never after.
		next := c.stepCount + int64(dir)
		if next > c.maxSteps || next < -c.maxSteps {
			at := c.stepCount
			if m != nil {
				c.finishLocked(m, ErrLimitReached)
			} else {
				c.active = false
				c.direction = 0
			}
			c.mu.Unlock()
			debug.Limit(at)
			if m != nil {
				// The blocked runFinite caller settles and persists.
				if err := c.dev.SetEnabled(false); err != nil {
					debug.Error(err)
				}
			} else {
				// Continuous motion has no caller to return to: this stop
				// is the disable event, so settle and persist here.
				c.settle()
			}
			continue
		}
		c.mu.Unlock()

		// Pulse outside the lock: a concurrent stop or redirect waits at
		// most one pulse period, never a whole move.
		if err := c.dev.Pulse(interval/2, interval/2); err != nil {
			fault := &DriverFault{Err: err}
			c.mu.Lock()
			finite := m != nil && m == c.cur
			if finite {
				c.finishLocked(m, fault)
			} else {
				c.active = false
				c.direction = 0
			}
			c.mu.Unlock()
			debug.Error(fault)
			if finite {
				if err := c.dev.SetEnabled(false); err != nil {
					debug.Error(err)
				}
			} else {
				c.settle()
			}
			continue
		}

		// The pulse physically completed; only now does the counter move.
		var (
			savePos int64
			doSave  bool
		)
		c.mu.Lock()
		c.stepCount += int64(dir)
		c.unsaved++
		if c.unsaved >= c.saveInterval {
			c.unsaved = 0
			savePos = c.stepCount
			doSave = true
		}
		if m != nil && m == c.cur {
			m.remaining--
			if m.remaining <= 0 {
				c.finishLocked(m, nil)
			}
		}
		c.mu.Unlock()

		if doSave {
			if err := c.store.Save(savePos); err != nil {
				debug.Error(err)
			}
		}
	}
}

// finishLocked terminates a finite move and publishes its result.
// Caller holds c.mu.
func (c *Controller) finishLocked(m *move, err error) {
	m.err = err
	close(m.done)
	if c.cur == m {
		c.cur = nil
	}
	c.active = false
	c.direction = 0
}

// idleSleep waits one idle poll period, cut short by shutdown.
func (c *Controller) idleSleep() {
	t := time.NewTimer(c.idlePoll)
	defer t.Stop()
	select {
	case <-c.stop:
	case <-t.C:
	}
}
