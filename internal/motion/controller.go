package motion

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/PolarGo/internal/debug"
	"github.com/cjeanneret/PolarGo/internal/hw/driver"
	"github.com/cjeanneret/PolarGo/internal/store"
)

// Params collects the motion tuning derived from configuration.
type Params struct {
	MaxSteps int64

	BaseDelay   time.Duration // step period at speed setting 1.0
	MinDelay    time.Duration // fastest allowed step period
	MaxDelay    time.Duration // slowest allowed step period
	HomingDelay time.Duration // fixed conservative period for go-to-zero

	SetupDelay time.Duration // direction/enable settling time
	Debounce   time.Duration // wait between cancelling a move and starting the next
	IdlePoll   time.Duration // engine poll period while idle

	HalfSpeedFactor float64 // step period multiplier in half-speed mode
	SaveInterval    int64   // persist position every N steps while moving

	RunCurrentPercent     int // PWM duty while stepping
	HoldingCurrentPercent int // PWM duty while stationary
	SlowCurrentPercent    int // PWM duty in half-speed mode
}

// Controller owns the motion state and is the single entry point for every
// command source. The joystick poller and the console reader call it
// concurrently; one mutex guards the step counter and the motion intent,
// and the background pulse engine (engine.go) does all physical stepping.
type Controller struct {
	dev   driver.Device
	store *store.Store
	p     Params

	// engine hot-path copies
	maxSteps     int64
	saveInterval int64
	idlePoll     time.Duration

	startMu sync.Mutex // serializes finite-move issuance

	mu        sync.Mutex // guards everything below
	stepCount int64
	active    bool
	direction int // -1, 0, 1
	interval  time.Duration
	halfSpeed bool
	cur       *move // finite move in flight, nil during continuous motion
	unsaved   int64 // steps since last periodic save

	stop         chan struct{}
	stopped      chan struct{}
	shutdownOnce sync.Once
}

// New creates a controller seeded from the persisted position.
// Call Start to launch the pulse engine.
func New(dev driver.Device, st *store.Store, p Params) *Controller {
	c := &Controller{
		dev:          dev,
		store:        st,
		p:            p,
		maxSteps:     p.MaxSteps,
		saveInterval: p.SaveInterval,
		idlePoll:     p.IdlePoll,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	c.stepCount = st.Load()
	debug.Info("Motion controller starting at position %d", c.stepCount)
	return c
}

// Start launches the pulse engine goroutine.
func (c *Controller) Start() {
	go c.run()
}

// Position returns the current absolute step count.
func (c *Controller) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stepCount
}

// Moving reports whether any motion is in progress.
func (c *Controller) Moving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// MaxSteps returns the configured travel limit.
func (c *Controller) MaxSteps() int64 {
	return c.maxSteps
}

// MoveRelative performs a finite, cancellable move of |steps| pulses in
// sign(steps) direction. It blocks until the step budget is exhausted, the
// move is cancelled, the travel limit is hit, or the driver faults. Any
// prior in-flight move is cancelled first.
func (c *Controller) MoveRelative(steps int64, speed float64) error {
	if steps == 0 {
		return nil
	}
	c.acquireMove()
	defer c.startMu.Unlock()
	return c.runFinite(steps, c.stepInterval(speed, false))
}

// StartContinuous begins unbounded stepping for live analog input.
// Calling it again with the same direction and speed-mode while already
// moving is a no-op, so joystick jitter does not restart the motor. On
// start-from-rest or direction reversal it re-asserts enable and direction
// with the setup delay, and half-speed mode selects finer microstepping
// with reduced current.
func (c *Controller) StartContinuous(direction int, speed float64, halfSpeed bool) error {
	if direction != 1 && direction != -1 {
		return fmt.Errorf("invalid direction %d", direction)
	}

	c.mu.Lock()
	if c.active && c.cur == nil && c.direction == direction && c.halfSpeed == halfSpeed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// A finite move owns startMu for its whole duration; analog input does
	// not preempt it. The poller re-issues the request on its next tick.
	if !c.startMu.TryLock() {
		return nil
	}
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.active && c.direction == direction && c.halfSpeed == halfSpeed {
		c.mu.Unlock()
		return nil
	}
	wasActive := c.active
	c.active = false
	c.direction = 0
	c.mu.Unlock()

	// On reversal or mode change the engine may be mid-pulse with the old
	// direction on the DIR pin. Wait out the debounce so that pulse lands
	// before the pin flips.
	if wasActive {
		time.Sleep(c.p.Debounce)
	}

	mode, current := driver.Quarter, c.p.RunCurrentPercent
	if halfSpeed {
		mode, current = driver.Sixteenth, c.p.SlowCurrentPercent
	}
	if err := c.setupMotion(direction, mode, current); err != nil {
		return err
	}

	interval := c.stepInterval(speed, halfSpeed)
	c.mu.Lock()
	c.direction = direction
	c.interval = interval
	c.halfSpeed = halfSpeed
	c.active = true
	c.mu.Unlock()

	debug.Motion("continuous", direction, interval)
	return nil
}

// StopContinuous halts continuous stepping, restores the default microstep
// mode and holding current, disables the driver and persists the position.
// It does not touch a finite move in flight.
func (c *Controller) StopContinuous() {
	c.mu.Lock()
	if !c.active || c.cur != nil {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.direction = 0
	c.mu.Unlock()

	c.settle()
	debug.Live("Continuous motion stopped at %d", c.Position())
}

// GoToZero moves back to the stored reference using conservative fixed
// timing, then forces the counter to exactly 0 so accumulated rounding
// cannot drift the reference, and persists.
func (c *Controller) GoToZero() error {
	c.acquireMove()
	defer c.startMu.Unlock()

	c.interrupt()
	pos := c.Position()

	var err error
	if pos != 0 {
		debug.Live("Homing: %d steps back to zero", -pos)
		err = c.runFinite(-pos, c.p.HomingDelay)
	}

	c.mu.Lock()
	c.stepCount = 0
	c.unsaved = 0
	c.mu.Unlock()
	c.persist()
	debug.Info("Homing complete, position is 0")
	return err
}

// ResetReference declares the current physical position to be the new
// zero, without motion. Used after manual mechanical adjustment.
func (c *Controller) ResetReference() {
	c.mu.Lock()
	old := c.stepCount
	c.stepCount = 0
	c.unsaved = 0
	c.mu.Unlock()
	c.persist()
	debug.Info("Position reference reset from %d to 0", old)
}

// Cancel cooperatively interrupts an in-flight finite move. The blocked
// MoveRelative caller returns ErrMoveCancelled within one pulse interval.
// Continuous motion stops via StopContinuous instead.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.cur != nil {
		c.cur.cancelled = true
	}
	c.mu.Unlock()
}

// Shutdown stops all motion, halts the engine, leaves the driver disabled
// and persists the final position.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.interrupt()
		close(c.stop)
		<-c.stopped
		if err := c.dev.Close(); err != nil {
			debug.Error(err)
		}
		c.persist()
		debug.Info("Motion controller shut down at position %d", c.Position())
	})
}

// runFinite executes one finite move. Caller holds startMu.
func (c *Controller) runFinite(steps int64, interval time.Duration) error {
	c.interrupt()
	// Let the engine's in-progress iteration drain before the new move, so
	// a stale pulse cannot be attributed to it.
	time.Sleep(c.p.Debounce)

	select {
	case <-c.stop:
		return ErrMoveCancelled
	default:
	}

	dir := 1
	if steps < 0 {
		dir = -1
		steps = -steps
	}

	if err := c.setupMotion(dir, driver.Quarter, c.p.RunCurrentPercent); err != nil {
		return err
	}

	m := &move{remaining: steps, done: make(chan struct{})}
	c.mu.Lock()
	c.cur = m
	c.direction = dir
	c.interval = interval
	c.halfSpeed = false
	c.active = true
	c.mu.Unlock()

	debug.Motion("finite", dir, interval)
	select {
	case <-m.done:
	case <-c.stopped:
		// The engine exited between the stop check and the publish.
		c.mu.Lock()
		select {
		case <-m.done:
		default:
			c.finishLocked(m, ErrMoveCancelled)
		}
		c.mu.Unlock()
	}

	c.settle()
	return m.err
}

// acquireMove takes startMu, cancelling whatever finite move holds it.
// A new finite move always preempts the prior one; the wait is bounded by
// one pulse interval plus teardown, not by the prior move's length.
func (c *Controller) acquireMove() {
	for !c.startMu.TryLock() {
		c.interrupt()
		time.Sleep(c.p.IdlePoll)
	}
}

// interrupt cancels whatever is moving and waits for the engine to
// acknowledge a finite move's termination.
func (c *Controller) interrupt() {
	c.mu.Lock()
	old := c.cur
	if old != nil {
		old.cancelled = true
	} else if c.active {
		c.active = false
		c.direction = 0
	}
	c.mu.Unlock()
	if old != nil {
		<-old.done
	}
}

// setupMotion sequences mode, current, enable and direction with the
// required settling time before the first pulse.
func (c *Controller) setupMotion(dir int, mode driver.MicrostepMode, current int) error {
	if err := c.dev.SetMicrostepMode(mode); err != nil {
		return c.abortSetup(err)
	}
	if err := c.dev.SetHoldingCurrentPercent(current); err != nil {
		return c.abortSetup(err)
	}
	if err := c.dev.SetEnabled(true); err != nil {
		return c.abortSetup(err)
	}
	if err := c.dev.SetDirection(dir > 0); err != nil {
		return c.abortSetup(err)
	}
	time.Sleep(c.p.SetupDelay)
	return nil
}

// abortSetup makes sure a failed setup leaves the enable line disabled.
func (c *Controller) abortSetup(err error) error {
	if derr := c.dev.SetEnabled(false); derr != nil {
		debug.Error(derr)
	}
	return &DriverFault{Err: err}
}

// settle returns the driver to its stationary state and persists.
func (c *Controller) settle() {
	if err := c.dev.SetEnabled(false); err != nil {
		debug.Error(err)
	}
	if err := c.dev.SetMicrostepMode(driver.Quarter); err != nil {
		debug.Error(err)
	}
	if err := c.dev.SetHoldingCurrentPercent(c.p.HoldingCurrentPercent); err != nil {
		debug.Error(err)
	}
	c.persist()
}

// persist flushes the step counter to the store. Failures are logged and
// operation continues with the in-memory value.
func (c *Controller) persist() {
	c.mu.Lock()
	pos := c.stepCount
	c.unsaved = 0
	c.mu.Unlock()
	if err := c.store.Save(pos); err != nil {
		debug.Error(fmt.Errorf("persist position: %w", err))
	}
}

// stepInterval maps a speed setting in (0,1] to a clamped step period.
func (c *Controller) stepInterval(speed float64, halfSpeed bool) time.Duration {
	if speed < 0 {
		speed = 0
	}
	if speed > 1 {
		speed = 1
	}
	effective := 0.1 + 0.9*speed
	d := time.Duration(float64(c.p.BaseDelay) / effective)
	if halfSpeed {
		d = time.Duration(float64(d) * c.p.HalfSpeedFactor)
	}
	if d < c.p.MinDelay {
		d = c.p.MinDelay
	}
	if d > c.p.MaxDelay {
		d = c.p.MaxDelay
	}
	return d
}
