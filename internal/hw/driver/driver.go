package driver

import (
	"fmt"
	"time"

	"github.com/cjeanneret/PolarGo/internal/debug"
	"github.com/cjeanneret/PolarGo/internal/hw/gpio"
)

// MicrostepMode selects the driver board's step subdivision.
type MicrostepMode int

const (
	// Quarter is the default 1/4 step mode (Mode1=LOW, Mode2=HIGH, Mode3=LOW).
	Quarter MicrostepMode = iota
	// Sixteenth is the fine mode used for slow motion (all mode pins HIGH).
	Sixteenth
)

func (m MicrostepMode) String() string {
	switch m {
	case Quarter:
		return "1/4"
	case Sixteenth:
		return "1/16"
	default:
		return fmt.Sprintf("MicrostepMode(%d)", int(m))
	}
}

// modeLevels returns the mode pin levels for a microstep mode.
func modeLevels(m MicrostepMode) ([3]gpio.Level, error) {
	switch m {
	case Quarter:
		return [3]gpio.Level{gpio.Low, gpio.High, gpio.Low}, nil
	case Sixteenth:
		return [3]gpio.Level{gpio.High, gpio.High, gpio.High}, nil
	default:
		return [3]gpio.Level{}, fmt.Errorf("unknown microstep mode %d", int(m))
	}
}

// Device is the stepper driver surface the motion engine consumes.
// Board implements it on real hardware; tests substitute fakes.
type Device interface {
	SetDirection(forward bool) error
	SetEnabled(on bool) error
	Pulse(high, low time.Duration) error
	SetMicrostepMode(mode MicrostepMode) error
	SetHoldingCurrentPercent(percent int) error
	Close() error
}

// Config holds the board wiring (BCM numbering).
type Config struct {
	DirPin           int
	StepPin          int
	EnablePin        int
	ModePins         [3]int
	PwmPin           int // current-limit PWM line. 0 = not used.
	EnableActiveHigh bool
}

// PWM frequency for the current-limit line.
const pwmFrequencyHz = 1000

// Board drives a DRV8825-style stepper board through a gpio.Driver.
type Board struct {
	gpio gpio.Driver
	cfg  Config
}

// NewBoard configures the board pins and returns a driver with the motor
// disabled, default microstep mode selected and zero holding current.
func NewBoard(g gpio.Driver, cfg Config) (*Board, error) {
	for _, pin := range []int{cfg.DirPin, cfg.StepPin, cfg.EnablePin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}
	for _, pin := range cfg.ModePins {
		if pin <= 0 {
			continue
		}
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup mode pin %d: %w", pin, err)
		}
	}

	b := &Board{gpio: g, cfg: cfg}

	if err := b.SetEnabled(false); err != nil {
		return nil, err
	}
	if err := b.SetMicrostepMode(Quarter); err != nil {
		return nil, err
	}
	if cfg.PwmPin > 0 {
		if err := g.SetupPWM(cfg.PwmPin, pwmFrequencyHz); err != nil {
			return nil, fmt.Errorf("setup PWM pin %d: %w", cfg.PwmPin, err)
		}
	}

	return b, nil
}

// SetDirection sets the DIR line. Forward is HIGH, matching the rig wiring.
func (b *Board) SetDirection(forward bool) error {
	level := gpio.Low
	if forward {
		level = gpio.High
	}
	return b.gpio.WritePin(b.cfg.DirPin, level)
}

// SetEnabled drives the ENABLE line. The enabled level depends on the rig:
// this board enables with HIGH (EnableActiveHigh), unlike a bare A4988.
// Every stop and fault path must end up here with on=false.
func (b *Board) SetEnabled(on bool) error {
	level := gpio.Level(on == b.cfg.EnableActiveHigh)
	return b.gpio.WritePin(b.cfg.EnablePin, level)
}

// Pulse emits one step: STEP high for the high duration, then low for the
// low duration. The sleeps happen here, outside any caller lock.
func (b *Board) Pulse(high, low time.Duration) error {
	if err := b.gpio.WritePin(b.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(high)
	if err := b.gpio.WritePin(b.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(low)
	return nil
}

// SetMicrostepMode writes the mode pin pattern for the requested mode.
func (b *Board) SetMicrostepMode(mode MicrostepMode) error {
	levels, err := modeLevels(mode)
	if err != nil {
		return err
	}
	debug.Trace("Microstep mode %s", mode)
	for i, pin := range b.cfg.ModePins {
		if pin <= 0 {
			continue
		}
		if err := b.gpio.WritePin(pin, levels[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetHoldingCurrentPercent adjusts the current-limit PWM duty cycle.
// No-op when the board has no PWM line.
func (b *Board) SetHoldingCurrentPercent(percent int) error {
	if b.cfg.PwmPin <= 0 {
		return nil
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("holding current percent out of range: %d", percent)
	}
	return b.gpio.SetPWMDuty(b.cfg.PwmPin, percent)
}

// Close leaves the board in a safe state: motor disabled, zero duty.
func (b *Board) Close() error {
	if err := b.SetEnabled(false); err != nil {
		return err
	}
	if b.cfg.PwmPin > 0 {
		if err := b.gpio.SetPWMDuty(b.cfg.PwmPin, 0); err != nil {
			return err
		}
	}
	return nil
}
