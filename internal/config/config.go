package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StepperConfig holds the wiring of the stepper driver board (BCM numbering).
type StepperConfig struct {
	DirPin           int    `yaml:"dir_pin"`
	StepPin          int    `yaml:"step_pin"`
	EnablePin        int    `yaml:"enable_pin"`
	ModePins         [3]int `yaml:"mode_pins"`          // microstep mode select pins
	PwmPin           int    `yaml:"pwm_pin"`            // current-limit PWM line. 0 = not used.
	EnableActiveHigh bool   `yaml:"enable_active_high"` // this rig enables with HIGH
}

// MechanismConfig describes the lead-screw mechanism. These values replace
// the per-variant constant sets: one record, several deployments.
type MechanismConfig struct {
	StepsPerRev       int     `yaml:"steps_per_rev"`        // full steps per motor revolution
	Microstepping     int     `yaml:"microstepping"`        // default microstep divisor (e.g. 4)
	MaxSteps          int64   `yaml:"max_steps"`            // absolute travel limit, in microsteps
	GearRatio         float64 `yaml:"gear_ratio"`           // mount gear ratio (e.g. 45)
	LeadScrewTravelMm float64 `yaml:"lead_screw_travel_mm"` // screw travel per revolution
	DriveReduction    float64 `yaml:"drive_reduction"`      // belt/efficiency factor between motor and screw
}

// MotionConfig holds pulse timing and current settings.
type MotionConfig struct {
	BaseDelayUs   int `yaml:"base_delay_us"`   // step period at speed 1.0
	MinDelayUs    int `yaml:"min_delay_us"`    // fastest allowed step period
	MaxDelayUs    int `yaml:"max_delay_us"`    // slowest allowed step period
	HomingDelayUs int `yaml:"homing_delay_us"` // fixed conservative period for go-to-zero
	SetupDelayMs  int `yaml:"setup_delay_ms"`  // direction/enable setup time before first pulse
	DebounceMs    int `yaml:"debounce_ms"`     // wait after cancelling a move before starting the next
	IdlePollMs    int `yaml:"idle_poll_ms"`    // engine poll period while idle

	HalfSpeedFactor float64 `yaml:"half_speed_factor"` // delay multiplier in half-speed mode

	SaveIntervalSteps int64 `yaml:"save_interval_steps"` // persist position every N steps while moving

	RunCurrentPercent     int `yaml:"run_current_percent"`     // PWM duty while stepping
	HoldingCurrentPercent int `yaml:"holding_current_percent"` // PWM duty while stationary
	SlowCurrentPercent    int `yaml:"slow_current_percent"`    // PWM duty in half-speed mode
}

// JoystickConfig tunes the analog input poller.
type JoystickConfig struct {
	DeadZone    int     `yaml:"dead_zone"`     // |x| below this is treated as centered (0-127)
	PollMs      int     `yaml:"poll_ms"`       // poll tick period
	DoubleTapMs int     `yaml:"double_tap_ms"` // max gap between taps
	FixedSpeed  float64 `yaml:"fixed_speed"`   // speed setting used for joystick motion (0-1]
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DataDir    string `yaml:"data_dir"`    // position file directory; default ~/stepper_data
	DebugLevel int    `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool   `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Stepper   StepperConfig   `yaml:"stepper"`
	Mechanism MechanismConfig `yaml:"mechanism"`
	Motion    MotionConfig    `yaml:"motion"`
	Joystick  JoystickConfig  `yaml:"joystick"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Stepper.DirPin <= 0 || cfg.Stepper.StepPin <= 0 || cfg.Stepper.EnablePin <= 0 {
		return nil, fmt.Errorf("stepper dir_pin, step_pin and enable_pin are required")
	}
	if cfg.Mechanism.StepsPerRev <= 0 {
		cfg.Mechanism.StepsPerRev = 200
	}
	if cfg.Mechanism.Microstepping <= 0 {
		cfg.Mechanism.Microstepping = 4
	}
	if cfg.Mechanism.MaxSteps <= 0 {
		return nil, fmt.Errorf("mechanism.max_steps must be > 0")
	}
	if cfg.Mechanism.GearRatio <= 0 {
		return nil, fmt.Errorf("mechanism.gear_ratio must be > 0")
	}
	if cfg.Mechanism.LeadScrewTravelMm <= 0 {
		return nil, fmt.Errorf("mechanism.lead_screw_travel_mm must be > 0")
	}
	if cfg.Mechanism.DriveReduction <= 0 {
		cfg.Mechanism.DriveReduction = 1
	}

	// Timing defaults (the "mod 1" variant values)
	if cfg.Motion.BaseDelayUs <= 0 {
		cfg.Motion.BaseDelayUs = 1000
	}
	if cfg.Motion.MinDelayUs <= 0 {
		cfg.Motion.MinDelayUs = 200
	}
	if cfg.Motion.MaxDelayUs <= 0 {
		cfg.Motion.MaxDelayUs = 20000
	}
	if cfg.Motion.MinDelayUs > cfg.Motion.BaseDelayUs || cfg.Motion.BaseDelayUs > cfg.Motion.MaxDelayUs {
		return nil, fmt.Errorf("motion delays must satisfy min <= base <= max, got %d/%d/%d",
			cfg.Motion.MinDelayUs, cfg.Motion.BaseDelayUs, cfg.Motion.MaxDelayUs)
	}
	if cfg.Motion.HomingDelayUs <= 0 {
		cfg.Motion.HomingDelayUs = 2000
	}
	if cfg.Motion.SetupDelayMs <= 0 {
		cfg.Motion.SetupDelayMs = 1
	}
	if cfg.Motion.DebounceMs <= 0 {
		cfg.Motion.DebounceMs = 50
	}
	if cfg.Motion.IdlePollMs <= 0 {
		cfg.Motion.IdlePollMs = 5
	}
	if cfg.Motion.HalfSpeedFactor <= 0 {
		cfg.Motion.HalfSpeedFactor = 2
	}
	if cfg.Motion.SaveIntervalSteps <= 0 {
		cfg.Motion.SaveIntervalSteps = 1000
	}
	if cfg.Motion.RunCurrentPercent <= 0 {
		cfg.Motion.RunCurrentPercent = 85
	}
	if cfg.Motion.HoldingCurrentPercent <= 0 {
		cfg.Motion.HoldingCurrentPercent = 80
	}
	if cfg.Motion.SlowCurrentPercent <= 0 {
		cfg.Motion.SlowCurrentPercent = 50
	}
	for _, p := range []int{cfg.Motion.RunCurrentPercent, cfg.Motion.HoldingCurrentPercent, cfg.Motion.SlowCurrentPercent} {
		if p > 100 {
			return nil, fmt.Errorf("current percent must be <= 100, got %d", p)
		}
	}

	if cfg.Joystick.DeadZone <= 0 {
		cfg.Joystick.DeadZone = 10
	}
	if cfg.Joystick.DeadZone > 127 {
		return nil, fmt.Errorf("joystick.dead_zone must be <= 127, got %d", cfg.Joystick.DeadZone)
	}
	if cfg.Joystick.PollMs <= 0 {
		cfg.Joystick.PollMs = 10
	}
	if cfg.Joystick.DoubleTapMs <= 0 {
		cfg.Joystick.DoubleTapMs = 500
	}
	if cfg.Joystick.FixedSpeed <= 0 || cfg.Joystick.FixedSpeed > 1 {
		cfg.Joystick.FixedSpeed = 0.9
	}

	if cfg.Defaults.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.Defaults.DataDir = filepath.Join(home, "stepper_data")
	}

	return &cfg, nil
}

// BaseDelay returns the step period at full speed setting.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Motion.BaseDelayUs) * time.Microsecond
}

// MinDelay returns the fastest allowed step period.
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Motion.MinDelayUs) * time.Microsecond
}

// MaxDelay returns the slowest allowed step period.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Motion.MaxDelayUs) * time.Microsecond
}

// HomingDelay returns the fixed step period used for go-to-zero.
func (c *Config) HomingDelay() time.Duration {
	return time.Duration(c.Motion.HomingDelayUs) * time.Microsecond
}

// SetupDelay returns the direction/enable settling time.
func (c *Config) SetupDelay() time.Duration {
	return time.Duration(c.Motion.SetupDelayMs) * time.Millisecond
}

// Debounce returns the wait between cancelling a move and starting the next.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Motion.DebounceMs) * time.Millisecond
}

// IdlePoll returns the engine poll period while no motion is requested.
func (c *Config) IdlePoll() time.Duration {
	return time.Duration(c.Motion.IdlePollMs) * time.Millisecond
}

// JoystickPoll returns the joystick poll tick period.
func (c *Config) JoystickPoll() time.Duration {
	return time.Duration(c.Joystick.PollMs) * time.Millisecond
}

// DoubleTapWindow returns the max gap between two taps of the same button.
func (c *Config) DoubleTapWindow() time.Duration {
	return time.Duration(c.Joystick.DoubleTapMs) * time.Millisecond
}

// PositionFile returns the path of the persisted step counter.
func (c *Config) PositionFile() string {
	return filepath.Join(c.Defaults.DataDir, "step_position.txt")
}
