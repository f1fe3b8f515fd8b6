package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes YAML content to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
stepper:
  dir_pin: 13
  step_pin: 19
  enable_pin: 12
  mode_pins: [16, 17, 20]
  pwm_pin: 18
  enable_active_high: true
mechanism:
  max_steps: 1320000
  gear_ratio: 45
  lead_screw_travel_mm: 8
defaults:
  data_dir: /tmp/stepper_test
`

func TestLoad_MinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mechanism.StepsPerRev != 200 {
		t.Errorf("StepsPerRev = %d, want default 200", cfg.Mechanism.StepsPerRev)
	}
	if cfg.Mechanism.Microstepping != 4 {
		t.Errorf("Microstepping = %d, want default 4", cfg.Mechanism.Microstepping)
	}
	if cfg.Mechanism.DriveReduction != 1 {
		t.Errorf("DriveReduction = %v, want default 1", cfg.Mechanism.DriveReduction)
	}
	if cfg.Motion.BaseDelayUs != 1000 {
		t.Errorf("BaseDelayUs = %d, want default 1000", cfg.Motion.BaseDelayUs)
	}
	if cfg.Motion.MinDelayUs != 200 || cfg.Motion.MaxDelayUs != 20000 {
		t.Errorf("delay bounds = %d/%d, want 200/20000", cfg.Motion.MinDelayUs, cfg.Motion.MaxDelayUs)
	}
	if cfg.Motion.HalfSpeedFactor != 2 {
		t.Errorf("HalfSpeedFactor = %v, want default 2", cfg.Motion.HalfSpeedFactor)
	}
	if cfg.Motion.SaveIntervalSteps != 1000 {
		t.Errorf("SaveIntervalSteps = %d, want default 1000", cfg.Motion.SaveIntervalSteps)
	}
	if cfg.Motion.HoldingCurrentPercent != 80 {
		t.Errorf("HoldingCurrentPercent = %d, want default 80", cfg.Motion.HoldingCurrentPercent)
	}
	if cfg.Joystick.DeadZone != 10 {
		t.Errorf("DeadZone = %d, want default 10", cfg.Joystick.DeadZone)
	}
	if cfg.Joystick.FixedSpeed != 0.9 {
		t.Errorf("FixedSpeed = %v, want default 0.9", cfg.Joystick.FixedSpeed)
	}
}

func TestLoad_DurationAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseDelay() != 1*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 1ms", cfg.BaseDelay())
	}
	if cfg.MinDelay() != 200*time.Microsecond {
		t.Errorf("MinDelay = %v, want 200µs", cfg.MinDelay())
	}
	if cfg.HomingDelay() != 2*time.Millisecond {
		t.Errorf("HomingDelay = %v, want 2ms", cfg.HomingDelay())
	}
	if cfg.Debounce() != 50*time.Millisecond {
		t.Errorf("Debounce = %v, want 50ms", cfg.Debounce())
	}
	if cfg.IdlePoll() != 5*time.Millisecond {
		t.Errorf("IdlePoll = %v, want 5ms", cfg.IdlePoll())
	}
	if cfg.JoystickPoll() != 10*time.Millisecond {
		t.Errorf("JoystickPoll = %v, want 10ms", cfg.JoystickPoll())
	}
	if cfg.DoubleTapWindow() != 500*time.Millisecond {
		t.Errorf("DoubleTapWindow = %v, want 500ms", cfg.DoubleTapWindow())
	}
}

func TestLoad_PositionFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join("/tmp/stepper_test", "step_position.txt")
	if cfg.PositionFile() != want {
		t.Errorf("PositionFile = %q, want %q", cfg.PositionFile(), want)
	}
}

func TestLoad_MissingPinsRejected(t *testing.T) {
	content := `
stepper:
  dir_pin: 13
mechanism:
  max_steps: 1000
  gear_ratio: 45
  lead_screw_travel_mm: 8
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Error("expected error for missing step/enable pins")
	}
}

func TestLoad_MissingMaxStepsRejected(t *testing.T) {
	content := `
stepper:
  dir_pin: 13
  step_pin: 19
  enable_pin: 12
mechanism:
  gear_ratio: 45
  lead_screw_travel_mm: 8
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Error("expected error for missing max_steps")
	}
}

func TestLoad_BadDelayOrderRejected(t *testing.T) {
	content := minimalConfig + `
motion:
  base_delay_us: 100
  min_delay_us: 500
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("expected error for min_delay > base_delay")
	}
	if !strings.Contains(err.Error(), "min <= base <= max") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_ExcessiveCurrentRejected(t *testing.T) {
	content := minimalConfig + `
motion:
  run_current_percent: 150
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Error("expected error for current > 100%")
	}
}

func TestLoad_ExcessiveDeadZoneRejected(t *testing.T) {
	content := minimalConfig + `
joystick:
  dead_zone: 500
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Error("expected error for dead_zone > 127")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "stepper: [unclosed")); err == nil {
		t.Error("expected error for invalid yaml")
	}
}
