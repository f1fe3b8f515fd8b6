package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cjeanneret/PolarGo/internal/config"
	"github.com/cjeanneret/PolarGo/internal/debug"
	"github.com/cjeanneret/PolarGo/internal/hw/driver"
	"github.com/cjeanneret/PolarGo/internal/hw/gpio"
	"github.com/cjeanneret/PolarGo/internal/input"
	"github.com/cjeanneret/PolarGo/internal/motion"
	"github.com/cjeanneret/PolarGo/internal/store"
	"github.com/cjeanneret/PolarGo/internal/units"
)

func main() {
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	mockGPIO := flag.Bool("mock", false, "force mock GPIO driver (for development on PC)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	mock := cfg.Defaults.MockGPIO || *mockGPIO
	debug.Value("Mock GPIO", mock)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(mock)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize stepper driver board
	debug.Step(2, "Initializing stepper driver board")
	board, err := driver.NewBoard(gpioDriver, driver.Config{
		DirPin:           cfg.Stepper.DirPin,
		StepPin:          cfg.Stepper.StepPin,
		EnablePin:        cfg.Stepper.EnablePin,
		ModePins:         cfg.Stepper.ModePins,
		PwmPin:           cfg.Stepper.PwmPin,
		EnableActiveHigh: cfg.Stepper.EnableActiveHigh,
	})
	if err != nil {
		log.Fatalf("init stepper board failed: %v", err)
	}
	debug.PrintStruct("Stepper config", cfg.Stepper)

	// Open position store
	debug.Step(3, "Opening position store")
	st, err := store.New(cfg.PositionFile())
	if err != nil {
		log.Fatalf("open position store failed: %v", err)
	}
	debug.Value("Position file", st.Path())

	conv := units.NewConverter(units.Mechanism{
		StepsPerRev:       cfg.Mechanism.StepsPerRev,
		Microstepping:     cfg.Mechanism.Microstepping,
		DriveReduction:    cfg.Mechanism.DriveReduction,
		LeadScrewTravelMm: cfg.Mechanism.LeadScrewTravelMm,
		GearRatio:         cfg.Mechanism.GearRatio,
	})
	debug.Value("Steps per arcsecond", conv.StepsPerArcsecond())

	// Start motion controller
	debug.Step(4, "Starting motion controller")
	ctrl := motion.New(board, st, motion.Params{
		MaxSteps:              cfg.Mechanism.MaxSteps,
		BaseDelay:             cfg.BaseDelay(),
		MinDelay:              cfg.MinDelay(),
		MaxDelay:              cfg.MaxDelay(),
		HomingDelay:           cfg.HomingDelay(),
		SetupDelay:            cfg.SetupDelay(),
		Debounce:              cfg.Debounce(),
		IdlePoll:              cfg.IdlePoll(),
		HalfSpeedFactor:       cfg.Motion.HalfSpeedFactor,
		SaveInterval:          cfg.Motion.SaveIntervalSteps,
		RunCurrentPercent:     cfg.Motion.RunCurrentPercent,
		HoldingCurrentPercent: cfg.Motion.HoldingCurrentPercent,
		SlowCurrentPercent:    cfg.Motion.SlowCurrentPercent,
	})
	ctrl.Start()
	debug.Position(ctrl.Position(), conv.FormatPosition(ctrl.Position()))

	// Start input loops
	debug.Step(5, "Starting input loops")
	poller := input.NewPoller(newJoystickReader(), ctrl, input.JoystickConfig{
		DeadZone:   cfg.Joystick.DeadZone,
		Poll:       cfg.JoystickPoll(),
		DoubleTap:  cfg.DoubleTapWindow(),
		FixedSpeed: cfg.Joystick.FixedSpeed,
	}, cancel)
	go poller.Run(ctx)

	console := input.NewConsole(ctrl, conv, os.Stdin, os.Stdout, cancel)
	go console.Run(ctx)

	<-ctx.Done()

	debug.Section("Shutdown")
	ctrl.Shutdown()
}

// newJoystickReader returns the joystick sample source. The I2C Nunchuk
// decoder plugs in here; until then the poller runs over a centered stub
// and control happens through the console.
func newJoystickReader() input.JoystickReader {
	return input.NullReader{}
}
