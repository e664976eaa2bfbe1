/*
crowdbike runs the sensing kit: GPS, air temperature and humidity and the
optional SDS011 dust sensor, logged to csv while riding.

	crowdbike init     write default config into ~/.config/crowdbike
	crowdbike run      live display, keys r s p u q
	crowdbike upload   push csv files to the cloud share
	crowdbike ports    list serial ports
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/RUBclim/crowdbike/app"
	"github.com/RUBclim/crowdbike/config"
	"github.com/RUBclim/crowdbike/console"
	"github.com/RUBclim/crowdbike/logging"
	"github.com/RUBclim/crowdbike/metrics"
	"github.com/RUBclim/crowdbike/sds011"
	"github.com/RUBclim/crowdbike/upload"
)

var version = "dev"

type options struct {
	configDir string
	logfile   string
	loglevel  string
	headless  bool
	set       map[string]bool //flags given on the command line
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: crowdbike [-version] {init|run|upload|ports} [flags]\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	switch cmd {
	case "-version", "--version", "-V":
		fmt.Printf("crowdbike %s\n", version)
		return
	case "-h", "--help", "help":
		usage()
		return
	}

	home, _ := os.UserHomeDir()
	var opt options
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&opt.configDir, "config", config.DefaultDir(), "directory with config.json and calibration.json")
	fs.StringVar(&opt.logfile, "logfile", filepath.Join(home, "crowdbike.log"), "file to write the logs to")
	fs.StringVar(&opt.loglevel, "loglevel", "WARNING", "DEBUG, INFO, WARNING, ERROR or CRITICAL")
	fs.BoolVar(&opt.headless, "headless", false, "no display and no keys, stop with SIGTERM")
	fs.Parse(os.Args[2:])
	opt.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { opt.set[f.Name] = true })

	var err error
	switch cmd {
	case "init":
		_, err = config.Setup(opt.configDir, os.Stdin, os.Stdout)
	case "run":
		err = run(opt)
	case "upload":
		err = uploadFiles(opt)
	case "ports":
		err = ports()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "crowdbike %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func setup(opt options) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opt.configDir)
	if err != nil {
		return nil, nil, err
	}
	applyLogFlags(cfg, opt)
	if cfg.Logging.File.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File.Filename), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	logger, err := logging.InitLogger(cfg.Logging, opt.headless)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	logger.Info("started crowdbike", zap.String("version", version), zap.String("config", opt.configDir))
	logger.Info("configuration loaded",
		zap.String("bike_nr", cfg.User.BikeNr),
		zap.String("sensor_type", cfg.User.SensorType),
		zap.Bool("pm_sensor", cfg.User.PMSensor),
		zap.Int("sampling_rate", cfg.User.SamplingRate),
		zap.String("logfile_path", cfg.User.LogfilePath))
	return cfg, logger, nil
}

// applyLogFlags lets -loglevel and -logfile override config only when given
func applyLogFlags(cfg *config.Config, opt options) {
	if opt.set["loglevel"] {
		cfg.Logging.Level = opt.loglevel
	}
	if opt.set["logfile"] {
		cfg.Logging.File.Filename = opt.logfile
	}
}

func run(opt options) error {
	cfg, logger, err := setup(opt)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cal, err := config.LoadCalibration(opt.configDir)
	if err != nil {
		return err
	}
	logger.Info("calibration loaded",
		zap.Float64("temp_cal_a1", cal.TempA1), zap.Float64("temp_cal_a0", cal.TempA0),
		zap.Float64("hum_cal_a1", cal.HumA1), zap.Float64("hum_cal_a0", cal.HumA0),
		zap.String("formula", cal.Formula))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var display io.Writer
	if !opt.headless {
		display = color.Output
	}
	reg := metrics.NewRegistry()
	deps, closeSensors, err := app.NewHardware(cfg, logger, reg, display)
	if err != nil {
		return err
	}
	defer closeSensors()

	station := app.New(cfg, cal, deps, time.Now())
	logger.Info("writing measurement logs", zap.String("file", station.LogPath()))

	var cmds <-chan console.Command
	if !opt.headless {
		var stopKeys func() error
		cmds, stopKeys, err = console.Keys(ctx, "/dev/tty")
		if err != nil {
			logger.Warn("no keyboard, running without commands", zap.Error(err))
		} else {
			defer func() {
				if err := stopKeys(); err != nil {
					logger.Warn("restoring terminal", zap.Error(err))
				}
			}()
		}
	}
	err = station.Run(ctx, cmds)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func uploadFiles(opt options) error {
	cfg, logger, err := setup(opt)
	if err != nil {
		return err
	}
	defer logger.Sync()

	u := upload.New(cfg.User.LogfilePath, cfg.Cloud, logger)
	u.Verbose = logging.ParseLevel(cfg.Logging.Level) == zapcore.DebugLevel
	failed, err := u.Report(context.Background(), os.Stdout)
	if err != nil {
		return err
	}
	if 0 < failed {
		return fmt.Errorf("%d files not uploaded", failed)
	}
	return nil
}

func ports() error {
	found, err := sds011.ListPorts()
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no serial ports found")
	}
	for _, p := range found {
		fmt.Print(p)
	}
	return nil
}
