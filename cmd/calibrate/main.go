/*
calibrate logs several SHT85 sensors side by side for the calibration runs.
Each sensor sits on its own bus behind the i2c multiplexer.

	calibrate -sensor 42=/dev/i2c-22 -sensor 45=/dev/i2c-23 -sensor 59=/dev/i2c-24

Rows: date,temperature,humidity,sensor_id,serial_number
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RUBclim/crowdbike/calib"
	"github.com/RUBclim/crowdbike/sensors"
)

type sensorFlags []calib.Channel

func (s *sensorFlags) String() string { return fmt.Sprint(*s) }

func (s *sensorFlags) Set(v string) error {
	ch, err := calib.ParseChannel(v)
	if err != nil {
		return err
	}
	*s = append(*s, ch)
	return nil
}

func main() {
	var channels sensorFlags
	flag.Var(&channels, "sensor", "id=/dev/i2c-N, repeat for every sensor")
	pOut := flag.String("o", "crowdbike_calibration.csv", "csv file, appended")
	pInterval := flag.Duration("interval", time.Second, "time between rounds")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if len(channels) == 0 {
		fmt.Fprintf(os.Stderr, "no sensors given (-h for help)\n")
		os.Exit(2)
	}

	var probes []calib.Probe
	for _, ch := range channels {
		bus, err := sensors.OpenI2CBus(ch.Bus)
		if err != nil {
			logger.Fatal("open bus", zap.String("sensor", ch.ID), zap.Error(err))
		}
		defer bus.Close()
		probes = append(probes, calib.Probe{ID: ch.ID, Sensor: sensors.NewSHT85(bus)})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("logging calibration", zap.String("file", *pOut), zap.Int("sensors", len(probes)))
	err := calib.RunLogger(ctx, *pOut, *pInterval, probes, logger)
	if err != nil && ctx.Err() == nil {
		logger.Fatal("calibration logging stopped", zap.Error(err))
	}
}
