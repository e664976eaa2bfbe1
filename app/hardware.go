package app

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RUBclim/crowdbike/config"
	"github.com/RUBclim/crowdbike/console"
	"github.com/RUBclim/crowdbike/metrics"
	"github.com/RUBclim/crowdbike/netinfo"
	"github.com/RUBclim/crowdbike/sds011"
	"github.com/RUBclim/crowdbike/sensors"
	"github.com/RUBclim/crowdbike/upload"
)

/*
NewHardware opens the real kit: GPS on its UART, the configured climate
sensor and the SDS011 on its USB adapter. display may be nil for headless runs.
The returned closer releases the climate sensor bus.
*/
func NewHardware(cfg *config.Config, log *zap.Logger, reg *prometheus.Registry, display io.Writer) (Deps, func() error, error) {
	noop := func() error { return nil }
	climate, err := sensors.NewClimateSensor(cfg.User.SensorType, cfg.Devices)
	if err != nil {
		return Deps{}, noop, err
	}
	log.Info("using climate sensor", zap.String("type", cfg.User.SensorType))

	closer := noop
	if c, ok := climate.(io.Closer); ok {
		closer = c.Close
	}

	m := metrics.NewAppMetrics(reg)
	gps := sensors.NewGPSWorker(cfg.Devices.GPSPort, log)
	gps.Observe = observer(m, "gps")
	climateWorker := sensors.NewClimateWorker(cfg.User.SensorType, climate, log)
	climateWorker.Observe = observer(m, "climate")
	pm := sensors.NewPMWorker(sds011.NewPort(cfg.Devices.PMPort), log)
	pm.Observe = observer(m, "pm")

	deps := Deps{
		GPS:      gps,
		Climate:  climateWorker,
		PM:       pm,
		Uploader: upload.New(cfg.User.LogfilePath, cfg.Cloud, log),
		Metrics:  m,
		Registry: reg,
		MAC:      netinfo.MACAddress(),
		Log:      log,
	}
	if display != nil {
		deps.Display = console.NewDisplay(display, cfg.User.BikeNr, cfg.User.StudentName, netinfo.LocalIP())
	}
	return deps, closer, nil
}

func observer(m *metrics.AppMetrics, sensor string) func(sensors.Failure) {
	count := m.Observer(sensor)
	return func(f sensors.Failure) { count(f.String()) }
}
