package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry with the process collectors, the kit has no http endpoint so it is written to a file
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type AppMetrics struct {
	ReadingsTotal   *prometheus.CounterVec // labels: sensor=pm|climate|gps, result=ok|frame|io|novalue|disabled
	SamplesTotal    *prometheus.CounterVec // labels: fix=fix|partial|none
	RowsWritten     prometheus.Counter
	UploadsTotal    *prometheus.CounterVec // labels: result=ok|error
	Satellites      prometheus.Gauge
	Recording       prometheus.Gauge
	PMEnabled       prometheus.Gauge
	LastTemperature prometheus.Gauge
}

func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		ReadingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdbike_sensor_readings_total",
			Help: "Sensor poll results by sensor and outcome.",
		}, []string{"sensor", "result"}),
		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdbike_samples_total",
			Help: "Sampling ticks by GPS fix state.",
		}, []string{"fix"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdbike_csv_rows_written_total",
			Help: "Rows appended to the measurement log.",
		}),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdbike_uploads_total",
			Help: "Files handed to curl by outcome.",
		}, []string{"result"}),
		Satellites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdbike_gps_satellites",
			Help: "Satellites in use at the last tick.",
		}),
		Recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdbike_recording",
			Help: "1 while recording.",
		}),
		PMEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdbike_pm_enabled",
			Help: "1 while the PM sensor is switched on.",
		}),
		LastTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdbike_temperature_celsius",
			Help: "Calibrated air temperature at the last tick.",
		}),
	}
	reg.MustRegister(m.ReadingsTotal, m.SamplesTotal, m.RowsWritten, m.UploadsTotal, m.Satellites, m.Recording, m.PMEnabled, m.LastTemperature)
	return m
}

// Observer counts poll results of one sensor
func (m *AppMetrics) Observer(sensor string) func(result string) {
	return func(result string) {
		m.ReadingsTotal.WithLabelValues(sensor, result).Inc()
	}
}

func boolGauge(g prometheus.Gauge, b bool) {
	if b {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

func (m *AppMetrics) SetRecording(b bool) { boolGauge(m.Recording, b) }
func (m *AppMetrics) SetPMEnabled(b bool) { boolGauge(m.PMEnabled, b) }

// WriteTextfile writes atomically for the node exporter textfile collector. Empty path is a no-op.
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, reg)
}
