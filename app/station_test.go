package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RUBclim/crowdbike/config"
	"github.com/RUBclim/crowdbike/console"
	"github.com/RUBclim/crowdbike/metrics"
	"github.com/RUBclim/crowdbike/sds011"
	"github.com/RUBclim/crowdbike/sds011/sim"
	"github.com/RUBclim/crowdbike/sensors"
	"github.com/RUBclim/crowdbike/upload"
)

type staticWorker[T any] struct {
	v  T
	ok bool
}

func (w *staticWorker[T]) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (w *staticWorker[T]) Latest() (T, bool) { return w.v, w.ok }

func fixAt(sats int) sensors.Position {
	p := sensors.NaNPosition(time.Now(), nil)
	p.Satellites = sats
	p.Latitude, p.Longitude, p.Altitude, p.SpeedKnots = 51.44, 7.26, 112.5, 5
	p.GPSTime = time.Now().UTC()
	return p
}

type rig struct {
	cfg     *config.Config
	gps     *staticWorker[sensors.Position]
	climate *staticWorker[sensors.Climate]
	sensor  *sim.Sensor
	pm      *sensors.PMWorker
	metrics *metrics.AppMetrics
	out     *bytes.Buffer
	curl    []string
	station *Station
}

func newRig(t *testing.T, pmOn bool) *rig {
	t.Helper()
	color.NoColor = true
	log := zaptest.NewLogger(t)
	r := &rig{
		cfg: &config.Config{
			User: config.UserConfig{
				BikeNr: "07", StudentName: "Ada Lovelace", LogfilePath: t.TempDir(),
				SensorType: config.SensorSHT85, PMSensor: pmOn, SamplingRate: 1, FixThreshold: 2,
			},
			Cloud: config.CloudConfig{FolderToken: "tok", BaseURL: "https://cloud.example.org"},
		},
		gps:     &staticWorker[sensors.Position]{v: fixAt(6), ok: true},
		climate: &staticWorker[sensors.Climate]{v: sensors.Climate{Temperature: 21.5, Humidity: 40}, ok: true},
		sensor:  sim.New(0xA160),
		out:     &bytes.Buffer{},
	}
	r.pm = sensors.NewPMWorker(sds011.NewPortWithOpener("sim", r.sensor.Opener()), log)
	r.pm.Interval = time.Millisecond
	reg := prometheus.NewRegistry()
	r.metrics = metrics.NewAppMetrics(reg)

	uploader := upload.New(r.cfg.User.LogfilePath, r.cfg.Cloud, log).WithRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		r.curl = append(r.curl, args[1])
		return "", "", nil
	})
	display := console.NewDisplay(r.out, "07", "Ada Lovelace", "127.0.0.1")
	display.Clear = false

	cal := &config.Calibration{TempA1: 1, TempA0: 0.5, HumA1: 1, Formula: "linear"}
	r.station = New(r.cfg, cal, Deps{
		GPS: r.gps, Climate: r.climate, PM: r.pm, Uploader: uploader,
		Display: display, Metrics: r.metrics, Registry: reg, MAC: "b8:27:eb:00:00:01", Log: log,
	}, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	return r
}

func TestTickRecordsOnlyWithFix(t *testing.T) {
	r := newRig(t, false)
	st := r.station
	ctx := context.Background()
	assert.Equal(t, filepath.Join(r.cfg.User.LogfilePath, "07_Ada_Lovelace_2026-03-14_100000.csv"), st.LogPath())

	s := st.Tick()
	assert.Equal(t, 1, s.Record)
	assert.Equal(t, 0, st.RowsWritten(), "not recording yet")

	st.Handle(ctx, console.CmdRecord)
	require.True(t, st.Recording())
	s = st.Tick()
	assert.Equal(t, 22.0, s.Temperature)
	assert.Equal(t, 1, st.RowsWritten())

	r.gps.v = fixAt(1)
	st.Tick()
	r.gps.v = fixAt(2)
	st.Tick()
	assert.Equal(t, 1, st.RowsWritten(), "no fix, no row")

	r.gps.v = fixAt(3)
	st.Handle(ctx, console.CmdStop)
	st.Tick()
	assert.Equal(t, 1, st.RowsWritten(), "stopped")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.RowsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.SamplesTotal.WithLabelValues("partial")))
	assert.Contains(t, r.out.String(), "22.0 °C")

	content, err := os.ReadFile(st.LogPath())
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(content, []byte("\n")), "header and one row")
}

func TestTickWithoutSnapshots(t *testing.T) {
	r := newRig(t, false)
	r.gps.ok, r.climate.ok = false, false
	s := r.station.Tick()
	assert.False(t, s.HasFix)
	assert.Equal(t, "nan", s.GPSTime)
}

func TestTogglePM(t *testing.T) {
	r := newRig(t, false)
	st := r.station
	ctx := context.Background()
	require.NoError(t, r.pm.Sleep(ctx))
	require.False(t, r.sensor.Working())

	st.Handle(ctx, console.CmdTogglePM)
	assert.True(t, st.PMEnabled())
	assert.True(t, r.sensor.Working())
	require.Eventually(t, func() bool {
		reading, ok := r.pm.Latest()
		return ok && reading.Valid()
	}, time.Second, time.Millisecond)
	s := st.Tick()
	assert.False(t, math.IsNaN(s.PM25), "pm value present")

	st.Handle(ctx, console.CmdTogglePM)
	assert.False(t, st.PMEnabled())
	assert.False(t, r.sensor.Working())
	reading, _ := r.pm.Latest()
	assert.Equal(t, sensors.FailureDisabled, reading.Failure)
	s = st.Tick()
	assert.True(t, math.IsNaN(s.PM25), "NaN while off")
}

type unpluggedPM struct{}

func (unpluggedPM) ReadMeasurement(ctx context.Context) (sds011.Measurement, error) {
	return sds011.NaNMeasurement(), errors.New("no such device")
}
func (unpluggedPM) Sleep(ctx context.Context) error { return errors.New("no such device") }
func (unpluggedPM) Wake(ctx context.Context) error { return errors.New("no such device") }

func TestTogglePMWakeFailureStaysOff(t *testing.T) {
	r := newRig(t, false)
	st := r.station
	st.deps.PM = sensors.NewPMWorker(unpluggedPM{}, zaptest.NewLogger(t))
	st.deps.PM.Disable()

	st.Handle(context.Background(), console.CmdTogglePM)
	assert.False(t, st.PMEnabled())
	assert.Nil(t, st.pmCancel, "no polling without a woken sensor")
	assert.Contains(t, st.Message(), "no such device")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.metrics.PMEnabled))
	reading, _ := st.deps.PM.Latest()
	assert.Equal(t, sensors.FailureDisabled, reading.Failure)
}

func TestUploadOnlyWhenStopped(t *testing.T) {
	r := newRig(t, false)
	st := r.station
	ctx := context.Background()

	st.Handle(ctx, console.CmdRecord)
	st.Tick()
	st.Handle(ctx, console.CmdUpload)
	assert.Empty(t, r.curl)
	assert.Contains(t, st.Message(), "stop recording")

	st.Handle(ctx, console.CmdStop)
	results := st.Upload(ctx)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
	assert.Equal(t, []string{st.LogPath()}, r.curl)
	assert.FileExists(t, filepath.Join(r.cfg.User.LogfilePath, upload.ArchiveDir, filepath.Base(st.LogPath())))
	assert.Equal(t, "uploaded 1 of 1 files", st.Message())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.UploadsTotal.WithLabelValues("ok")))

	st.Upload(ctx)
	assert.Contains(t, st.Message(), "Everything up to date")
}

func TestRunSleepsDisabledPMAndExits(t *testing.T) {
	r := newRig(t, false)
	require.True(t, r.sensor.Working())
	cmds := make(chan console.Command)
	done := make(chan error)
	go func() { done <- r.station.Run(context.Background(), cmds) }()

	cmds <- console.CmdStop
	cmds <- console.CmdExit
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("station did not exit")
	}
	assert.False(t, r.sensor.Working(), "pm sensor put to sleep at start")
	assert.False(t, r.station.Recording())
	assert.Contains(t, r.out.String(), "Crowdbike 07")
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.station.Run(ctx, nil) }()

	require.Eventually(t, func() bool {
		reading, ok := r.pm.Latest()
		return ok && reading.Valid()
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("station did not stop")
	}
	assert.True(t, r.station.Recording(), "recording from the start")
}
