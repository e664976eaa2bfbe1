package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RUBclim/crowdbike/config"
	"github.com/RUBclim/crowdbike/console"
	"github.com/RUBclim/crowdbike/metrics"
	"github.com/RUBclim/crowdbike/record"
	"github.com/RUBclim/crowdbike/sensors"
	"github.com/RUBclim/crowdbike/upload"
)

// Worker polls one sensor and keeps the latest snapshot
type Worker[T any] interface {
	Run(ctx context.Context) error
	Latest() (T, bool)
}

type Deps struct {
	GPS      Worker[sensors.Position]
	Climate  Worker[sensors.Climate]
	PM       *sensors.PMWorker
	Uploader *upload.Uploader
	Display  *console.Display //nil when headless
	Metrics  *metrics.AppMetrics
	Registry prometheus.Gatherer
	MAC      string
	Log      *zap.Logger
}

/*
Station is the main loop of the kit. Workers write their mailboxes, the tick
reads them, builds a sample, shows it and appends it to the csv log.
Commands and ticks run on the same goroutine.
*/
type Station struct {
	SamplingRate time.Duration

	cfg        *config.Config
	deps       Deps
	log        *zap.Logger
	builder    record.Builder
	csv        *record.Log
	counter    int
	recorded   int
	lastSample record.Sample

	recording bool
	pmEnabled bool
	pmCancel  context.CancelFunc
	pmDone    chan struct{}
	message   string
}

func New(cfg *config.Config, cal *config.Calibration, deps Deps, started time.Time) *Station {
	return &Station{
		SamplingRate: time.Duration(cfg.User.SamplingRate) * time.Second,
		cfg:          cfg,
		deps:         deps,
		log:          deps.Log,
		builder: record.Builder{
			ID:                     cfg.User.BikeNr,
			MAC:                    deps.MAC,
			Temperature:            cal.Temperature(),
			Humidity:               cal.Humidity(),
			FixThreshold:           cfg.User.FixThreshold,
			PMHumidityCompensation: cfg.User.PMHumidityCompensation,
		},
		csv:       record.NewLog(cfg.User.LogfilePath, cfg.User.BikeNr, cfg.User.StudentName, started),
		pmEnabled: cfg.User.PMSensor,
	}
}

func (s *Station) LogPath() string  { return s.csv.Path }
func (s *Station) Recording() bool  { return s.recording }
func (s *Station) PMEnabled() bool  { return s.pmEnabled }
func (s *Station) RowsWritten() int { return s.recorded }
func (s *Station) Message() string  { return s.message }

/*
Run starts the workers and ticks until ctx is done or CmdExit arrives.
Recording is on from the start like the kit always did. cmds may be nil.
*/
func (s *Station) Run(ctx context.Context, cmds <-chan console.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.deps.GPS.Run(gctx) })
	group.Go(func() error { return s.deps.Climate.Run(gctx) })

	if s.pmEnabled {
		s.startPM(gctx)
	} else {
		if err := s.deps.PM.Sleep(gctx); err != nil {
			s.log.Warn("could not set PM sensor to sleep mode (startup)", zap.Error(err))
		}
		s.deps.PM.Disable()
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetPMEnabled(s.pmEnabled)
	}
	s.record()

	ticker := time.NewTicker(s.SamplingRate)
	defer ticker.Stop()
	s.Tick()
loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case <-ticker.C:
			s.Tick()
		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			if s.Handle(gctx, cmd) {
				break loop
			}
			s.render()
		}
	}
	s.log.Info("exiting program")
	s.stopPM()
	cancel()
	return group.Wait()
}

func (s *Station) startPM(ctx context.Context) {
	pmCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.pmCancel, s.pmDone = cancel, done
	go func() {
		defer close(done)
		s.deps.PM.Run(pmCtx)
	}()
}

func (s *Station) stopPM() {
	if s.pmCancel == nil {
		return
	}
	s.pmCancel()
	<-s.pmDone
	s.pmCancel, s.pmDone = nil, nil
}

func (s *Station) record() {
	s.recording = true
	if err := s.csv.Start(); err != nil {
		s.log.Error("could not create measurement log", zap.String("file", s.csv.Path), zap.Error(err))
		s.message = err.Error()
	}
	s.log.Info("recording started", zap.String("file", s.csv.Path))
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetRecording(true)
	}
}

// Handle runs one user command, true means exit
func (s *Station) Handle(ctx context.Context, cmd console.Command) bool {
	s.message = ""
	switch cmd {
	case console.CmdRecord:
		if !s.recording {
			s.record()
		}
	case console.CmdStop:
		if s.recording {
			s.recording = false
			s.log.Info("recording stopped")
			if s.deps.Metrics != nil {
				s.deps.Metrics.SetRecording(false)
			}
		}
	case console.CmdTogglePM:
		s.SetPM(ctx, !s.pmEnabled)
	case console.CmdUpload:
		s.Upload(ctx)
	case console.CmdExit:
		return true
	}
	return false
}

/*
SetPM switches the dust sensor. On: wake it and poll again, a failed wake
leaves it off. Off: stop polling first, then send it to sleep. Serial
failures are logged and shown.
*/
func (s *Station) SetPM(ctx context.Context, on bool) {
	if on == s.pmEnabled {
		return
	}
	if on {
		if err := s.deps.PM.Wake(ctx); err != nil {
			s.log.Warn("failed waking the PM sensor", zap.Error(err))
			s.message = "PM sensor: " + err.Error()
			return
		}
		s.setPMEnabled(true)
		s.startPM(ctx)
		return
	}
	s.setPMEnabled(false)
	s.stopPM()
	if err := s.deps.PM.Sleep(ctx); err != nil {
		s.log.Warn("failed setting the PM to sleep mode", zap.Error(err))
		s.message = "PM sensor: " + err.Error()
	}
	s.deps.PM.Disable()
}

func (s *Station) setPMEnabled(on bool) {
	s.pmEnabled = on
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetPMEnabled(on)
	}
}

// Upload is refused while recording, the current file is still growing
func (s *Station) Upload(ctx context.Context) []upload.Result {
	if s.recording {
		s.message = "stop recording before uploading"
		return nil
	}
	if s.deps.Uploader == nil {
		s.message = "upload not configured"
		return nil
	}
	results, err := s.deps.Uploader.Upload(ctx, func(r upload.Result) {
		if s.deps.Metrics != nil {
			if r.OK() {
				s.deps.Metrics.UploadsTotal.WithLabelValues("ok").Inc()
			} else {
				s.deps.Metrics.UploadsTotal.WithLabelValues("error").Inc()
			}
		}
		if s.deps.Display != nil {
			if r.OK() {
				s.deps.Display.Notice("uploaded: %v", r.File)
			} else {
				s.deps.Display.Error("upload failed: %v", r.Err)
			}
		}
	})
	switch {
	case err != nil:
		s.message = "upload: " + err.Error()
	case len(results) == 0:
		s.message = s.deps.Uploader.NothingToDo()
	default:
		failed := 0
		for _, r := range results {
			if !r.OK() {
				failed++
			}
		}
		s.message = fmt.Sprintf("uploaded %d of %d files", len(results)-failed, len(results))
	}
	return results
}

// Tick takes one sample from the latest snapshots
func (s *Station) Tick() record.Sample {
	now := time.Now()
	s.counter++

	pos, ok := s.deps.GPS.Latest()
	if !ok {
		pos = sensors.NaNPosition(now, sensors.ErrNoValue)
	}
	clim, ok := s.deps.Climate.Latest()
	if !ok {
		clim = sensors.NaNClimate(now, sensors.ErrNoValue)
	}
	pm, ok := s.deps.PM.Latest()
	if !ok {
		pm = sensors.DisabledPMReading(now)
	}

	sample := s.builder.Build(s.counter, now, pos, clim, pm, s.pmEnabled)
	written, err := s.csv.Record(s.recording, sample)
	if err != nil {
		s.log.Error("failed writing measurement log", zap.Error(err))
	}
	if written {
		s.recorded++
	}
	s.observe(sample, pos, written)
	s.lastSample = sample
	s.render()
	return sample
}

func (s *Station) observe(sample record.Sample, pos sensors.Position, written bool) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	m.SamplesTotal.WithLabelValues(sample.Fix.String()).Inc()
	if written {
		m.RowsWritten.Inc()
	}
	m.Satellites.Set(float64(pos.Satellites))
	m.LastTemperature.Set(sample.Temperature)
	if s.deps.Registry != nil {
		if err := metrics.WriteTextfile(s.deps.Registry, s.cfg.Metrics.Textfile); err != nil {
			s.log.Warn("failed writing metrics textfile", zap.Error(err))
		}
	}
}

// render redraws the last sample, also after commands
func (s *Station) render() {
	if s.deps.Display == nil {
		return
	}
	s.deps.Display.Render(s.lastSample, console.Status{Recording: s.recording, PMEnabled: s.pmEnabled, Message: s.message})
}
