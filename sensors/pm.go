package sensors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RUBclim/crowdbike/sds011"
)

const DefaultPMInterval = 200 * time.Millisecond

// PMPort is what the worker needs from sds011.Port
type PMPort interface {
	ReadMeasurement(ctx context.Context) (sds011.Measurement, error)
	Sleep(ctx context.Context) error
	Wake(ctx context.Context) error
}

type PMReading struct {
	sds011.Measurement
	At      time.Time
	Failure Failure
	Err     error
}

// DisabledPMReading is published while the sensor is switched off
func DisabledPMReading(at time.Time) PMReading {
	return PMReading{Measurement: sds011.NaNMeasurement(), At: at, Failure: FailureDisabled, Err: ErrDisabled}
}

type PMWorker struct {
	Interval time.Duration
	Observe  func(Failure) //optional, called after every read

	port   PMPort
	log    *zap.Logger
	latest Latest[PMReading]
	warn   rate.Sometimes
}

func NewPMWorker(port PMPort, log *zap.Logger) *PMWorker {
	return &PMWorker{
		Interval: DefaultPMInterval,
		port:     port,
		log:      log.Named("pm"),
		warn:     rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

func (w *PMWorker) Latest() (PMReading, bool) {
	return w.latest.Load()
}

// Disable marks the mailbox disabled, the station calls this after stopping Run
func (w *PMWorker) Disable() {
	w.latest.Store(DisabledPMReading(time.Now()))
}

// Poll reads once and publishes
func (w *PMWorker) Poll(ctx context.Context) PMReading {
	m, err := w.port.ReadMeasurement(ctx)
	r := PMReading{Measurement: m, At: time.Now(), Failure: Classify(err), Err: err}
	if err != nil {
		r.Measurement = sds011.NaNMeasurement()
		if ctx.Err() == nil {
			w.warn.Do(func() { w.log.Warn("failed reading PM-sensor", zap.Error(err)) })
		}
	}
	w.latest.Store(r)
	if w.Observe != nil {
		w.Observe(r.Failure)
	}
	return r
}

// Run polls until ctx is done. Never returns an error, broken frames are just published.
func (w *PMWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *PMWorker) Sleep(ctx context.Context) error {
	if err := w.port.Sleep(ctx); err != nil {
		return err
	}
	w.log.Info("set PM sensor to sleep mode")
	return nil
}

func (w *PMWorker) Wake(ctx context.Context) error {
	if err := w.port.Wake(ctx); err != nil {
		return err
	}
	w.log.Info("set PM sensor to awake mode")
	return nil
}
