package sensors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultGPSDevice  = "/dev/ttyS0"
	GPSBaud           = 9600
	GPSReadTimeout    = 10 * time.Second
	DefaultGPSReopen  = time.Second
	GPSTimeFormat     = "2006-01-02 15:04:05"
	SatellitesUnknown = -1
)

// Startup commands for the MTK3339 chipset: only RMC and GGA, once per second
var gpsInitCommands = []string{
	"PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0",
	"PMTK220,1000",
}

// PMTKSentence wraps a command body into $body*CS\r\n
func PMTKSentence(body string) string {
	return fmt.Sprintf("$%s*%s\r\n", body, nmea.Checksum(body))
}

type Position struct {
	GPSTime    time.Time //zero while unknown
	Latitude   float64
	Longitude  float64
	Altitude   float64 //m above mean sea level
	SpeedKnots float64
	Satellites int
	Fix        bool
	At         time.Time
	Failure    Failure
	Err        error
}

func NaNPosition(at time.Time, err error) Position {
	return Position{
		Latitude:   math.NaN(),
		Longitude:  math.NaN(),
		Altitude:   math.NaN(),
		SpeedKnots: math.NaN(),
		Satellites: SatellitesUnknown,
		At:         at,
		Failure:    Classify(err),
		Err:        err,
	}
}

// TimeString is UTC or "nan"
func (p Position) TimeString() string {
	if p.GPSTime.IsZero() {
		return "nan"
	}
	return p.GPSTime.UTC().Format(GPSTimeFormat)
}

// SpeedKmh rounded like the csv column
func (p Position) SpeedKmh() float64 {
	return math.Round(p.SpeedKnots*1.852*100) / 100
}

type GPSWorker struct {
	ReopenDelay time.Duration
	Observe     func(Failure)

	open   func() (io.ReadWriteCloser, error)
	log    *zap.Logger
	latest Latest[Position]
	state  Position
	date   nmea.Date
	warn   rate.Sometimes
}

// NewGPSWorker reads the Adafruit Ultimate GPS on a UART
func NewGPSWorker(device string, log *zap.Logger) *GPSWorker {
	return NewGPSWorkerWithOpener(func() (io.ReadWriteCloser, error) {
		port, err := serial.OpenPort(&serial.Config{
			Name:        device,
			Baud:        GPSBaud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: GPSReadTimeout,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open GPS port %v", device)
		}
		return port, nil
	}, log)
}

func NewGPSWorkerWithOpener(open func() (io.ReadWriteCloser, error), log *zap.Logger) *GPSWorker {
	return &GPSWorker{
		ReopenDelay: DefaultGPSReopen,
		open:        open,
		log:         log.Named("gps"),
		state:       NaNPosition(time.Time{}, nil),
		warn:        rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

func (w *GPSWorker) Latest() (Position, bool) {
	return w.latest.Load()
}

func (w *GPSWorker) publish(p Position) {
	w.latest.Store(p)
	if w.Observe != nil {
		w.Observe(p.Failure)
	}
}

// Run keeps the port open and reads sentences until ctx is done. A broken link is reopened.
func (w *GPSWorker) Run(ctx context.Context) error {
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.warn.Do(func() { w.log.Warn("failed reading GPS", zap.Error(err)) })
		w.state = NaNPosition(time.Time{}, nil)
		w.publish(NaNPosition(time.Now(), err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.ReopenDelay):
		}
	}
}

func (w *GPSWorker) session(ctx context.Context) error {
	conn, err := w.open()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			conn.Close()
		}
		w.log.Info("closed GPS UART port")
	}()

	for _, cmd := range gpsInitCommands {
		if _, err := io.WriteString(conn, PMTKSentence(cmd)); err != nil {
			return errors.Wrapf(err, "send %v", cmd)
		}
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if err := w.Handle(scanner.Text()); err != nil {
			w.log.Debug("skipped sentence", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "GPS read")
	}
	return errors.Wrap(ErrNoValue, "GPS stream ended")
}

/*
Handle parses one NMEA line and publishes the updated position.
Only RMC and GGA change the state, other sentences are ignored.
*/
func (w *GPSWorker) Handle(line string) error {
	s, err := nmea.Parse(line)
	if err != nil {
		return err
	}
	switch m := s.(type) {
	case nmea.RMC:
		if m.Date.Valid {
			w.date = m.Date
		}
		if m.Validity != nmea.ValidRMC {
			w.state.Fix = false
			w.state.Latitude, w.state.Longitude, w.state.SpeedKnots = math.NaN(), math.NaN(), math.NaN()
			break
		}
		w.state.Fix = true
		w.state.Latitude, w.state.Longitude = m.Latitude, m.Longitude
		w.state.SpeedKnots = m.Speed
		w.setTime(m.Time)
	case nmea.GGA:
		w.state.Satellites = int(m.NumSatellites)
		if m.FixQuality == nmea.Invalid {
			w.state.Fix = false
			w.state.Altitude = math.NaN()
			break
		}
		w.state.Fix = true
		w.state.Latitude, w.state.Longitude = m.Latitude, m.Longitude
		w.state.Altitude = m.Altitude
		w.setTime(m.Time)
	default:
		return nil
	}
	p := w.state
	p.At = time.Now()
	p.Failure, p.Err = FailureNone, nil
	w.publish(p)
	return nil
}

func (w *GPSWorker) setTime(t nmea.Time) {
	if !t.Valid || !w.date.Valid {
		return
	}
	w.state.GPSTime = time.Date(2000+w.date.YY, time.Month(w.date.MM), w.date.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
