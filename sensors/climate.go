package sensors

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"tinygo.org/x/drivers"
)

const (
	DefaultClimateInterval = 200 * time.Millisecond
	// DefaultClimateHold keeps the last good value over short driver hiccups
	DefaultClimateHold = 2 * time.Second
)

// ClimateSensor reads air temperature in °C and relative humidity in %
type ClimateSensor interface {
	Read(ctx context.Context) (temperature float64, humidity float64, err error)
}

// DHT22 reads the kernel dht11 IIO driver (dtoverlay=dht11 handles DHT22 too)
type DHT22 struct {
	Dir string //like /sys/bus/iio/devices/iio:device0
}

func readMilli(file string) (float64, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "read %v", file)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return math.NaN(), errors.Wrapf(ErrNoValue, "empty %v", file)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "parse %v", file)
	}
	return v / 1000, nil
}

func (d DHT22) Read(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return math.NaN(), math.NaN(), err
	}
	t, err := readMilli(filepath.Join(d.Dir, "in_temp_input"))
	if err != nil {
		return math.NaN(), math.NaN(), errors.Wrap(err, "DHT22 temperature")
	}
	h, err := readMilli(filepath.Join(d.Dir, "in_humidityrelative_input"))
	if err != nil {
		return math.NaN(), math.NaN(), errors.Wrap(err, "DHT22 humidity")
	}
	return t, h, nil
}

const (
	SHT85Address = 0x44
	cmdMeasure   = 0x2400 //single shot, high repeatability, no clock stretching
	cmdSerial    = 0x3780
	// measureWait covers the 15.5 ms max measurement duration
	measureWait = 16 * time.Millisecond
)

// SHT85 is a Sensirion SHT3x family part with fixed address 0x44
type SHT85 struct {
	bus drivers.I2C
	mu  sync.Mutex
}

func NewSHT85(bus drivers.I2C) *SHT85 {
	return &SHT85{bus: bus}
}

// readWords sends cmd, waits and reads two crc protected 16 bit words
func (s *SHT85) readWords(ctx context.Context, cmd uint16, wait time.Duration) (uint16, uint16, error) {
	if err := s.bus.Tx(SHT85Address, []byte{byte(cmd >> 8), byte(cmd)}, nil); err != nil {
		return 0, 0, errors.Wrapf(err, "command 0x%04X", cmd)
	}
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case <-time.After(wait):
	}
	buf := make([]byte, 6)
	if err := s.bus.Tx(SHT85Address, nil, buf); err != nil {
		return 0, 0, errors.Wrapf(err, "read 0x%04X", cmd)
	}
	if crc8(buf[0:2]) != buf[2] || crc8(buf[3:5]) != buf[5] {
		return 0, 0, errors.Errorf("crc mismatch % X", buf)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), uint16(buf[3])<<8 | uint16(buf[4]), nil
}

// Read is a single shot measurement. Bus and crc errors give NaN.
func (s *SHT85) Read(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return math.NaN(), math.NaN(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rawT, rawH, err := s.readWords(ctx, cmdMeasure, measureWait)
	if err != nil {
		return math.NaN(), math.NaN(), errors.Wrap(err, "SHT85 measurement")
	}
	return -45 + 175*float64(rawT)/65535, 100 * float64(rawH) / 65535, nil
}

// crc8 as in the Sensirion datasheets: polynomial 0x31, init 0xFF
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// SerialNumber is the 32 bit unique id of the chip
func (s *SHT85) SerialNumber() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hi, lo, err := s.readWords(context.Background(), cmdSerial, time.Millisecond)
	if err != nil {
		return 0, errors.Wrap(err, "SHT85 serial number")
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

// Close releases the bus if it is closable
func (s *SHT85) Close() error {
	if c, ok := s.bus.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type Climate struct {
	Temperature float64
	Humidity    float64
	At          time.Time
	Failure     Failure
	Err         error
}

// NaNClimate is the snapshot before the first good reading
func NaNClimate(at time.Time, err error) Climate {
	return Climate{Temperature: math.NaN(), Humidity: math.NaN(), At: at, Failure: Classify(err), Err: err}
}

type ClimateWorker struct {
	Name     string
	Interval time.Duration
	Hold     time.Duration
	Observe  func(Failure)

	sensor   ClimateSensor
	log      *zap.Logger
	latest   Latest[Climate]
	lastGood Climate
	warn     rate.Sometimes
}

func NewClimateWorker(name string, sensor ClimateSensor, log *zap.Logger) *ClimateWorker {
	return &ClimateWorker{
		Name:     name,
		Interval: DefaultClimateInterval,
		Hold:     DefaultClimateHold,
		sensor:   sensor,
		log:      log.Named("climate"),
		warn:     rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

func (w *ClimateWorker) Latest() (Climate, bool) {
	return w.latest.Load()
}

/*
Poll reads once and publishes. A failed read keeps the last good values while
they are younger than Hold, the failure kind is published anyway.
*/
func (w *ClimateWorker) Poll(ctx context.Context) Climate {
	now := time.Now()
	t, h, err := w.sensor.Read(ctx)
	if err == nil && (math.IsNaN(t) || math.IsNaN(h)) {
		err = ErrNoValue
	}
	var c Climate
	if err == nil {
		c = Climate{Temperature: t, Humidity: h, At: now}
		w.lastGood = c
	} else {
		c = NaNClimate(now, err)
		if !w.lastGood.At.IsZero() && now.Sub(w.lastGood.At) < w.Hold {
			c.Temperature, c.Humidity, c.At = w.lastGood.Temperature, w.lastGood.Humidity, w.lastGood.At
		}
		if ctx.Err() == nil {
			w.warn.Do(func() { w.log.Warn("failed reading "+w.Name+"-sensor", zap.Error(err)) })
		}
	}
	w.latest.Store(c)
	if w.Observe != nil {
		w.Observe(c.Failure)
	}
	return c
}

func (w *ClimateWorker) Run(ctx context.Context) error {
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
