package sensors

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RUBclim/crowdbike/config"
)

func TestDHT22(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in_temp_input"), []byte("23450\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in_humidityrelative_input"), []byte("51200\n"), 0o644))

	temp, hum, err := DHT22{Dir: dir}.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 23.45, temp, 1e-9)
	assert.InDelta(t, 51.2, hum, 1e-9)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "in_humidityrelative_input"), nil, 0o644))
	_, hum, err = DHT22{Dir: dir}.Read(context.Background())
	assert.Equal(t, FailureNoValue, Classify(err))
	assert.True(t, math.IsNaN(hum))

	_, _, err = DHT22{Dir: filepath.Join(dir, "gone")}.Read(context.Background())
	assert.Equal(t, FailureIO, Classify(err))
}

// fakeSHT answers like an SHT3x: measurement or serial number depending on the last command
type fakeSHT struct {
	lastCmd []byte
	addrs   []uint16
	rawT    uint16
	rawH    uint16
	serial  uint32
	fail    error
	corrupt bool
}

func word(v uint16) []byte {
	b := []byte{byte(v >> 8), byte(v)}
	return append(b, crc8(b))
}

func (f *fakeSHT) Tx(addr uint16, w, r []byte) error {
	if f.fail != nil {
		return f.fail
	}
	f.addrs = append(f.addrs, addr)
	if 0 < len(w) {
		f.lastCmd = append([]byte(nil), w...)
	}
	if len(r) < 6 {
		return nil
	}
	var resp []byte
	if len(f.lastCmd) == 2 && f.lastCmd[0] == 0x37 && f.lastCmd[1] == 0x80 {
		resp = append(word(uint16(f.serial>>16)), word(uint16(f.serial))...)
	} else {
		resp = append(word(f.rawT), word(f.rawH)...)
	}
	copy(r, resp)
	if f.corrupt {
		r[1] ^= 0xFF
	}
	return nil
}

func TestCRC8(t *testing.T) {
	// datasheet example: 0xBEEF -> 0x92
	assert.Equal(t, byte(0x92), crc8([]byte{0xBE, 0xEF}))
}

func TestSHT85(t *testing.T) {
	bus := &fakeSHT{rawT: 26214, rawH: 32768, serial: 0x0A1B2C3D}
	s := NewSHT85(bus)

	temp, hum, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25.0, temp, 0.1)
	assert.InDelta(t, 50.0, hum, 0.1)

	sn, err := s.SerialNumber()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0A1B2C3D), sn)
	assert.Contains(t, bus.addrs, uint16(SHT85Address))

	bus.corrupt = true
	temp, hum, err = s.Read(context.Background())
	assert.Error(t, err)
	assert.True(t, math.IsNaN(temp))
	assert.True(t, math.IsNaN(hum))
	bus.corrupt = false

	bus.fail = errors.New("remote I/O error")
	temp, hum, err = s.Read(context.Background())
	assert.Equal(t, FailureIO, Classify(err))
	assert.True(t, math.IsNaN(temp))
	assert.True(t, math.IsNaN(hum))
	_, err = s.SerialNumber()
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}

type deadBus struct{}

func (deadBus) Tx(addr uint16, w, r []byte) error { return errors.New("no ack") }

func TestClimateWorkerDeadSHT85(t *testing.T) {
	w := NewClimateWorker("SHT85", NewSHT85(deadBus{}), zaptest.NewLogger(t))
	c := w.Poll(context.Background())
	assert.Equal(t, FailureIO, c.Failure)
	assert.True(t, math.IsNaN(c.Temperature))
	assert.True(t, math.IsNaN(c.Humidity))
}

type scriptedClimate struct {
	results []error
	n       int
}

func (s *scriptedClimate) Read(ctx context.Context) (float64, float64, error) {
	err := s.results[s.n%len(s.results)]
	s.n++
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	return 20.5, 60.25, nil
}

func TestClimateWorkerHold(t *testing.T) {
	sensor := &scriptedClimate{results: []error{nil, errors.New("checksum"), errors.New("checksum")}}
	w := NewClimateWorker("SHT85", sensor, zaptest.NewLogger(t))
	w.Hold = time.Hour

	c := w.Poll(context.Background())
	assert.Equal(t, FailureNone, c.Failure)
	assert.Equal(t, 20.5, c.Temperature)

	c = w.Poll(context.Background())
	assert.Equal(t, FailureIO, c.Failure)
	assert.Equal(t, 20.5, c.Temperature, "held")
	c = w.Poll(context.Background())
	assert.Equal(t, 60.25, c.Humidity, "still held")

	w.Hold = 0
	c = w.Poll(context.Background()) // good again
	assert.Equal(t, FailureNone, c.Failure)
	c = w.Poll(context.Background())
	assert.True(t, math.IsNaN(c.Temperature))
	assert.True(t, math.IsNaN(c.Humidity))

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, FailureIO, latest.Failure)
}

func TestClimateWorkerNaNIsNoValue(t *testing.T) {
	w := NewClimateWorker("DHT22", nanClimate{}, zaptest.NewLogger(t))
	c := w.Poll(context.Background())
	assert.Equal(t, FailureNoValue, c.Failure)
}

type nanClimate struct{}

func (nanClimate) Read(ctx context.Context) (float64, float64, error) {
	return math.NaN(), 50, nil
}

func TestNewClimateSensor(t *testing.T) {
	s, err := NewClimateSensor(config.SensorDHT22, config.DevicesConfig{DHT22IIO: "/sys/bus/iio/devices/iio:device0"})
	require.NoError(t, err)
	assert.Equal(t, DHT22{Dir: "/sys/bus/iio/devices/iio:device0"}, s)

	_, err = NewClimateSensor("BME280", config.DevicesConfig{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
