/*
Package sim models a single SDS011 sensor.

It is important to notice that the simulated sensor receives all messages "ok".
It only acts as a faulty sensor (or comm link) when Faults say so.
*/
package sim

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/RUBclim/crowdbike/sds011"
)

// Signal works as floats, registers report 10x
type Signal struct {
	Offset    float64
	Amplitude float64       //offset-amplitude .. offset+amplitude
	Period    time.Duration //sine period, zero for flat
	Phase     time.Duration
	Noise     float64 //in range [value-noise, value+noise]
}

func (s Signal) At(t time.Time, rnd *rand.Rand) float64 {
	wave := 0.0
	if 0 < s.Period {
		frac := math.Mod(float64(t.Add(s.Phase).UnixNano()), float64(s.Period)) / float64(s.Period)
		wave = math.Sin(2*math.Pi*frac) * s.Amplitude
	}
	noise := 0.0
	if 0 < s.Noise && rnd != nil {
		noise = (rnd.Float64()*2 - 1) * s.Noise
	}
	return math.Max(0, s.Offset+wave+noise)
}

// Faults simulate communication conditions
type Faults struct {
	InvalidCRC          bool //wrong checksum, easy test
	IncompletePackets   bool //tail bytes never arrive
	DirectionChangeNull bool //RS485 artefact, null character around packets
}

// Apply trashes the signal only if needed
func (f Faults) Apply(arr []byte) []byte {
	arr = append([]byte(nil), arr...)
	if f.InvalidCRC {
		arr[len(arr)-2]++
	}
	if f.DirectionChangeNull {
		arr = append([]byte{0}, arr...)
		arr = append(arr, 0)
	}
	if f.IncompletePackets {
		arr = arr[0 : len(arr)-4]
	}
	return arr
}

// Memory is what the sensor keeps over power cycles
type Memory struct {
	ID           uint16
	VersionYear  byte
	VersionMonth byte
	VersionDay   byte
	Period       byte
	QueryMode    bool
}

type Stats struct {
	RxPackets    int
	TxPackets    int
	BurnEvents   int //persistent saves, memory wears out
	Measurements int
}

type Sensor struct {
	Small  Signal
	Large  Signal
	Faults Faults

	mu      sync.Mutex
	mem     Memory
	working bool
	stats   Stats
	rx      []byte
	rnd     *rand.Rand
}

func New(id uint16) *Sensor {
	return &Sensor{
		Small:   Signal{Offset: 8, Amplitude: 2, Period: time.Minute, Noise: 0.5},
		Large:   Signal{Offset: 14, Amplitude: 3, Period: time.Minute, Noise: 1},
		mem:     Memory{ID: id, VersionYear: 19, VersionMonth: 9, VersionDay: 28},
		working: true,
		rnd:     rand.New(rand.NewSource(int64(id))),
	}
}

func (s *Sensor) Working() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

func (s *Sensor) Memory() Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem
}

func (s *Sensor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// React answers one command packet addressed to this sensor
func (s *Sensor) React(pack sds011.Packet) (sds011.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.react(pack)
}

func (s *Sensor) react(pack sds011.Packet) (sds011.Packet, error) {
	if !pack.Valid {
		return sds011.Packet{}, fmt.Errorf("invalid packet")
	}
	if pack.CommandID != sds011.CommandIDCmd {
		return sds011.Packet{}, fmt.Errorf("simulator understands only command id 0x%X", sds011.CommandIDCmd)
	}
	if !pack.MatchToID(s.mem.ID) {
		return sds011.Packet{}, fmt.Errorf("packet id %X, no match to simulator %X", pack.DeviceID, s.mem.ID)
	}
	s.stats.RxPackets++

	write := pack.IsWrite()
	id := s.mem.ID
	switch pack.Data[0] {
	case sds011.FunReportingMode:
		if write {
			s.mem.QueryMode, _ = pack.QueryMode()
			s.stats.BurnEvents++
		}
		return sds011.NewPacketSetQueryModeReply(id, write, s.mem.QueryMode), nil
	case sds011.FunQueryData:
		small, large := s.sample(time.Now())
		return sds011.NewPacketDataReply(id, small, large), nil
	case sds011.FunSetID:
		if write {
			newID, err := pack.NewID()
			if err != nil {
				return sds011.Packet{}, err
			}
			s.mem.ID = newID
			s.stats.BurnEvents++
		}
		return sds011.NewPacketSetIDReply(s.mem.ID), nil
	case sds011.FunSleepWork:
		if write {
			s.working, _ = pack.WorkMode()
		}
		return sds011.NewPacketSetWorkModeReply(id, write, s.working), nil
	case sds011.FunPeriod:
		if write {
			per, err := pack.Period()
			if err != nil {
				return sds011.Packet{}, err
			}
			if 30 < per {
				return sds011.Packet{}, fmt.Errorf("invalid period %v", per)
			}
			s.mem.Period = per
			s.stats.BurnEvents++
		}
		return sds011.NewPacketSetPeriodReply(id, write, s.mem.Period), nil
	case sds011.FunVersion:
		return sds011.NewPacketQueryVersionReply(id, s.mem.VersionYear, s.mem.VersionMonth, s.mem.VersionDay), nil
	}
	return sds011.Packet{}, fmt.Errorf("invalid function %v", pack.Data[0])
}

func (s *Sensor) sample(t time.Time) (uint16, uint16) {
	s.stats.Measurements++
	return uint16(math.Round(s.Small.At(t, s.rnd) * 10)), uint16(math.Round(s.Large.At(t, s.rnd) * 10))
}

/*
Feed takes raw bytes from the line. Complete command frames are reacted to and
their replies returned in order. Leftover bytes wait for the next call.
*/
func (s *Sensor) Feed(b []byte) ([][]byte, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replies [][]byte
	var errs []error
	s.rx = append(s.rx, b...)
	for {
		i := bytes.IndexByte(s.rx, sds011.PacketStart)
		if i < 0 {
			s.rx = s.rx[:0]
			break
		}
		s.rx = s.rx[i:]
		if len(s.rx) < sds011.ToSensorSize {
			break
		}
		var pack sds011.Packet
		if err := pack.FromBytes(s.rx[:sds011.ToSensorSize]); err != nil {
			errs = append(errs, err)
			s.rx = s.rx[1:] //resync from next start byte
			continue
		}
		s.rx = s.rx[sds011.ToSensorSize:]
		resp, err := s.react(pack)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		replies = append(replies, s.Faults.Apply(resp.ToBytes()))
		s.stats.TxPackets++
	}
	return replies, errs
}

// DataFrame is the spontaneous active mode report. Nothing while sleeping or in query mode.
func (s *Sensor) DataFrame(t time.Time) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.working || s.mem.QueryMode {
		return nil, false
	}
	small, large := s.sample(t)
	pack := sds011.NewPacketDataReply(s.mem.ID, small, large)
	s.stats.TxPackets++
	return s.Faults.Apply(pack.ToBytes()), true
}

// Opener gives in-memory connections: each one carries the current data frame and swallows commands
func (s *Sensor) Opener() sds011.Opener {
	return func() (io.ReadWriteCloser, error) {
		c := &conn{sensor: s}
		if frame, ok := s.DataFrame(time.Now()); ok {
			c.rx.Write(frame)
		}
		return c, nil
	}
}

type conn struct {
	sensor *Sensor
	rx     bytes.Buffer
	closed bool
}

func (c *conn) Read(b []byte) (int, error) {
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	return c.rx.Read(b)
}

func (c *conn) Write(b []byte) (int, error) {
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	replies, _ := c.sensor.Feed(b)
	for _, r := range replies {
		c.rx.Write(r)
	}
	return len(b), nil
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}
