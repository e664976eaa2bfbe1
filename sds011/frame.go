package sds011

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFrame matches every data frame validation failure
var ErrInvalidFrame = errors.New("sds011: invalid frame")

// FrameError tells which check rejected a data frame
type FrameError struct {
	Reason string
	Frame  []byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("sds011: invalid frame (%s) % X", e.Reason, e.Frame)
}

func (e *FrameError) Is(target error) bool {
	return target == ErrInvalidFrame
}

// Measurement in µg/m³. Both fields NaN when there was no valid reading.
type Measurement struct {
	PM25 float64
	PM10 float64
}

func NaNMeasurement() Measurement {
	return Measurement{PM25: math.NaN(), PM10: math.NaN()}
}

func (m Measurement) Valid() bool {
	return !math.IsNaN(m.PM25) && !math.IsNaN(m.PM10)
}

func (m Measurement) String() string {
	return fmt.Sprintf("PM2.5= %.1fµg/m³ PM10= %.1fµg/m³", m.PM25, m.PM10)
}

// FrameChecksum is the sum of payload bytes 2..7 modulo 256
func FrameChecksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[2:8] {
		sum += b
	}
	return sum
}

/*
DecodeFrame validates one 10 byte data frame and scales the payload.
Checks header, command, tail and checksum in that order. Any failure rejects
the whole frame and the returned measurement is NaN for both fields.
*/
func DecodeFrame(frame []byte) (Measurement, error) {
	if len(frame) < FromSensorSize {
		return NaNMeasurement(), &FrameError{Reason: fmt.Sprintf("short read %v of %v bytes", len(frame), FromSensorSize), Frame: frame}
	}
	frame = frame[:FromSensorSize]
	if frame[0] != PacketStart {
		return NaNMeasurement(), &FrameError{Reason: fmt.Sprintf("header 0x%02X", frame[0]), Frame: frame}
	}
	if frame[1] != CommandIDDataReply {
		return NaNMeasurement(), &FrameError{Reason: fmt.Sprintf("command 0x%02X", frame[1]), Frame: frame}
	}
	if frame[9] != PacketStop {
		return NaNMeasurement(), &FrameError{Reason: fmt.Sprintf("tail 0x%02X", frame[9]), Frame: frame}
	}
	if sum := FrameChecksum(frame); sum != frame[8] {
		return NaNMeasurement(), &FrameError{Reason: fmt.Sprintf("checksum 0x%02X want 0x%02X", frame[8], sum), Frame: frame}
	}
	return Measurement{
		PM25: float64(int(frame[3])*256+int(frame[2])) / 10.0,
		PM10: float64(int(frame[5])*256+int(frame[4])) / 10.0,
	}, nil
}

// Fixed command frames, any device id, checksum precomputed
var (
	sleepCommand = [ToSensorSize]byte{
		0xAA, 0xB4, 0x06, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0x05, 0xAB,
	}
	wakeCommand = [ToSensorSize]byte{
		0xAA, 0xB4, 0x06, 0x01, 0x01,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0x06, 0xAB,
	}
)

// SleepCommand returns a copy of the sleep frame
func SleepCommand() []byte {
	b := sleepCommand
	return b[:]
}

// WakeCommand returns a copy of the wake frame
func WakeCommand() []byte {
	b := wakeCommand
	return b[:]
}
