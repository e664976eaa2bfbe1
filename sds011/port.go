/*
Port is the serial link to one sensor.

The device is opened for every single operation and closed right after. Nothing
is buffered between cycles: if alignment is lost the read fails and the next
cycle starts clean.
*/

package sds011

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hjkoskel/listserialports"
	"github.com/tarm/serial"
)

const (
	DefaultBaud    = 9600
	DefaultTimeout = 5 * time.Second
)

// Opener gives exclusive access to the sensor line until closed
type Opener func() (io.ReadWriteCloser, error)

type Port struct {
	Device string
	open   Opener
}

// NewPort uses fixed SDS011 settings: 9600 8N1
func NewPort(device string) *Port {
	return &Port{Device: device, open: SerialOpener(device, DefaultBaud, DefaultTimeout)}
}

// NewPortWithOpener is for simulators and tests
func NewPortWithOpener(device string, open Opener) *Port {
	return &Port{Device: device, open: open}
}

// SerialOpener opens a real serial device. Refuses if another process holds it.
func SerialOpener(device string, baud int, timeout time.Duration) Opener {
	return func() (io.ReadWriteCloser, error) {
		//socat ptys are not listed as in use, testing with: socat -d -d pty,raw,echo=0 pty,raw,echo=0
		if !strings.HasPrefix(device, "/dev/pts") {
			pids, _, err := listserialports.FileIsInUseByPids(device)
			if err != nil {
				return nil, fmt.Errorf("serial port %v check: %w", device, err)
			}
			if 0 < len(pids) {
				return nil, fmt.Errorf("serial port %v is in use (by PID %v)", device, pids)
			}
		}
		port, err := serial.OpenPort(&serial.Config{
			Name:        device,
			Baud:        baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("serial device %v open: %w", device, err)
		}
		return port, nil
	}
}

func (p *Port) withConn(ctx context.Context, fn func(conn io.ReadWriteCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := p.open()
	if err != nil {
		return err
	}
	//unblocks a pending read on cancel
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			conn.Close()
		}
	}()
	return fn(conn)
}

// ReadMeasurement reads one data frame. Frame problems give ErrInvalidFrame, the rest are I/O errors.
func (p *Port) ReadMeasurement(ctx context.Context) (Measurement, error) {
	m := NaNMeasurement()
	err := p.withConn(ctx, func(conn io.ReadWriteCloser) error {
		buf := make([]byte, FromSensorSize)
		n, errRead := io.ReadFull(conn, buf)
		if errRead != nil && !errors.Is(errRead, io.EOF) && !errors.Is(errRead, io.ErrUnexpectedEOF) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading %v: %w", p.Device, errRead)
		}
		var errDecode error
		m, errDecode = DecodeFrame(buf[:n])
		return errDecode
	})
	return m, err
}

func (p *Port) write(ctx context.Context, frame []byte) error {
	return p.withConn(ctx, func(conn io.ReadWriteCloser) error {
		n, err := conn.Write(frame)
		if err != nil {
			return fmt.Errorf("writing %v: %w", p.Device, err)
		}
		if n != len(frame) {
			return fmt.Errorf("short write to %v: %v of %v bytes", p.Device, n, len(frame))
		}
		return nil
	})
}

// Sleep stops the fan and laser. Sensor mode is not read back.
func (p *Port) Sleep(ctx context.Context) error {
	return p.write(ctx, SleepCommand())
}

func (p *Port) Wake(ctx context.Context) error {
	return p.write(ctx, WakeCommand())
}

// Send writes any command packet
func (p *Port) Send(ctx context.Context, pkt Packet) error {
	return p.write(ctx, pkt.ToBytes())
}

// ListPorts returns printable lines for every serial port found
func ListPorts() ([]string, error) {
	found, err := listserialports.Probe(false)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(found))
	for _, ser := range found {
		result = append(result, ser.ToPrintoutFormat())
	}
	return result, nil
}
