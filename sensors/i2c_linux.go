//go:build linux

package sensors

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const ioctlI2CSlave = 0x0703

// I2CBus is a /dev/i2c-N character device. Satisfies drivers.I2C.
type I2CBus struct {
	Device string
	mu     sync.Mutex
	fd     int
	addr   uint16
}

func OpenI2CBus(device string) (*I2CBus, error) {
	fd, err := unix.Open(device, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %v: %w", device, err)
	}
	return &I2CBus{Device: device, fd: fd, addr: 0xFFFF}, nil
}

// Tx writes w then reads into r, each as its own i2c message
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return fmt.Errorf("i2c bus %v closed", b.Device)
	}
	if addr != b.addr {
		if err := unix.IoctlSetInt(b.fd, ioctlI2CSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c %v select 0x%02X: %w", b.Device, addr, err)
		}
		b.addr = addr
	}
	if 0 < len(w) {
		n, err := unix.Write(b.fd, w)
		if err != nil {
			return fmt.Errorf("i2c %v write 0x%02X: %w", b.Device, addr, err)
		}
		if n != len(w) {
			return fmt.Errorf("i2c %v short write %v/%v", b.Device, n, len(w))
		}
	}
	if 0 < len(r) {
		n, err := unix.Read(b.fd, r)
		if err != nil {
			return fmt.Errorf("i2c %v read 0x%02X: %w", b.Device, addr, err)
		}
		if n != len(r) {
			return fmt.Errorf("i2c %v short read %v/%v", b.Device, n, len(r))
		}
	}
	return nil
}

func (b *I2CBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
