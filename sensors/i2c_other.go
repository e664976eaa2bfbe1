//go:build !linux

package sensors

import "fmt"

type I2CBus struct {
	Device string
}

func OpenI2CBus(device string) (*I2CBus, error) {
	return nil, fmt.Errorf("i2c bus %v: only supported on linux", device)
}

func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	return fmt.Errorf("i2c bus %v: only supported on linux", b.Device)
}

func (b *I2CBus) Close() error { return nil }
