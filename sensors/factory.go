package sensors

import (
	"fmt"

	"github.com/RUBclim/crowdbike/config"
)

// NewClimateSensor picks the driver for user.sensor_type
func NewClimateSensor(kind string, devices config.DevicesConfig) (ClimateSensor, error) {
	switch kind {
	case config.SensorDHT22:
		return DHT22{Dir: devices.DHT22IIO}, nil
	case config.SensorSHT85:
		bus, err := OpenI2CBus(devices.SHT85Bus)
		if err != nil {
			return nil, err
		}
		return NewSHT85(bus), nil
	}
	return nil, fmt.Errorf("%w: sensor type %q unknown, must be either %v or %v", config.ErrInvalid, kind, config.SensorSHT85, config.SensorDHT22)
}
