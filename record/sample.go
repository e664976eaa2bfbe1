package record

import (
	"math"
	"time"

	"github.com/RUBclim/crowdbike/calib"
	"github.com/RUBclim/crowdbike/sensors"
)

type FixLevel int

const (
	NoFix      FixLevel = iota //red
	PartialFix                 //orange
	Fix                        //green
)

const DefaultFixThreshold = 2

func (f FixLevel) String() string {
	switch f {
	case Fix:
		return "fix"
	case PartialFix:
		return "partial"
	}
	return "none"
}

/*
FixState rates the satellite count. More than threshold satellites is a fix,
exactly threshold is partial. Threshold below 1 falls back to the default, so
one satellite is never a fix.
*/
func FixState(satellites int, threshold int) (FixLevel, bool) {
	if threshold < 1 {
		threshold = DefaultFixThreshold
	}
	switch {
	case threshold < satellites:
		return Fix, true
	case satellites == threshold:
		return PartialFix, false
	}
	return NoFix, false
}

// Sample is one tick, one csv row
type Sample struct {
	ID             string
	Record         int
	RaspberryTime  time.Time
	GPSTime        string
	Altitude       float64
	Latitude       float64
	Longitude      float64
	Speed          float64 //km/h
	Temperature    float64
	TemperatureRaw float64
	Humidity       float64
	HumidityRaw    float64
	VapourPressure float64
	PM10           float64
	PM25           float64
	MAC            string

	Fix       FixLevel
	HasFix    bool
	PMEnabled bool
}

type Builder struct {
	ID                     string
	MAC                    string
	Temperature            calib.Linear
	Humidity               calib.Linear
	FixThreshold           int
	PMHumidityCompensation bool
}

// Build applies calibration and rounding to the latest snapshots
func (b Builder) Build(counter int, now time.Time, pos sensors.Position, clim sensors.Climate, pm sensors.PMReading, pmEnabled bool) Sample {
	s := Sample{
		ID:             b.ID,
		Record:         counter,
		RaspberryTime:  now.UTC(),
		GPSTime:        pos.TimeString(),
		Altitude:       pos.Altitude,
		Latitude:       pos.Latitude,
		Longitude:      pos.Longitude,
		Speed:          pos.SpeedKmh(),
		TemperatureRaw: calib.Round(clim.Temperature, 5),
		HumidityRaw:    calib.Round(clim.Humidity, 5),
		Temperature:    calib.Round(b.Temperature.Apply(clim.Temperature), 3),
		Humidity:       calib.Round(b.Humidity.Apply(clim.Humidity), 3),
		PM10:           math.NaN(),
		PM25:           math.NaN(),
		MAC:            b.MAC,
		PMEnabled:      pmEnabled,
	}
	s.VapourPressure = calib.Round(calib.VapourPressure(s.Humidity, calib.SatVapourPressure(s.Temperature)), 5)
	s.Fix, s.HasFix = FixState(pos.Satellites, b.FixThreshold)

	if pmEnabled {
		m := pm.Measurement
		if b.PMHumidityCompensation && m.Valid() {
			m = m.Normalize(s.Humidity)
		}
		s.PM10, s.PM25 = m.PM10, m.PM25
	}
	return s
}
