/*
Empirical humidity compensation for optical PM readings.
High relative humidity makes particles swell and the sensor over-reads.
These are curve fits, not lab verified.
*/

package sds011

import "math"

/*
Fits from
https://github.com/piotrkpaul/esp8266-sds011
*/
func NormalizePM25(pm25 float64, humidity float64) float64 {
	return pm25 / (1.0 + 0.48756*math.Pow(humidity/100.0, 8.60068))
}

func NormalizePM10(pm10 float64, humidity float64) float64 {
	return pm10 / (1.0 + 0.81559*math.Pow(humidity/100.0, 5.83411))
}

// Normalize applies both fits. NaN humidity leaves the reading untouched.
func (m Measurement) Normalize(humidity float64) Measurement {
	if math.IsNaN(humidity) {
		return m
	}
	return Measurement{PM25: NormalizePM25(m.PM25, humidity), PM10: NormalizePM10(m.PM10, humidity)}
}
