/*
Package calib holds the linear sensor corrections and the vapour pressure
equations used for the humidity columns.
*/
package calib

import (
	"fmt"
	"math"
)

// SatVapourPressure in kPa over water for temperature in °C (Clausius-Clapeyron)
func SatVapourPressure(temperature float64) float64 {
	return 0.6113 * math.Exp((2501000.0/461.5)*((1.0/273.15)-(1.0/(temperature+273.15))))
}

// VapourPressure in kPa from relative humidity in % and saturation vapour pressure
func VapourPressure(humidity float64, satVapourPressure float64) float64 {
	return (humidity / 100.0) * satVapourPressure
}

// Formula picks how coefficients are applied. Kit revisions disagreed on this.
type Formula string

const (
	FormulaLinear  Formula = "linear"  // raw*a1 + a0
	FormulaInverse Formula = "inverse" // raw/a1 - a0
)

func ParseFormula(s string) (Formula, error) {
	switch Formula(s) {
	case "", FormulaLinear:
		return FormulaLinear, nil
	case FormulaInverse:
		return FormulaInverse, nil
	}
	return "", fmt.Errorf("unknown calibration formula %q, must be %q or %q", s, FormulaLinear, FormulaInverse)
}

// Linear is a slope/offset pair for one sensor quantity
type Linear struct {
	A1      float64
	A0      float64
	Formula Formula
}

// Identity leaves values untouched
func Identity() Linear {
	return Linear{A1: 1, A0: 0, Formula: FormulaLinear}
}

func (l Linear) Apply(raw float64) float64 {
	if l.Formula == FormulaInverse {
		return raw/l.A1 - l.A0
	}
	return raw*l.A1 + l.A0
}

// Round half away from zero to given decimals. NaN stays NaN.
func Round(v float64, digits int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
