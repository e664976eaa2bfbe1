/*
Package console is the live view of the kit on a terminal, and the keys to
drive it. One screen per sampling tick.
*/
package console

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/fatih/color"

	"github.com/RUBclim/crowdbike/record"
)

const clearScreen = "\033[H\033[2J"

type Status struct {
	Recording bool
	PMEnabled bool
	Message   string //outcome of the last command
}

type Display struct {
	Name   string
	BikeNr string
	IP     string
	Clear  bool

	out io.Writer
}

func NewDisplay(out io.Writer, bikeNr string, name string, ip string) *Display {
	return &Display{Name: name, BikeNr: bikeNr, IP: ip, Clear: true, out: out}
}

func num(v float64, decimals int) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func fixColor(level record.FixLevel) *color.Color {
	switch level {
	case record.Fix:
		return color.New(color.BgGreen, color.FgBlack)
	case record.PartialFix:
		return color.New(color.BgYellow, color.FgBlack)
	}
	return color.New(color.BgRed, color.FgWhite)
}

func onOff(b bool, on string, off string) string {
	if b {
		return color.GreenString(on)
	}
	return color.RedString(off)
}

func (d *Display) line(label string, value string) {
	fmt.Fprintf(d.out, " %-15s %s\n", label, value)
}

// Render draws one tick
func (d *Display) Render(s record.Sample, st Status) {
	if d.Clear {
		fmt.Fprint(d.out, clearScreen)
	}
	color.New(color.Bold).Fprintf(d.out, " Crowdbike %s   %s's Crowdbike\n", d.BikeNr, d.Name)
	fmt.Fprintf(d.out, " PM-Sensor %s   IP: %s\n", onOff(st.PMEnabled, "on", "off"), d.IP)
	fmt.Fprintln(d.out, " ----------------------------------------")

	d.line("Counter", fixColor(s.Fix).Sprintf(" %d ", s.Record))
	d.line("Time", s.RaspberryTime.Format(record.TimeFormat))
	d.line("Altitude", num(s.Altitude, 3)+" m ASL")
	d.line("Latitude", num(s.Latitude, 6)+" °N")
	d.line("Longitude", num(s.Longitude, 6)+" °E")
	d.line("Speed", num(s.Speed, 1)+" km/h")
	d.line("GPS Time", s.GPSTime)
	d.line("Temperature", num(s.Temperature, 1)+" °C")
	d.line("Rel. Humidity", num(s.Humidity, 1)+" %")
	d.line("Vap. Pressure", num(s.VapourPressure, 3)+" kPa")
	d.line("PM 10", num(s.PM10, 1)+" µg/m³")
	d.line("PM 2.5", num(s.PM25, 1)+" µg/m³")

	fmt.Fprintln(d.out, " ----------------------------------------")
	fmt.Fprintf(d.out, " %s   [r]ecord [s]top [p]m on/off [u]pload [q]uit\n", onOff(st.Recording, "RECORDING", "stopped"))
	if st.Message != "" {
		color.New(color.FgHiYellow).Fprintln(d.out, " "+st.Message)
	}
}

// Notice prints a line outside the tick, like upload progress
func (d *Display) Notice(format string, args ...interface{}) {
	color.New(color.FgHiYellow).Fprintf(d.out, format+"\n", args...)
}

func (d *Display) Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(d.out, format+"\n", args...)
}
