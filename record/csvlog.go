package record

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	TimeFormat     = "2006-01-02 15:04:05"
	fileTimeFormat = "2006-01-02_150405"
)

var Columns = []string{
	"id",
	"record",
	"raspberry_time",
	"gps_time",
	"altitude",
	"latitude",
	"longitude",
	"speed",
	"temperature",
	"temperature_raw",
	"rel_humidity",
	"rel_humidity_raw",
	"vapour_pressure",
	"pm10",
	"pm2_5",
	"mac",
}

// FileName is <bike>_<student_name>_<UTC start>.csv
func FileName(bikeNr string, student string, started time.Time) string {
	return fmt.Sprintf("%s_%s_%s.csv", bikeNr, strings.ReplaceAll(student, " ", "_"), started.UTC().Format(fileTimeFormat))
}

// formatValue prints like the python kit: nan, and 21.0 instead of 21
func formatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatFixed(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return formatValue(v)
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// Row is the csv record in Columns order
func (s Sample) Row() []string {
	gpsTime := s.GPSTime
	if !s.HasFix {
		gpsTime = "nan"
	}
	return []string{
		s.ID,
		strconv.Itoa(s.Record),
		s.RaspberryTime.UTC().Format(TimeFormat),
		gpsTime,
		formatFixed(s.Altitude, 3),
		formatFixed(s.Latitude, 6),
		formatFixed(s.Longitude, 6),
		formatFixed(s.Speed, 1),
		formatValue(s.Temperature),
		formatValue(s.TemperatureRaw),
		formatValue(s.Humidity),
		formatValue(s.HumidityRaw),
		formatValue(s.VapourPressure),
		formatValue(s.PM10),
		formatValue(s.PM25),
		s.MAC,
	}
}

// Log is one measurement csv file. Opened for every append.
type Log struct {
	Path string
}

func NewLog(dir string, bikeNr string, student string, started time.Time) *Log {
	return &Log{Path: filepath.Join(dir, FileName(bikeNr, student, started))}
}

func (l *Log) append(rows ...[]string) error {
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open logfile: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write logfile %v: %w", l.Path, err)
	}
	return f.Close()
}

// Start creates the directory and the file with its header. An existing file is kept.
func (l *Log) Start() error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if _, err := os.Stat(l.Path); err == nil {
		return nil
	}
	return l.append(Columns)
}

// Record appends s only while recording and with a GPS fix. Reports if a row was written.
func (l *Log) Record(recording bool, s Sample) (bool, error) {
	if !recording || !s.HasFix {
		return false, nil
	}
	if err := l.Start(); err != nil {
		return false, err
	}
	if err := l.append(s.Row()); err != nil {
		return false, err
	}
	return true, nil
}
