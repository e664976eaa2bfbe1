package calib

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Reference is a sensor under calibration, the SHT85 driver fits
type Reference interface {
	Read(ctx context.Context) (temperature float64, humidity float64, err error)
	SerialNumber() (uint32, error)
}

// Channel maps a sensor id to its bus, parsed from id=/dev/i2c-N
type Channel struct {
	ID  string
	Bus string
}

func ParseChannel(s string) (Channel, error) {
	id, bus, ok := strings.Cut(s, "=")
	if !ok || id == "" || bus == "" {
		return Channel{}, fmt.Errorf("invalid sensor %q, want id=/dev/i2c-N", s)
	}
	return Channel{ID: id, Bus: bus}, nil
}

type Probe struct {
	ID     string
	Sensor Reference
}

// ReadProbes reads every probe once, failed probes are skipped
func ReadProbes(ctx context.Context, now time.Time, probes []Probe, log *zap.Logger) [][]string {
	var rows [][]string
	for _, p := range probes {
		t, h, err := p.Sensor.Read(ctx)
		if err != nil {
			log.Warn("read failed", zap.String("sensor", p.ID), zap.Error(err))
			continue
		}
		serial := ""
		if sn, err := p.Sensor.SerialNumber(); err != nil {
			log.Warn("serial number failed", zap.String("sensor", p.ID), zap.Error(err))
		} else {
			serial = strconv.FormatUint(uint64(sn), 10)
		}
		rows = append(rows, []string{
			now.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(t, 'f', -1, 64),
			strconv.FormatFloat(h, 'f', -1, 64),
			p.ID,
			serial,
		})
	}
	return rows
}

func appendRows(path string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RunLogger appends a round to path every interval until ctx is done
func RunLogger(ctx context.Context, path string, interval time.Duration, probes []Probe, log *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if rows := ReadProbes(ctx, time.Now(), probes, log); 0 < len(rows) {
			if err := appendRows(path, rows); err != nil {
				return fmt.Errorf("write %v: %w", path, err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
