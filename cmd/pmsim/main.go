/*
pmsim puts a simulated SDS011 on a serial line, for running crowdbike without the hardware.

	socat -d -d pty,raw,echo=0 pty,raw,echo=0
	pmsim -s /dev/pts/3
	CROWDBIKE_DEVICES_PM_PORT=/dev/pts/4 crowdbike run
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"

	"github.com/RUBclim/crowdbike/sds011"
	"github.com/RUBclim/crowdbike/sds011/sim"
)

func main() {
	pSerialDevice := flag.String("s", "", "serial device file")
	pDeviceID := flag.String("id", "ABCD", "SDS011 ID in hex 16bit no 0xFFFF")
	pPeriod := flag.Duration("period", time.Second, "active mode report interval")
	pPM25 := flag.Float64("pm25", 8, "PM2.5 level µg/m³")
	pPM10 := flag.Float64("pm10", 14, "PM10 level µg/m³")
	pBadCRC := flag.Bool("badcrc", false, "send frames with wrong checksum")
	pIncomplete := flag.Bool("incomplete", false, "drop tail bytes of every frame")
	pNulls := flag.Bool("nulls", false, "surround frames with null characters")
	flag.Parse()

	if *pSerialDevice == "" {
		fmt.Printf("Please define serial device. (-h for help)\nList of serial ports\n")
		ports, err := sds011.ListPorts()
		if err != nil {
			fmt.Printf("Error probing serial port %v\n", err)
			os.Exit(-1)
		}
		for _, p := range ports {
			fmt.Print(p)
		}
		os.Exit(0)
	}

	id, err := strconv.ParseUint(*pDeviceID, 16, 16)
	if err != nil || id == sds011.AnyDevice {
		fmt.Printf("INVALID Device id %v\n", *pDeviceID)
		os.Exit(-1)
	}

	sensor := sim.New(uint16(id))
	sensor.Small.Offset = *pPM25
	sensor.Large.Offset = *pPM10
	sensor.Faults = sim.Faults{InvalidCRC: *pBadCRC, IncompletePackets: *pIncomplete, DirectionChangeNull: *pNulls}
	fmt.Printf("Single sensor SDS011 SIM, id %X on %v\n", id, *pSerialDevice)

	port, err := serial.OpenPort(&serial.Config{
		Name:        *pSerialDevice,
		Baud:        sds011.DefaultBaud,
		ReadTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		fmt.Printf("SERIAL LINK FAIL %v\n", err)
		os.Exit(-1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, port, sensor, *pPeriod); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("SERIAL LINK FAIL %v\n", err)
		os.Exit(-1)
	}
	st := sensor.Stats()
	fmt.Printf("\nrx %v tx %v measurements %v burn events %v\n", st.RxPackets, st.TxPackets, st.Measurements, st.BurnEvents)
}

func serve(ctx context.Context, port io.ReadWriteCloser, sensor *sim.Sensor, period time.Duration) error {
	var mu sync.Mutex
	send := func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		color.Cyan("to serial: %#X", b)
		n, err := port.Write(b)
		if err != nil {
			return err
		}
		if n != len(b) {
			return fmt.Errorf("partial write %v of %v bytes", n, len(b))
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	stopClose := context.AfterFunc(ctx, func() { port.Close() })
	defer stopClose()

	g.Go(func() error {
		buf := make([]byte, 64)
		for {
			n, err := port.Read(buf)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if n == 0 {
				continue
			}
			replies, errs := sensor.Feed(buf[:n])
			for _, e := range errs {
				color.Red("rejected: %v", e)
			}
			for _, r := range replies {
				color.Green("replied to request")
				if err := send(r); err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case t := <-ticker.C:
				if frame, ok := sensor.DataFrame(t); ok {
					if err := send(frame); err != nil {
						return err
					}
				}
			}
		}
	})
	return g.Wait()
}
