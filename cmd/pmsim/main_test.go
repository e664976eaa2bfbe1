package main

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RUBclim/crowdbike/sds011"
	"github.com/RUBclim/crowdbike/sds011/sim"
)

func TestServeAnswersCommands(t *testing.T) {
	color.NoColor = true
	line, sensorSide := net.Pipe()
	sensor := sim.New(0xABCD)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, sensorSide, sensor, time.Hour) }()

	_, err := line.Write(sds011.SleepCommand())
	require.NoError(t, err)
	reply := make([]byte, sds011.FromSensorSize)
	require.NoError(t, line.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(line, reply)
	require.NoError(t, err)

	var p sds011.Packet
	require.NoError(t, p.FromBytes(reply))
	work, err := p.WorkMode()
	require.NoError(t, err)
	assert.False(t, work)
	assert.False(t, sensor.Working())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}
