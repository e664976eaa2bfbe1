package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RUBclim/crowdbike/sds011"
)

func TestSleepWakeThroughSerial(t *testing.T) {
	s := New(0xA160)
	port := sds011.NewPortWithOpener("sim", s.Opener())
	ctx := context.Background()

	require.True(t, s.Working())
	m, err := port.ReadMeasurement(ctx)
	require.NoError(t, err)
	assert.True(t, m.Valid())

	require.NoError(t, port.Sleep(ctx))
	assert.False(t, s.Working())

	// nothing on the line while asleep
	m, err = port.ReadMeasurement(ctx)
	assert.ErrorIs(t, err, sds011.ErrInvalidFrame)
	assert.False(t, m.Valid())

	require.NoError(t, port.Wake(ctx))
	assert.True(t, s.Working())
	require.NoError(t, port.Sleep(ctx))
	require.NoError(t, port.Sleep(ctx))
	assert.False(t, s.Working(), "last command wins")
}

func TestFeedSplitAndNoise(t *testing.T) {
	s := New(0xA160)
	cmd := sds011.NewPacketQueryVersion(0xA160).ToBytes()

	replies, errs := s.Feed(append([]byte{0x01, 0x02}, cmd[:7]...))
	assert.Empty(t, replies)
	assert.Empty(t, errs)

	replies, errs = s.Feed(cmd[7:])
	assert.Empty(t, errs)
	require.Len(t, replies, 1)

	var p sds011.Packet
	require.NoError(t, p.FromBytes(replies[0]))
	v, err := p.Version()
	require.NoError(t, err)
	assert.Equal(t, "19.9.28", v)
}

func TestReactSettings(t *testing.T) {
	s := New(0xA160)

	resp, err := s.React(sds011.NewPacketSetPeriod(0xA160, true, 3))
	require.NoError(t, err)
	per, _ := resp.Period()
	assert.Equal(t, byte(3), per)
	assert.Equal(t, byte(3), s.Memory().Period)

	_, err = s.React(sds011.NewPacketSetPeriod(0xA160, true, 31))
	assert.Error(t, err)

	resp, err = s.React(sds011.NewPacketSetQueryMode(sds011.AnyDevice, true, true))
	require.NoError(t, err)
	q, _ := resp.QueryMode()
	assert.True(t, q)
	_, ok := s.DataFrame(time.Now())
	assert.False(t, ok, "query mode sends no spontaneous data")

	resp, err = s.React(sds011.NewPacketQueryData(0xA160))
	require.NoError(t, err)
	assert.Equal(t, byte(sds011.CommandIDDataReply), resp.CommandID)

	_, err = s.React(sds011.NewPacketQueryVersion(0x1234))
	assert.Error(t, err, "other id")

	assert.Equal(t, 2, s.Stats().BurnEvents)
}

func TestFaults(t *testing.T) {
	s := New(1)
	s.Faults.InvalidCRC = true
	frame, ok := s.DataFrame(time.Now())
	require.True(t, ok)
	_, err := sds011.DecodeFrame(frame)
	assert.ErrorIs(t, err, sds011.ErrInvalidFrame)

	s.Faults = Faults{IncompletePackets: true}
	frame, _ = s.DataFrame(time.Now())
	assert.Len(t, frame, sds011.FromSensorSize-4)
}

func TestSignalFlat(t *testing.T) {
	sig := Signal{Offset: 12.5}
	assert.Equal(t, 12.5, sig.At(time.Now(), nil))
	assert.Equal(t, 0.0, Signal{Offset: -3}.At(time.Now(), nil))
}
