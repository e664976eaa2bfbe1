package sds011

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	rx      *bytes.Reader
	tx      bytes.Buffer
	closed  int
	failErr error
}

func (f *fakeConn) Read(b []byte) (int, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return f.rx.Read(b)
}

func (f *fakeConn) Write(b []byte) (int, error) { return f.tx.Write(b) }

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

func portWith(conn *fakeConn, opens *int) *Port {
	return NewPortWithOpener("/dev/fake", func() (io.ReadWriteCloser, error) {
		*opens++
		return conn, nil
	})
}

func TestPortReadMeasurement(t *testing.T) {
	conn := &fakeConn{rx: bytes.NewReader(validFrame())}
	opens := 0
	m, err := portWith(conn, &opens).ReadMeasurement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Measurement{PM25: 10, PM10: 5}, m)
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, conn.closed)
}

func TestPortShortReadIsFrameError(t *testing.T) {
	conn := &fakeConn{rx: bytes.NewReader(validFrame()[:4])}
	opens := 0
	m, err := portWith(conn, &opens).ReadMeasurement(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFrame)
	assert.False(t, m.Valid())
	assert.Equal(t, 1, conn.closed)
}

func TestPortReadIOError(t *testing.T) {
	boom := errors.New("line broke")
	conn := &fakeConn{rx: bytes.NewReader(nil), failErr: boom}
	opens := 0
	_, err := portWith(conn, &opens).ReadMeasurement(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidFrame)
}

func TestPortOpenError(t *testing.T) {
	boom := errors.New("no such device")
	p := NewPortWithOpener("/dev/none", func() (io.ReadWriteCloser, error) { return nil, boom })
	_, err := p.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, p.Sleep(context.Background()), boom)
}

func TestPortSleepWake(t *testing.T) {
	conn := &fakeConn{rx: bytes.NewReader(nil)}
	opens := 0
	p := portWith(conn, &opens)

	require.NoError(t, p.Sleep(context.Background()))
	assert.Equal(t, SleepCommand(), conn.tx.Bytes())
	conn.tx.Reset()

	require.NoError(t, p.Wake(context.Background()))
	assert.Equal(t, WakeCommand(), conn.tx.Bytes())
	assert.Equal(t, 2, opens)
	assert.Equal(t, 2, conn.closed)
}

func TestPortCancelled(t *testing.T) {
	opens := 0
	p := portWith(&fakeConn{rx: bytes.NewReader(validFrame())}, &opens)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ReadMeasurement(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, opens)
}
