package calib

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// chainPort answers the golden test packet with a scripted response.
type chainPort struct {
	response []byte

	lock    sync.Mutex
	writes  [][]byte
	pending []byte
	flushes int
}

func (p *chainPort) Read(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.pending) == 0 {
		p.lock.Unlock()
		time.Sleep(time.Millisecond)
		p.lock.Lock()
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *chainPort) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	if len(b) == wire.CommandPacketLen &&
		bytes.Equal(b[wire.CommandHeaderLen:], wire.GoldenTest[wire.CommandHeaderLen:]) {
		p.pending = append(p.pending, p.response...)
	}
	return len(b), nil
}

func (p *chainPort) Flush() error {
	p.lock.Lock()
	p.flushes++
	p.lock.Unlock()
	return nil
}

func (p *chainPort) Close() error { return nil }

func testConfig(t *testing.T) DeviceConfig {
	cfg, err := NewDeviceConfig(6, DefaultClock, &ChipCountMax{})
	require.NoError(t, err)
	return cfg
}

var fastOptions = Options{Settle: time.Millisecond, SelfTestReads: 5}

func TestCalibrateSelfTest(t *testing.T) {
	golden := wire.NewEventPacket(wire.GoldenNonce)
	port := &chainPort{response: golden[:]}
	res, err := Calibrate(context.Background(), port, testConfig(t), fastOptions)
	require.NoError(t, err)
	require.True(t, res.Measured)
	require.True(t, res.GoldenSpeedPerCore > 0)
	require.True(t, res.WorkTimeout > 0)
	require.True(t, res.ReadCount >= 1)
	require.Equal(t, byte(218), res.FreqCode)

	require.Len(t, port.writes, 5)
	for i, code := range []byte{110, 110, 218, 218} {
		require.Equal(t, []byte{code, ^code, 0x00, 0x01}, port.writes[i][:wire.CommandHeaderLen])
		require.Equal(t, wire.GoldenWarmup.Bytes()[wire.CommandHeaderLen:], port.writes[i][wire.CommandHeaderLen:])
	}
	require.Equal(t, []byte{218, ^byte(218), 0x00, 0x01}, port.writes[4][:wire.CommandHeaderLen])
	require.Equal(t, 5, port.flushes)
}

func TestCalibrateWrongNonce(t *testing.T) {
	wrong := wire.NewEventPacket(0x268d0300)
	port := &chainPort{response: wrong[:]}
	_, err := Calibrate(context.Background(), port, testConfig(t), fastOptions)
	var selfTestErr *SelfTestError
	require.True(t, errors.As(err, &selfTestErr))
	require.Equal(t, uint32(0x268d0300), selfTestErr.Got)
	require.Equal(t, wire.GoldenNonce, selfTestErr.Want)
}

func TestCalibrateNoResponse(t *testing.T) {
	port := &chainPort{}
	_, err := Calibrate(context.Background(), port, testConfig(t), fastOptions)
	var selfTestErr *SelfTestError
	require.True(t, errors.As(err, &selfTestErr))
	require.Zero(t, selfTestErr.Got)
}

func TestCalibrateSkipSelfTest(t *testing.T) {
	port := &chainPort{}
	opts := fastOptions
	opts.SkipSelfTest = true
	cfg := testConfig(t)
	res, err := Calibrate(context.Background(), port, cfg, opts)
	require.NoError(t, err)
	require.False(t, res.Measured)
	require.Equal(t, uint64(27989), res.GoldenSpeedPerCore)
	require.Len(t, port.writes, 4)
	require.Equal(t, 3196916121*time.Microsecond, res.WorkTimeout)
	require.Equal(t, 8991, res.ReadCount)
}

func TestCalibrateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Calibrate(ctx, &chainPort{}, testConfig(t), Options{Settle: time.Hour})
	require.Equal(t, context.Canceled, err)
}

func TestDerive(t *testing.T) {
	cfg := testConfig(t)
	timeout, reads := Derive(cfg, 27989)
	require.Equal(t, 3196916121*time.Microsecond, timeout)
	require.Equal(t, 8991, reads)

	timeout, reads = Derive(cfg, 1<<40)
	require.Equal(t, minWorkTimeout, timeout)
	require.Equal(t, 1, reads)
}
