package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/zeus.go/pkg/framework"
	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

type fakeRegistry struct {
	lock    sync.Mutex
	drivers []Driver
}

func (r *fakeRegistry) Register(drv Driver) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.drivers = append(r.drivers, drv)
	return nil
}

func testDetector(opener *fakeOpener, reg Registry) *Detector {
	return &Detector{
		Opener:      opener,
		Host:        newFakeHost(),
		Registry:    reg,
		ChipCount:   6,
		ClockMHz:    calib.DefaultClock,
		Calibration: calib.Options{Settle: time.Millisecond, SelfTestReads: 5},
	}
}

func TestDetectSuccess(t *testing.T) {
	port := newFakePort()
	port.sendNonce(wire.GoldenNonce)
	reg := &fakeRegistry{}
	det := testDetector(&fakeOpener{ports: []*fakePort{port}}, reg)

	dev, err := det.DetectOne(context.Background(), "/dev/ttyUSB3", PhaseStartup)
	require.NoError(t, err)
	require.Len(t, reg.drivers, 1)
	require.Same(t, dev, reg.drivers[0])
	assert.Equal(t, "ZUS0", dev.Name())
	assert.Equal(t, "ttyUSB3", dev.DeviceName())
	assert.True(t, port.isClosed())

	cal := dev.Calibration()
	assert.True(t, cal.Measured)
	assert.NotZero(t, cal.GoldenSpeedPerCore)
	assert.Equal(t, calib.FreqToCode(calib.DefaultClock), cal.FreqCode)
	cfg := dev.Config()
	assert.Equal(t, 8, cfg.ChipCountMax)
	assert.Equal(t, 3, cfg.ChipBitCount)
	// 4 warm-up packets and the self-test
	assert.Len(t, port.writes, 5)
}

func TestDetectFailureNotRegistered(t *testing.T) {
	port := newFakePort()
	port.sendNonce(0x268d0300)
	reg := &fakeRegistry{}
	det := testDetector(&fakeOpener{ports: []*fakePort{port}}, reg)

	_, err := det.DetectOne(context.Background(), "/dev/ttyUSB0", PhaseStartup)
	var selfTestErr *calib.SelfTestError
	require.ErrorAs(t, err, &selfTestErr)
	require.Empty(t, reg.drivers)
	require.True(t, port.isClosed())

	_, err = det.DetectOne(context.Background(), "/dev/ttyUSB1", PhaseHotplug)
	require.ErrorIs(t, err, errOpenFail)
	require.Empty(t, reg.drivers)
}

func TestDetectSharesChipCountMax(t *testing.T) {
	p1, p2 := newFakePort(), newFakePort()
	opener := &fakeOpener{ports: []*fakePort{p1, p2}}
	det := testDetector(opener, nil)
	det.Calibration.SkipSelfTest = true

	d1, err := det.DetectOne(context.Background(), "/dev/ttyUSB0", PhaseStartup)
	require.NoError(t, err)
	det.ChipCount = 16
	d2, err := det.DetectOne(context.Background(), "/dev/ttyUSB1", PhaseStartup)
	require.NoError(t, err)
	assert.Equal(t, 8, d1.Config().ChipCountMax)
	assert.Equal(t, 16, d2.Config().ChipCountMax)
	assert.Equal(t, 16, det.ChipCountMax.Value())
	assert.Equal(t, 1, d2.ID())
	assert.False(t, d2.Calibration().Measured)
}

func TestPool(t *testing.T) {
	runner := fx.NewRunner()
	pool := NewPool(runner)
	host := newFakeHost()
	port := newFakePort()
	dev := testDevice(t, host, &fakeOpener{ports: []*fakePort{port}}, time.Minute)

	require.NoError(t, pool.Register(dev))
	require.ErrorIs(t, pool.Register(dev), ErrDuplicate)
	require.True(t, pool.Has(dev.Path()))
	require.Same(t, dev, pool.Find("ZUS0"))
	require.Len(t, pool.Drivers(), 1)

	host.work <- testWork(1)
	port.nextCommand(t)
	pool.Shutdown()
	require.NoError(t, runner.Wait())
	require.False(t, pool.Has(dev.Path()))
	require.Empty(t, pool.Drivers())
}

func TestStats(t *testing.T) {
	dev := testDevice(t, newFakeHost(), &fakeOpener{}, time.Minute)
	st := dev.Stats()
	assert.Equal(t, "ttyFAKE0", st.DeviceName)
	assert.Equal(t, StateAwaitingJob.String(), st.State)
	assert.InDelta(t, 27.989, st.KHSCore, 1e-9)
	assert.InDelta(t, 27.989*8, st.KHSChip, 1e-9)
	assert.InDelta(t, 27.989*48, st.KHSBoard, 1e-9)
	assert.Equal(t, calib.DefaultClock, st.Frequency)
	assert.Equal(t, 6, st.ChipCount)
	assert.Zero(t, st.CurrentWorkTime)
	assert.Nil(t, st.Debug)

	dev.Debug = true
	st = dev.Stats()
	require.NotNil(t, st.Debug)
	assert.Equal(t, 8, st.Debug.ChipCountMax)
	assert.Equal(t, 3, st.Debug.ChipBitCount)
	assert.Equal(t, 5, st.Debug.ReadCount)
}

func TestScanWork(t *testing.T) {
	dev := testDevice(t, newFakeHost(), &fakeOpener{}, time.Minute)
	dev.scanworkTime = time.Now().Add(-time.Second)
	hashes := dev.ScanWork()
	assert.InDelta(t, 27989*48, float64(hashes), 27989*48*0.1)

	dev.scanworkTime = time.Now().Add(-time.Hour * 24 * 365)
	assert.Equal(t, int64(0xffffffff), dev.ScanWork())
}

func TestWorkDiffCode(t *testing.T) {
	assert.Equal(t, uint16(0xffff), (&Work{Difficulty: 0.5}).DiffCode())
	assert.Equal(t, uint16(0xffff/2), (&Work{Difficulty: 2}).DiffCode())
	assert.Equal(t, uint16(1), (&Work{Difficulty: 1e9}).DiffCode())
}
