package device

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/zeus.go/pkg/framework"
	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/serial"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// DefaultIdleWait bounds the wait for a response while no work is held.
const DefaultIdleWait = time.Second

// ReopenPolicy bounds the attempts to reopen a failed port.
type ReopenPolicy struct {
	// Pause is the delay between closing the port and the first attempt.
	Pause time.Duration
	// Attempts is the number of open attempts before the device gives up.
	Attempts int
	// RetryDelay is the delay after the first failed attempt; it doubles
	// after each following one.
	RetryDelay time.Duration
	// MaxRetryDelay caps RetryDelay.
	MaxRetryDelay time.Duration
}

// DefaultReopenPolicy is used when a Device is created.
var DefaultReopenPolicy = ReopenPolicy{
	Pause:         500 * time.Millisecond,
	Attempts:      5,
	RetryDelay:    time.Second,
	MaxRetryDelay: 8 * time.Second,
}

func (p ReopenPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p ReopenPolicy) backoff(attempt int) time.Duration {
	d := p.RetryDelay
	for i := 1; i < attempt && (p.MaxRetryDelay <= 0 || d < p.MaxRetryDelay); i++ {
		d *= 2
	}
	if p.MaxRetryDelay > 0 && d > p.MaxRetryDelay {
		d = p.MaxRetryDelay
	}
	return d
}

// Device drives one Zeus chain over a serial port.
type Device struct {
	// Reopen controls recovery from port failures.
	Reopen ReopenPolicy
	// Debug enables verbose logs and debug statistics.
	Debug bool
	// IdleWait bounds each wait while no work is held.
	IdleWait time.Duration

	id     int
	path   string
	name   string
	cfg    calib.DeviceConfig
	cal    calib.Result
	host   Host
	opener serial.Opener
	wake   *fx.Signal
	stopCh chan struct{}
	doneCh chan struct{}
	open   atomic.Bool

	// owned by the loop goroutine
	port   serial.Port
	reader *portReader

	lock         sync.Mutex
	running      bool
	shutdown     bool
	state        State
	current      *Work
	sent         bool
	workStart    time.Time
	workEnd      time.Time
	scanworkTime time.Time
	freqCode     byte
	clock        int
	pendingClock int
	workDone     uint64
	timeouts     uint64
	nonceCount   [wire.MaxChips][wire.CoresPerChip]uint32
	errorCount   [wire.MaxChips][wire.CoresPerChip]uint32
}

// New creates a Device for a calibrated chain on path. The port is opened
// when the device runs.
func New(id int, path string, cfg calib.DeviceConfig, cal *calib.Result, host Host, opener serial.Opener) *Device {
	return &Device{
		Reopen:       DefaultReopenPolicy,
		IdleWait:     DefaultIdleWait,
		id:           id,
		path:         path,
		name:         filepath.Base(path),
		cfg:          cfg,
		cal:          *cal,
		host:         host,
		opener:       opener,
		wake:         fx.NewSignal(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		state:        StateAwaitingJob,
		scanworkTime: time.Now(),
		freqCode:     cal.FreqCode,
		clock:        cfg.ClockMHz,
	}
}

// Name implements Driver.
func (d *Device) Name() string {
	return fmt.Sprintf("ZUS%d", d.id)
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	return d.Name()
}

// ID returns the device id assigned at detection.
func (d *Device) ID() int {
	return d.id
}

// Path implements Driver.
func (d *Device) Path() string {
	return d.path
}

// DeviceName is the last element of the port path.
func (d *Device) DeviceName() string {
	return d.name
}

// Config returns the chain configuration.
func (d *Device) Config() calib.DeviceConfig {
	return d.cfg
}

// Calibration returns the calibration result the device runs with.
func (d *Device) Calibration() calib.Result {
	return d.cal
}

// Done is closed when Run returns.
func (d *Device) Done() <-chan struct{} {
	return d.doneCh
}

// Run implements Runnable. It drives the I/O loop until Shutdown, ctx
// cancellation or a fatal error.
func (d *Device) Run(ctx context.Context) error {
	d.lock.Lock()
	if d.running {
		d.lock.Unlock()
		return ErrRunning
	}
	d.running = true
	stopped := d.shutdown
	d.lock.Unlock()
	defer close(d.doneCh)
	if stopped {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := d.loop(ctx)

	d.lock.Lock()
	d.shutdown = true
	d.state = StateShuttingDown
	d.purgeLocked()
	d.lock.Unlock()
	d.closePort()

	select {
	case <-d.stopCh:
		glog.Infof("%s: serial I/O loop stopped", d)
		return nil
	default:
	}
	if err != nil && err != context.Canceled {
		glog.Errorf("%s: serial I/O loop failed: %v", d, err)
	}
	return err
}

// Shutdown implements Driver.
func (d *Device) Shutdown() {
	d.lock.Lock()
	if !d.shutdown {
		d.shutdown = true
		close(d.stopCh)
	}
	running := d.running
	d.lock.Unlock()
	d.wake.Notify()
	if running {
		<-d.doneCh
	}
	d.wake.Close()
}

func (d *Device) isShutdown() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.shutdown
}
