package device

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/serial"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// loop holds at most one job in flight. Each iteration makes sure the port
// is open, pulls work when none is held, sends it once, then waits for the
// first of a response, a wake-up or the work timeout.
func (d *Device) loop(ctx context.Context) error {
	glog.Infof("%s: serial I/O loop running on %s", d, d.path)
	for {
		if d.isShutdown() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.port == nil {
			if err := d.reopen(ctx); err != nil {
				return err
			}
		}
		d.checkNeedWork(ctx)
		if !d.sendWork() {
			continue
		}
		if err := d.wait(ctx, d.remaining()); err != nil {
			return err
		}
	}
}

// reopen closes the port if any and opens it again within the bounds of
// the reopen policy.
func (d *Device) reopen(ctx context.Context) error {
	d.setState(StateReopening)
	if d.port != nil {
		glog.V(1).Infof("%s: closing %s", d, d.path)
		d.closePort()
		if err := sleep(ctx, d.Reopen.Pause); err != nil {
			return err
		}
	}
	attempts := d.Reopen.attempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, d.Reopen.backoff(attempt-1)); err != nil {
				return err
			}
		}
		glog.V(1).Infof("%s: attempting to open %s", d, d.path)
		var port serial.Port
		if port, err = d.opener.Open(d.path, d.cfg.Baud); err == nil {
			d.attach(port)
			glog.V(1).Infof("%s: successfully opened %s", d, d.path)
			return nil
		}
		glog.Warningf("%s: open %s attempt %d/%d failed: %v", d, d.path, attempt, attempts, err)
	}
	glog.Errorf("%s: failed to reopen %s, shutting down", d, d.path)
	return fmt.Errorf("%w: %s: %v", ErrReopen, d.path, err)
}

func (d *Device) attach(port serial.Port) {
	d.port = port
	d.reader = newPortReader(port, d.cal.ReadCount)
	d.open.Store(true)
}

// closePort releases the port and its reader. It may be called with or
// without d.lock held.
func (d *Device) closePort() {
	d.open.Store(false)
	if d.reader != nil {
		d.reader.stop()
		d.reader = nil
	}
	if d.port != nil {
		if err := d.port.Close(); err != nil {
			glog.V(1).Infof("%s: close %s: %v", d, d.path, err)
		}
		d.port = nil
	}
}

// checkNeedWork pulls work from the host if none is held. The pull runs
// without the lock; a job installed meanwhile wins.
func (d *Device) checkNeedWork(ctx context.Context) {
	d.lock.Lock()
	need := d.current == nil
	if need {
		d.state = StateAwaitingJob
	}
	d.lock.Unlock()
	if !need {
		return
	}

	work, err := d.host.GetWork(ctx)
	if err != nil {
		if ctx.Err() == nil {
			glog.V(2).Infof("%s: no work: %v", d, err)
		}
		return
	}
	if work == nil {
		return
	}

	d.lock.Lock()
	installed := d.current == nil
	if installed {
		d.current, d.sent = work, false
	}
	d.lock.Unlock()
	if !installed {
		glog.V(2).Infof("%s: discarding duplicate work %d", d, work.ID)
	}
}

// sendWork sends the held job if it has not been sent yet. It returns
// false when the port was torn down.
func (d *Device) sendWork() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.current == nil || d.sent {
		return true
	}
	if d.pendingClock != 0 {
		d.clock = d.pendingClock
		d.freqCode = calib.FreqToCode(d.pendingClock)
		d.pendingClock = 0
		glog.Infof("%s: frequency set to %d MHz (code 0x%02x)", d, d.clock, d.freqCode)
	}
	pkt := wire.EncodeCommand(d.freqCode, d.current.DiffCode(), d.current.Data)
	if d.Debug {
		glog.Infof("%s: sending work %d", d, d.current.ID)
	}
	if err := serial.Write(d.port, pkt.Bytes()); err != nil {
		glog.Warningf("%s: I/O error while sending work, will attempt to reopen device: %v", d, err)
		d.state = StateIOError
		d.purgeLocked()
		d.closePort()
		return false
	}
	d.sent = true
	d.workStart = time.Now()
	d.state = StateJobSent
	return true
}

func (d *Device) remaining() time.Duration {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.current == nil {
		if d.IdleWait > 0 && d.IdleWait < d.cal.WorkTimeout {
			return d.IdleWait
		}
		return d.cal.WorkTimeout
	}
	d.state = StateWaitingResponse
	rem := d.cal.WorkTimeout - time.Since(d.workStart)
	if rem < 0 {
		rem = 0
	}
	return rem
}

func (d *Device) wait(ctx context.Context, rem time.Duration) error {
	timer := time.NewTimer(rem)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-d.reader.C():
		return d.handleRead(ctx, res)
	case _, ok := <-d.wake.C():
		if !ok {
			glog.Errorf("%s: wake-up signal closed under running loop", d)
			return ErrWakeClosed
		}
		return d.pollReader(ctx)
	case <-timer.C:
		if err := d.pollReader(ctx); err != nil {
			return err
		}
		d.abandon()
		return nil
	}
}

// pollReader handles a packet the reader already holds. A packet is
// handled before the work it arrived under is replaced.
func (d *Device) pollReader(ctx context.Context) error {
	if d.reader == nil {
		return nil
	}
	select {
	case res := <-d.reader.C():
		return d.handleRead(ctx, res)
	default:
		return nil
	}
}

func (d *Device) handleRead(ctx context.Context, res readResult) error {
	if res.err != nil {
		if res.n == 0 {
			glog.Warningf("%s: error on %s: %v", d, d.path, res.err)
			return d.reopen(ctx)
		}
		glog.Warningf("%s: I/O error while reading response, will attempt to reopen device: %v", d, res.err)
		d.lock.Lock()
		d.state = StateIOError
		d.purgeLocked()
		d.lock.Unlock()
		d.closePort()
		return nil
	}

	nonce := res.pkt.Nonce()
	d.lock.Lock()
	d.workEnd = res.at
	d.state = StateResponseReceived
	work := d.current
	if work != nil {
		d.workDone++
	}
	d.lock.Unlock()
	if work == nil {
		glog.V(2).Infof("%s: received nonce %08x for flushed work", d, nonce)
		return nil
	}
	if d.Debug {
		glog.Infof("%s: nonce %08x found for work %d", d, nonce, work.ID)
	}
	valid := d.host.SubmitNonce(work, nonce)
	d.count(nonce, valid)
	return nil
}

func (d *Device) count(nonce uint32, valid bool) {
	chip, core, ok := wire.Locate(nonce, d.cfg.ChipBitCount, d.cfg.ChipCountMax)
	if !ok {
		glog.Infof("%s: corrupt nonce message received, cannot determine chip and core", d)
		return
	}
	d.lock.Lock()
	d.nonceCount[chip][core]++
	if !valid {
		d.errorCount[chip][core]++
	}
	d.lock.Unlock()
}

// abandon drops the held job after its timeout elapsed.
func (d *Device) abandon() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.current == nil {
		return
	}
	glog.V(2).Infof("%s: work %d timed out", d, d.current.ID)
	d.state = StateTimedOut
	d.timeouts++
	d.purgeLocked()
}

func (d *Device) purgeLocked() {
	d.current = nil
	d.sent = false
}

func (d *Device) setState(s State) {
	d.lock.Lock()
	d.state = s
	d.lock.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
