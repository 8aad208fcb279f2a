// Package calib calibrates a freshly opened Zeus chain: it steps the chip
// clock to the target, runs the golden nonce self-test and derives the
// timing constants the I/O loop runs with.
package calib

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/zeus.go/pkg/zeus/serial"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// Defaults of Options.
const (
	DefaultSettle        = time.Second
	DefaultSelfTestReads = 100
)

const (
	nonceSpace      = uint64(1) << 32
	minWorkTimeout  = time.Millisecond
	warmupSendCount = 2
)

// Options tunes a calibration run.
type Options struct {
	// SkipSelfTest estimates the hash rate from the clock instead of
	// running the golden nonce test.
	SkipSelfTest bool
	// Settle is the pause after each warm-up packet.
	Settle time.Duration
	// SelfTestReads is the read retry budget of the self-test response.
	SelfTestReads int
}

// Result is the outcome of a calibration.
type Result struct {
	// GoldenSpeedPerCore is hashes per second per core.
	GoldenSpeedPerCore uint64
	// WorkTimeout is the time the chain needs to exhaust the nonce space
	// of one job; unanswered jobs are abandoned after it.
	WorkTimeout time.Duration
	// ReadCount is the read retry budget of an event packet.
	ReadCount int
	// FreqCode is the frequency code the chain was left running at.
	FreqCode byte
	// Measured is true when GoldenSpeedPerCore comes from the self-test.
	Measured bool
}

// Calibrate runs the clock setup and self-test sequence on port for a chain
// configured by cfg.
func Calibrate(ctx context.Context, port serial.Port, cfg DeviceConfig, opts Options) (*Result, error) {
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.SelfTestReads <= 0 {
		opts.SelfTestReads = DefaultSelfTestReads
	}

	freqCode := FreqToCode(cfg.ClockMHz)
	port.Flush()

	for _, code := range []byte{PrimingCode(cfg.ClockMHz), freqCode} {
		pkt := wire.GoldenCommand(wire.GoldenWarmup, code)
		for i := 0; i < warmupSendCount; i++ {
			if err := serial.Write(port, pkt.Bytes()); err != nil {
				return nil, err
			}
			if err := sleep(ctx, opts.Settle); err != nil {
				return nil, err
			}
			port.Flush()
		}
	}

	res := &Result{FreqCode: freqCode}
	if opts.SkipSelfTest {
		res.GoldenSpeedPerCore = EstimateSpeed(cfg.ClockMHz)
	} else {
		speed, err := selfTest(port, freqCode, opts.SelfTestReads)
		if err != nil {
			return nil, err
		}
		res.GoldenSpeedPerCore, res.Measured = speed, true
	}
	if res.GoldenSpeedPerCore == 0 {
		return nil, ErrZeroSpeed
	}
	res.WorkTimeout, res.ReadCount = Derive(cfg, res.GoldenSpeedPerCore)
	return res, nil
}

func selfTest(port serial.Port, freqCode byte, reads int) (uint64, error) {
	pkt := wire.GoldenCommand(wire.GoldenTest, freqCode)
	if err := serial.Write(port, pkt.Bytes()); err != nil {
		return 0, err
	}
	start := time.Now()
	var evt wire.EventPacket
	_, first, err := serial.ReadPacket(port, evt[:], reads)
	if err != nil {
		return 0, fmt.Errorf("self-test read: %w", err)
	}
	if nonce := evt.Nonce(); nonce != wire.GoldenNonce {
		return 0, &SelfTestError{Got: nonce, Want: wire.GoldenNonce}
	}
	elapsed := first.Sub(start)
	if elapsed < time.Microsecond {
		elapsed = time.Microsecond
	}
	glog.V(2).Infof("self-test nonce after %v", elapsed)
	return uint64(float64(wire.GoldenHashes) / elapsed.Seconds()), nil
}

// Derive computes the work timeout and the event read retry budget of a
// chain running at speed hashes per second per core.
func Derive(cfg DeviceConfig, speed uint64) (workTimeout time.Duration, readCount int) {
	chain := cfg.Hashes(speed)
	if chain == 0 || cfg.ChipCountMax < 1 {
		return minWorkTimeout, 1
	}
	workTimeout = time.Duration(nonceSpace*uint64(time.Second/time.Microsecond)/chain) * time.Microsecond
	if workTimeout < minWorkTimeout {
		workTimeout = minWorkTimeout
	}
	// 3/4 of the deciseconds the largest addressable chain needs for half
	// the nonce space.
	budget := nonceSpace * 10 / (uint64(cfg.CoresPerChip) * uint64(cfg.ChipCountMax) * speed * 2)
	readCount = int(budget * 3 / 4)
	if readCount < 1 {
		readCount = 1
	}
	return
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
