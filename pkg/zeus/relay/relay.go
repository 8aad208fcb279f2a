// Package relay implements a device.Host fed with work as text lines.
//
// Input lines are
//
//	<160 hex digits of the 80-byte header> [difficulty]
//	flush
//
// and each nonce found is written back as
//
//	nonce <work id> <8 hex digits> ok|bad
package relay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/zeus.go/pkg/zeus/device"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// DefaultDepth is the number of parsed jobs buffered ahead of the devices.
const DefaultDepth = 16

// ErrBadLine indicates an input line that is not a job.
var ErrBadLine = errors.New("bad work line")

// Flusher lists the drivers to flush on a flush line.
type Flusher interface {
	Drivers() []device.Driver
}

// Relay is a device.Host reading jobs from a line stream and writing
// nonces to another.
type Relay struct {
	// Verify checks a nonce; nil accepts every nonce.
	Verify  func(work *device.Work, nonce uint32) bool
	Flusher Flusher

	in     io.Reader
	out    io.Writer
	outMux sync.Mutex
	queue  chan *device.Work
	nextID uint64
}

// New creates a Relay with nonces verified by Check.
func New(in io.Reader, out io.Writer, depth int) *Relay {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Relay{
		Verify: Check,
		in:     in,
		out:    out,
		queue:  make(chan *device.Work, depth),
	}
}

// ParseWork parses a job line.
func ParseWork(line string) (*device.Work, error) {
	fields := strings.Fields(line)
	if len(fields) < 1 || len(fields) > 2 {
		return nil, fmt.Errorf("%w: %q", ErrBadLine, line)
	}
	data, err := hex.DecodeString(fields[0])
	if err != nil || len(data) != wire.JobLen {
		return nil, fmt.Errorf("%w: want %d hex bytes of header", ErrBadLine, wire.JobLen)
	}
	w := &device.Work{Difficulty: 1}
	copy(w.Data[:], data)
	if len(fields) == 2 {
		if w.Difficulty, err = strconv.ParseFloat(fields[1], 64); err != nil || w.Difficulty <= 0 {
			return nil, fmt.Errorf("%w: bad difficulty %q", ErrBadLine, fields[1])
		}
	}
	return w, nil
}

// Run implements Runnable. It returns nil when input ends.
func (r *Relay) Run(ctx context.Context) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("read work: %w", err)
			}
			glog.Info("work input closed")
			return nil
		case line := <-lines:
			if err := r.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (r *Relay) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return nil
	case line == "flush":
		r.Flush()
		return nil
	}
	w, err := ParseWork(line)
	if err != nil {
		glog.Warning(err)
		r.writef("error %v\n", err)
		return nil
	}
	w.ID = atomic.AddUint64(&r.nextID, 1)
	select {
	case r.queue <- w:
		glog.V(2).Infof("queued work %d diff %g", w.ID, w.Difficulty)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush drops queued jobs and flushes the work of all drivers.
func (r *Relay) Flush() {
	var dropped int
	for done := false; !done; {
		select {
		case <-r.queue:
			dropped++
		default:
			done = true
		}
	}
	if r.Flusher != nil {
		for _, drv := range r.Flusher.Drivers() {
			drv.FlushWork()
		}
	}
	glog.V(1).Infof("flushed, %d queued jobs dropped", dropped)
	r.writef("flushed %d\n", dropped)
}

// GetWork implements device.Host.
func (r *Relay) GetWork(ctx context.Context) (*device.Work, error) {
	select {
	case w := <-r.queue:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitNonce implements device.Host.
func (r *Relay) SubmitNonce(work *device.Work, nonce uint32) bool {
	valid := r.Verify == nil || r.Verify(work, nonce)
	result := "ok"
	if !valid {
		result = "bad"
	}
	r.writef("nonce %d %08x %s\n", work.ID, nonce, result)
	return valid
}

func (r *Relay) writef(format string, args ...interface{}) {
	r.outMux.Lock()
	defer r.outMux.Unlock()
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		glog.Errorf("write result: %v", err)
	}
}
