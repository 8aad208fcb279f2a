package device

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/serial"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

var (
	errNoWork    = errors.New("no work")
	errWriteFail = errors.New("write failure")
	errOpenFail  = errors.New("open failure")
)

// events records the order of opens and pulls across fakes.
type events struct {
	lock sync.Mutex
	list []string
}

func (e *events) add(ev string) {
	e.lock.Lock()
	e.list = append(e.list, ev)
	e.lock.Unlock()
}

func (e *events) get() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]string(nil), e.list...)
}

type fakePort struct {
	inCh      chan []byte
	writes    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	failWrite bool

	pending []byte // touched by the reader only
}

func newFakePort() *fakePort {
	return &fakePort{
		inCh:   make(chan []byte, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case <-p.closed:
			return 0, io.ErrClosedPipe
		case data := <-p.inCh:
			p.pending = data
		case <-time.After(2 * time.Millisecond):
			return 0, nil
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	if p.failWrite {
		return 0, errWriteFail
	}
	p.writes <- append([]byte(nil), b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) Flush() error {
	return nil
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *fakePort) sendNonce(nonce uint32) {
	pkt := wire.NewEventPacket(nonce)
	p.inCh <- pkt[:]
}

// nextCommand waits for the next command packet written to the port.
func (p *fakePort) nextCommand(t *testing.T) wire.CommandPacket {
	select {
	case b := <-p.writes:
		require.Len(t, b, wire.CommandPacketLen)
		var pkt wire.CommandPacket
		copy(pkt[:], b)
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("no command written")
	}
	return wire.CommandPacket{}
}

func (p *fakePort) noCommand(t *testing.T, d time.Duration) {
	select {
	case <-p.writes:
		t.Fatal("unexpected command written")
	case <-time.After(d):
	}
}

// fakeOpener hands out ports in order, failing once they run out.
type fakeOpener struct {
	lock   sync.Mutex
	ports  []*fakePort
	opens  int
	events *events
}

func (o *fakeOpener) Open(path string, baud int) (serial.Port, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.opens++
	if o.events != nil {
		o.events.add("open")
	}
	if len(o.ports) == 0 {
		return nil, errOpenFail
	}
	port := o.ports[0]
	o.ports = o.ports[1:]
	return port, nil
}

func (o *fakeOpener) openCount() int {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.opens
}

type submission struct {
	work  *Work
	nonce uint32
}

// fakeHost never blocks in GetWork.
type fakeHost struct {
	work    chan *Work
	submits chan submission
	valid   bool
	events  *events
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		work:    make(chan *Work, 16),
		submits: make(chan submission, 16),
		valid:   true,
	}
}

func (h *fakeHost) GetWork(ctx context.Context) (*Work, error) {
	select {
	case w := <-h.work:
		if h.events != nil {
			h.events.add("pull")
		}
		return w, nil
	default:
		return nil, errNoWork
	}
}

func (h *fakeHost) SubmitNonce(work *Work, nonce uint32) bool {
	h.submits <- submission{work: work, nonce: nonce}
	return h.valid
}

func (h *fakeHost) noSubmission(t *testing.T, d time.Duration) {
	select {
	case s := <-h.submits:
		t.Fatalf("unexpected submission of %08x", s.nonce)
	case <-time.After(d):
	}
}

// funcHost delegates to funcs.
type funcHost struct {
	getWork func(ctx context.Context) (*Work, error)
	submit  func(work *Work, nonce uint32) bool
}

func (h *funcHost) GetWork(ctx context.Context) (*Work, error) {
	return h.getWork(ctx)
}

func (h *funcHost) SubmitNonce(work *Work, nonce uint32) bool {
	if h.submit == nil {
		return true
	}
	return h.submit(work, nonce)
}

func testWork(id uint64) *Work {
	w := &Work{ID: id, Difficulty: 1}
	for i := range w.Data {
		w.Data[i] = byte(id) + byte(i)
	}
	return w
}

func testDevice(t *testing.T, host Host, opener serial.Opener, timeout time.Duration) *Device {
	cfg, err := calib.NewDeviceConfig(6, calib.DefaultClock, &calib.ChipCountMax{})
	require.NoError(t, err)
	dev := New(0, "/dev/ttyFAKE0", cfg, &calib.Result{
		GoldenSpeedPerCore: 27989,
		WorkTimeout:        timeout,
		ReadCount:          5,
		FreqCode:           calib.FreqToCode(calib.DefaultClock),
	}, host, opener)
	dev.Reopen = ReopenPolicy{Pause: time.Millisecond, Attempts: 2, RetryDelay: time.Millisecond}
	dev.IdleWait = 10 * time.Millisecond
	return dev
}

// start runs dev in background; the returned chan yields the Run result.
func start(t *testing.T, dev *Device) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- dev.Run(context.Background()) }()
	t.Cleanup(dev.Shutdown)
	return errCh
}
