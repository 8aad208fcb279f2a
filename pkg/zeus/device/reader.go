package device

import (
	"sync"
	"time"

	"github.com/robotalks/zeus.go/pkg/zeus/serial"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

type readResult struct {
	pkt wire.EventPacket
	// n is the count of bytes received before err.
	n   int
	at  time.Time
	err error
}

// portReader turns a blocking port into a stream of event packets. It
// idles on the first byte of a packet, then reads the rest within the
// configured retry budget.
type portReader struct {
	port    serial.Port
	retries int
	ch      chan readResult
	stopCh  chan struct{}
	once    sync.Once
}

func newPortReader(port serial.Port, retries int) *portReader {
	r := &portReader{
		port:    port,
		retries: retries,
		ch:      make(chan readResult),
		stopCh:  make(chan struct{}),
	}
	go r.run()
	return r
}

// C delivers one result per packet; an error result ends the stream.
func (r *portReader) C() <-chan readResult {
	return r.ch
}

func (r *portReader) run() {
	for {
		var pkt wire.EventPacket
		n, err := r.port.Read(pkt[:1])
		if err == nil && n == 0 {
			if r.stopped() {
				return
			}
			continue
		}
		res := readResult{n: n, err: err, at: time.Now()}
		if err == nil {
			_, res.err = serial.ReadFull(r.port, pkt[1:], r.retries)
			if res.err == nil {
				res.pkt = pkt
				r.port.Flush()
			}
		}
		if !r.deliver(res) || res.err != nil {
			return
		}
	}
}

func (r *portReader) deliver(res readResult) bool {
	select {
	case r.ch <- res:
		return true
	case <-r.stopCh:
		return false
	}
}

func (r *portReader) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// stop makes the reader exit without delivering further results. The
// port must be closed to interrupt a blocking Read.
func (r *portReader) stop() {
	r.once.Do(func() { close(r.stopCh) })
}
