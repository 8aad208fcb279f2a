// Package serial provides the transport primitives the driver runs over.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"
)

// Port is an opened serial link to an ASIC chain.
//
// Read follows the semantics of a port opened with a read timeout: it
// returns (0, nil) when no data arrived within the timeout, and a non-nil
// error only when the port is broken or closed.
type Port interface {
	io.ReadWriteCloser
	// Flush discards any unread input.
	Flush() error
}

// Opener opens ports by path.
type Opener interface {
	Open(path string, baud int) (Port, error)
}

// OpenFunc is the func form of Opener.
type OpenFunc func(path string, baud int) (Port, error)

// Open implements Opener.
func (f OpenFunc) Open(path string, baud int) (Port, error) {
	return f(path, baud)
}

// ShortReadError indicates fewer bytes than a full packet were received
// before the retry budget ran out.
type ShortReadError struct {
	Want int
	Got  int
}

// Error implements error.
func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read: got %d of %d bytes", e.Got, e.Want)
}

// ReadPacket reads len(buf) bytes from r. Every read returning no data
// consumes one unit of retries; reading stops when the budget is exhausted.
// first is the time the first chunk of data arrived, zero if none did.
func ReadPacket(r io.Reader, buf []byte, retries int) (n int, first time.Time, err error) {
	var empty int
	for n < len(buf) {
		var got int
		got, err = r.Read(buf[n:])
		if err != nil {
			glog.Errorf("serial read error: %v", err)
			return
		}
		if got == 0 {
			if empty++; empty >= retries {
				break
			}
			continue
		}
		if n == 0 {
			first = time.Now()
		}
		n += got
	}
	if glog.V(4) {
		if n > 0 {
			glog.Infof("< %x", buf[:n])
		} else {
			glog.Info("< (no data)")
		}
	}
	return
}

// ReadFull is ReadPacket reporting a partial packet as *ShortReadError.
func ReadFull(r io.Reader, buf []byte, retries int) (time.Time, error) {
	n, first, err := ReadPacket(r, buf, retries)
	if err == nil && n < len(buf) {
		err = &ShortReadError{Want: len(buf), Got: n}
	}
	return first, err
}

// Write writes the whole of p, logging a hex dump at high verbosity.
func Write(w io.Writer, p []byte) error {
	if glog.V(4) {
		glog.Infof("> %x", p)
	}
	for written := 0; written < len(p); {
		n, err := w.Write(p[written:])
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}
	return nil
}
