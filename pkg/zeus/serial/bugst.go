package serial

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bugst "go.bug.st/serial"
)

// DefaultReadTimeout is the per-read timeout of opened ports, one decisecond
// as with VTIME=1.
const DefaultReadTimeout = 100 * time.Millisecond

// Bugst opens hardware serial ports using go.bug.st/serial.
type Bugst struct {
	ReadTimeout time.Duration
	// Purge discards pending input and output right after opening.
	Purge bool
}

// Open implements Opener.
func (b *Bugst) Open(path string, baud int) (Port, error) {
	if path == "" {
		return nil, errors.New("serial port path is required")
	}
	mode := &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	port, err := bugst.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	timeout := b.ReadTimeout
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	if b.Purge {
		port.ResetInputBuffer()
		port.ResetOutputBuffer()
	}
	return &bugstPort{Port: port}, nil
}

type bugstPort struct {
	bugst.Port
}

// Flush implements Port.
func (p *bugstPort) Flush() error {
	return p.ResetInputBuffer()
}

// List enumerates serial ports on the system. When patterns are given, only
// ports whose path or base name matches one of the glob patterns are
// returned; a pattern without glob characters is returned as is, even if
// the system does not report it.
func List(patterns ...string) ([]string, error) {
	var literal, globs []string
	for _, pattern := range patterns {
		if strings.ContainsAny(pattern, "*?[") {
			globs = append(globs, pattern)
		} else {
			literal = append(literal, pattern)
		}
	}
	if len(patterns) > 0 && len(globs) == 0 {
		return literal, nil
	}
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return ports, nil
	}
	matched := literal
	seen := make(map[string]bool, len(literal))
	for _, port := range literal {
		seen[port] = true
	}
	for _, port := range ports {
		if seen[port] {
			continue
		}
		for _, pattern := range globs {
			if matchPort(pattern, port) {
				matched = append(matched, port)
				break
			}
		}
	}
	return matched, nil
}

func matchPort(pattern, port string) bool {
	if ok, _ := filepath.Match(pattern, port); ok {
		return true
	}
	if !strings.ContainsRune(pattern, filepath.Separator) {
		ok, _ := filepath.Match(pattern, filepath.Base(port))
		return ok
	}
	return false
}
