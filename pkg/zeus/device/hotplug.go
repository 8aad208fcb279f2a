package device

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Hotplug periodically lists ports and detects chains on new ones.
type Hotplug struct {
	Detector *Detector
	// Known reports whether a driver already serves path.
	Known    func(path string) bool
	List     func() ([]string, error)
	Interval time.Duration
}

// Run implements Runnable.
func (h *Hotplug) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Scan(ctx)
		}
	}
}

// Scan probes every listed port not yet served.
func (h *Hotplug) Scan(ctx context.Context) {
	paths, err := h.List()
	if err != nil {
		glog.V(2).Infof("Zeus Hotplug: list ports: %v", err)
		return
	}
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if h.Known != nil && h.Known(path) {
			continue
		}
		h.Detector.DetectOne(ctx, path, PhaseHotplug)
	}
}
