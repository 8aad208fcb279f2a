package device

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/serial"
)

// Detector probes ports for Zeus chains and registers what it finds.
type Detector struct {
	Opener       serial.Opener
	Host         Host
	Registry     Registry
	ChipCountMax *calib.ChipCountMax

	ChipCount   int
	ClockMHz    int
	Calibration calib.Options
	Reopen      ReopenPolicy
	Debug       bool

	lock   sync.Mutex
	nextID int
}

// DetectOne probes the chain on path. On success the Device is registered
// and returned. Nothing is registered when any step fails.
func (d *Detector) DetectOne(ctx context.Context, path string, phase Phase) (*Device, error) {
	if d.ChipCountMax == nil {
		d.ChipCountMax = &calib.ChipCountMax{}
	}
	cfg, err := calib.NewDeviceConfig(d.ChipCount, d.ClockMHz, d.ChipCountMax)
	if err != nil {
		glog.Errorf("Zeus Detect: invalid chain config for %s: %v", path, err)
		return nil, err
	}

	if phase == PhaseStartup {
		glog.Infof("Zeus Detect: attempting to open %s", path)
	} else {
		glog.V(2).Infof("Zeus Detect: attempting to open %s", path)
	}
	port, err := d.Opener.Open(path, cfg.Baud)
	if err != nil {
		if phase == PhaseStartup {
			glog.Errorf("Zeus Detect: failed to open %s: %v", path, err)
		}
		return nil, err
	}
	res, err := calib.Calibrate(ctx, port, cfg, d.Calibration)
	port.Close()
	if err != nil {
		glog.Errorf("Zeus Detect: test failed at %s: %v", path, err)
		return nil, err
	}

	d.lock.Lock()
	id := d.nextID
	d.nextID++
	d.lock.Unlock()

	dev := New(id, path, cfg, res, d.Host, d.Opener)
	dev.Reopen = d.Reopen
	dev.Debug = d.Debug
	glog.Infof("Found Zeus at %s, mark as %d", path, id)
	glog.Infof("%s: Init: baud=%d cores_per_chip=%d chips_count=%d",
		dev, cfg.Baud, cfg.CoresPerChip, cfg.ChipCount)
	glog.Infof("%s: Init: chips_count_max=%d chips_bit_num=%d freq=%d MHz",
		dev, cfg.ChipCountMax, cfg.ChipBitCount, cfg.ClockMHz)
	glog.Infof("%s: Init: golden_speed_per_core=%d work_timeout=%v read_count=%d",
		dev, res.GoldenSpeedPerCore, res.WorkTimeout, res.ReadCount)

	if d.Registry != nil {
		if err := d.Registry.Register(dev); err != nil {
			glog.Errorf("Zeus Detect: register %s: %v", path, err)
			return nil, err
		}
	}
	return dev, nil
}

// Detect probes each of paths and returns the detected devices.
func (d *Detector) Detect(ctx context.Context, phase Phase, paths ...string) []*Device {
	var found []*Device
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if dev, err := d.DetectOne(ctx, path, phase); err == nil {
			found = append(found, dev)
		}
	}
	return found
}
