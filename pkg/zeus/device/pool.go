package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/zeus.go/pkg/framework"
)

// Pool is a Registry running each registered Driver on a Runner. A
// Driver whose Run returns is removed so its port can be detected again.
type Pool struct {
	runner *fx.Runner

	lock    sync.RWMutex
	drivers map[string]Driver
}

// NewPool creates a Pool running drivers on runner.
func NewPool(runner *fx.Runner) *Pool {
	return &Pool{runner: runner, drivers: make(map[string]Driver)}
}

// Register implements Registry.
func (p *Pool) Register(drv Driver) error {
	p.lock.Lock()
	if _, exist := p.drivers[drv.Path()]; exist {
		p.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, drv.Path())
	}
	p.drivers[drv.Path()] = drv
	p.lock.Unlock()

	p.runner.Go(fx.NamedRun(drv.Name(), fx.RunFunc(func(ctx context.Context) error {
		defer p.remove(drv)
		return drv.Run(ctx)
	})))
	return nil
}

func (p *Pool) remove(drv Driver) {
	p.lock.Lock()
	if p.drivers[drv.Path()] == drv {
		delete(p.drivers, drv.Path())
	}
	p.lock.Unlock()
	glog.V(1).Infof("%s: removed from pool", drv.Name())
}

// Has reports whether a driver on path is registered.
func (p *Pool) Has(path string) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	_, exist := p.drivers[path]
	return exist
}

// Drivers returns the registered drivers sorted by name.
func (p *Pool) Drivers() []Driver {
	p.lock.RLock()
	drivers := make([]Driver, 0, len(p.drivers))
	for _, drv := range p.drivers {
		drivers = append(drivers, drv)
	}
	p.lock.RUnlock()
	sort.Slice(drivers, func(i, j int) bool {
		return drivers[i].Name() < drivers[j].Name()
	})
	return drivers
}

// Find returns the driver with name.
func (p *Pool) Find(name string) Driver {
	p.lock.RLock()
	defer p.lock.RUnlock()
	for _, drv := range p.drivers {
		if drv.Name() == name {
			return drv
		}
	}
	return nil
}

// Shutdown shuts down all registered drivers.
func (p *Pool) Shutdown() {
	for _, drv := range p.Drivers() {
		drv.Shutdown()
	}
}
