package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/golang/glog"

	fx "github.com/robotalks/zeus.go/pkg/framework"
	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/config"
	"github.com/robotalks/zeus.go/pkg/zeus/device"
	"github.com/robotalks/zeus.go/pkg/zeus/mqtt"
	"github.com/robotalks/zeus.go/pkg/zeus/relay"
	"github.com/robotalks/zeus.go/pkg/zeus/serial"
)

func init() {
	config.SetupFlags()
}

func openWork(path string) (io.ReadCloser, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

func openResults(path string) (io.WriteCloser, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := config.Default()
	if err := conf.Resolve(); err != nil {
		glog.Exit(err)
	}

	in, err := openWork(conf.Work)
	if err != nil {
		glog.Exitf("open work: %v", err)
	}
	defer in.Close()
	out, err := openResults(conf.Results)
	if err != nil {
		glog.Exitf("open results: %v", err)
	}
	defer out.Close()

	runner := fx.NewRunner().HandleSignals()
	pool := device.NewPool(runner)
	host := relay.New(in, out, relay.DefaultDepth)
	host.Flusher = pool

	det := &device.Detector{
		Opener:       &serial.Bugst{ReadTimeout: conf.ReadTimeout, Purge: true},
		Host:         host,
		Registry:     pool,
		ChipCountMax: &calib.ChipCountMax{},
		ChipCount:    conf.ChipCount,
		ClockMHz:     conf.ClockMHz,
		Calibration: calib.Options{
			SkipSelfTest: conf.SkipGoldenCheck,
			Settle:       conf.Settle,
		},
		Reopen: conf.Reopen.Policy(),
		Debug:  conf.Debug,
	}
	listPorts := func() ([]string, error) {
		return serial.List(conf.Ports...)
	}

	ports, err := listPorts()
	if err != nil {
		glog.Errorf("list ports: %v", err)
	}
	found := det.Detect(runner.Context, device.PhaseStartup, ports...)
	if len(found) == 0 && conf.HotplugInterval <= 0 {
		glog.Exit("no Zeus devices found")
	}
	glog.Infof("%d Zeus devices found", len(found))

	runner.Go(fx.NamedRun("relay", host))
	if conf.HotplugInterval > 0 {
		runner.Go(fx.NamedRun("hotplug", &device.Hotplug{
			Detector: det,
			Known:    pool.Has,
			List:     listPorts,
			Interval: conf.HotplugInterval,
		}))
	}
	if conf.MQTT != "" {
		q, err := mqtt.NewQueueFromURL(conf.MQTT, mqtt.ClientID("zeusd"))
		if err != nil {
			glog.Exitf("mqtt: %v", err)
		}
		if err := q.Connect(); err != nil {
			glog.Exitf("connect %s: %v", conf.MQTT, err)
		}
		defer q.Close()
		runner.Go(fx.NamedRun("mqtt", mqtt.NewExporter(q, pool, conf.StatsInterval)))
	}

	go func(ctx context.Context) {
		<-ctx.Done()
		pool.Shutdown()
	}(runner.Context)

	if err := runner.Wait(); err != nil {
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}
