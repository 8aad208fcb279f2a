package mqtt

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/zeus.go/pkg/zeus/device"
)

// Topics relative to the queue prefix; + is the device name.
const (
	TopicStats = "+/stats"
	TopicMeta  = "+/meta"
	TopicSet   = "+/set"
	TopicReply = "+/reply"
	TopicQuery = "+/query"
	TopicChips = "+/chips"
)

// QueryChips is the query payload answered on TopicChips.
const QueryChips = "chips"

// DeviceTopic returns the topic pattern resolved for device name.
func DeviceTopic(pattern, name string) string {
	return strings.Replace(pattern, "+", name, 1)
}

// DeviceName extracts the device name from a device topic.
func DeviceName(topic string) string {
	if pos := strings.IndexByte(topic, '/'); pos > 0 {
		return topic[:pos]
	}
	return topic
}

// Source provides the drivers to export.
type Source interface {
	Drivers() []device.Driver
	Find(name string) device.Driver
}

// Exporter periodically publishes statistics of each driver and applies
// set commands and queries received for them.
type Exporter struct {
	Queue    *Queue
	Source   Source
	Interval time.Duration

	metas  map[string]bool
	hashes map[string]uint64
}

// NewExporter creates an Exporter.
func NewExporter(q *Queue, src Source, interval time.Duration) *Exporter {
	return &Exporter{Queue: q, Source: src, Interval: interval}
}

// Run implements Runnable.
func (e *Exporter) Run(ctx context.Context) error {
	setSub := e.Queue.Sub(TopicSet, e.handleSet)
	defer setSub.Close()
	querySub := e.Queue.Sub(TopicQuery, e.handleQuery)
	defer querySub.Close()
	interval := e.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Publish()
		}
	}
}

// Publish publishes statistics of all drivers, and the retained meta of
// drivers not seen before. The hashes field accumulates ScanWork.
func (e *Exporter) Publish() {
	if e.metas == nil {
		e.metas = make(map[string]bool)
		e.hashes = make(map[string]uint64)
	}
	for _, drv := range e.Source.Drivers() {
		name := drv.Name()
		if !e.metas[name] {
			if err := e.publish(DeviceTopic(TopicMeta, name), metaStruct(drv), true); err == nil {
				e.metas[name] = true
			}
		}
		e.hashes[name] += uint64(drv.ScanWork())
		s := StatsStruct(drv.Stats(), drv.Statline())
		s.Fields["hashes"] = numberValue(float64(e.hashes[name]))
		e.publish(DeviceTopic(TopicStats, name), s, false)
	}
}

func (e *Exporter) publish(topic string, s *structpb.Struct, retain bool) error {
	payload, err := Encode(s)
	if err == nil {
		err = e.Queue.Pub(topic, payload, retain)
	}
	if err != nil {
		glog.Warningf("publish %s: %v", topic, err)
	}
	return err
}

func metaStruct(drv device.Driver) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name": stringValue(drv.Name()),
		"path": stringValue(drv.Path()),
	}}
}

func (e *Exporter) handleSet(topic string, payload []byte) {
	name := DeviceName(topic)
	drv := e.Source.Find(name)
	if drv == nil {
		glog.V(1).Infof("set for unknown device %s", name)
		return
	}
	option, setting := ParseSet(payload)
	reply, err := drv.SetDevice(option, setting)
	if err != nil {
		glog.Warningf("%s: set %s=%s: %v", name, option, setting, err)
	} else {
		glog.Infof("%s: set %s=%s", name, option, setting)
	}
	e.publish(DeviceTopic(TopicReply, name), ReplyStruct(option, reply, err), false)
}

func (e *Exporter) handleQuery(topic string, payload []byte) {
	name := DeviceName(topic)
	drv := e.Source.Find(name)
	if drv == nil {
		glog.V(1).Infof("query for unknown device %s", name)
		return
	}
	switch query := strings.TrimSpace(string(payload)); query {
	case QueryChips:
		e.publish(DeviceTopic(TopicChips, name), ChipsStruct(drv), false)
	default:
		glog.V(1).Infof("%s: unknown query %q", name, query)
	}
}
