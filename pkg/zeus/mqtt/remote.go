package mqtt

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/golang/glog"
	structpb "github.com/golang/protobuf/ptypes/struct"
)

// DefaultDiscoverTimeout is how long Discover collects retained metas.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// ErrNoReply indicates no answer arrived in time.
var ErrNoReply = errors.New("no reply")

// Remote talks to devices exported by an Exporter.
type Remote struct {
	Queue           *Queue
	Timeout         time.Duration
	DiscoverTimeout time.Duration
}

// NewRemote creates a Remote.
func NewRemote(q *Queue) *Remote {
	return &Remote{Queue: q, Timeout: DefaultTimeout, DiscoverTimeout: DefaultDiscoverTimeout}
}

// Discover returns the metas of exported devices sorted by name.
func (r *Remote) Discover(ctx context.Context) ([]*structpb.Struct, error) {
	found := make(map[string]*structpb.Struct)
	resCh := make(chan *structpb.Struct, 16)
	sub := r.Queue.Sub(TopicMeta, func(topic string, payload []byte) {
		meta, err := Decode(payload)
		if err != nil {
			glog.V(1).Infof("bad meta on %s: %v", topic, err)
			return
		}
		select {
		case resCh <- meta:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	timeout := r.DiscoverTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case meta := <-resCh:
			found[meta.Fields["name"].GetStringValue()] = meta
		case <-timer.C:
			metas := make([]*structpb.Struct, 0, len(found))
			for _, meta := range found {
				metas = append(metas, meta)
			}
			sort.Slice(metas, func(i, j int) bool {
				return metas[i].Fields["name"].GetStringValue() < metas[j].Fields["name"].GetStringValue()
			})
			return metas, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stats waits for the next statistics published by device name.
func (r *Remote) Stats(ctx context.Context, name string) (*structpb.Struct, error) {
	return r.await(ctx, DeviceTopic(TopicStats, name), nil, nil)
}

// Chips queries the per-chip counters of device name.
func (r *Remote) Chips(ctx context.Context, name string) (*structpb.Struct, error) {
	return r.await(ctx, DeviceTopic(TopicChips, name), nil, func() error {
		return r.Queue.Pub(DeviceTopic(TopicQuery, name), []byte(QueryChips), false)
	})
}

// Set applies option=setting on device name and returns the reply.
func (r *Remote) Set(ctx context.Context, name, option, setting string) (*structpb.Struct, error) {
	cmd := option
	if setting != "" {
		cmd += "=" + setting
	}
	return r.await(ctx, DeviceTopic(TopicReply, name),
		func(s *structpb.Struct) bool {
			return s.Fields["option"].GetStringValue() == option
		},
		func() error {
			return r.Queue.Pub(DeviceTopic(TopicSet, name), []byte(cmd), false)
		})
}

// await subscribes topic, runs trigger and waits for the first message
// accepted by match.
func (r *Remote) await(ctx context.Context, topic string, match func(*structpb.Struct) bool, trigger func() error) (*structpb.Struct, error) {
	resCh := make(chan *structpb.Struct, 1)
	sub := r.Queue.Sub(topic, func(topic string, payload []byte) {
		s, err := Decode(payload)
		if err != nil || (match != nil && !match(s)) {
			return
		}
		select {
		case resCh <- s:
		default:
		}
	})
	defer sub.Close()
	if trigger != nil {
		if err := trigger(); err != nil {
			return nil, err
		}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-resCh:
		return s, nil
	case <-timer.C:
		return nil, ErrNoReply
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
