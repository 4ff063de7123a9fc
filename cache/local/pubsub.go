package local

import (
	"context"
	"sync"
	"sync/atomic"
)

// Message is an in-process pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan Message
	channels []string
}

// PubSub is an in-process fan-out pub/sub.
type PubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	bufSize int
	dropped atomic.Int64
}

// NewPubSub creates a PubSub with bufSize messages of buffer per
// subscriber (256 by default).
func NewPubSub(bufSize int) *PubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &PubSub{
		subs:    make(map[string]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

// Publish hands message to every subscriber of channel without blocking.
// A subscriber with a full buffer misses the message.
func (ps *PubSub) Publish(_ context.Context, channel, message string) error {
	msg := Message{Channel: channel, Payload: message}
	// The read lock is held while sending so no subscriber channel can be
	// closed underneath us.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for s := range ps.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			ps.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many deliveries were lost to full buffers.
func (ps *PubSub) Dropped() int64 { return ps.dropped.Load() }

// Subscribe registers for channels. The subscription is live when
// Subscribe returns and ends when ctx is done or cancel is called; either
// way the message channel is closed.
func (ps *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, func(), error) {
	s := &subscription{ch: make(chan Message, ps.bufSize), channels: channels}

	ps.mu.Lock()
	for _, name := range channels {
		set := ps.subs[name]
		if set == nil {
			set = make(map[*subscription]struct{})
			ps.subs[name] = set
		}
		set[s] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			for _, name := range s.channels {
				delete(ps.subs[name], s)
				if len(ps.subs[name]) == 0 {
					delete(ps.subs, name)
				}
			}
			close(s.ch)
			ps.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, cancel)
	return s.ch, cancel, nil
}
