package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/guildbank/cache/local"
	cacheredis "github.com/kasuganosora/guildbank/cache/redis"
)

// Cache defines the KV and Set operations shared by the local and Redis
// backends. Sessions, presence and the daily reset marker live here.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
}

// IsNotFound reports whether err is a backend's missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations. Subscribe returns
// once the subscription is live; the message channel is closed when ctx is
// done or cancel is called.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (msgs <-chan *Message, cancel func(), err error)
}

// Config selects and tunes the backend.
type Config struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	LocalGCInterval time.Duration
	LocalPubSubBuf  int
}

// Backend is an opened cache together with its pub/sub.
type Backend struct {
	Cache  Cache
	PubSub PubSub
	close  func() error
}

// Close releases the backend's connections and goroutines.
func (b *Backend) Close() error { return b.close() }

// Open returns a Redis backend when cfg.RedisAddr is set, sharing one
// connection pool between keys and pub/sub. Otherwise everything stays
// in-process, which only suits a single node.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.RedisAddr != "" {
		client, err := cacheredis.Dial(ctx, cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Cache: client, PubSub: redisPubSub{client}, close: client.Close}, nil
	}
	c := local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
	return &Backend{Cache: c, PubSub: localPubSub{local.NewPubSub(cfg.LocalPubSubBuf)}, close: c.Close}, nil
}

// relay converts a backend's message stream to *Message. stop ends the
// relay even if nobody drains it any more.
func relay[T any](in <-chan T, cancel func(), conv func(T) *Message) (<-chan *Message, func()) {
	out := make(chan *Message, cap(in))
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	go func() {
		defer close(out)
		for m := range in {
			select {
			case out <- conv(m):
			case <-done:
				return
			}
		}
	}()
	return out, stop
}

type localPubSub struct{ ps *local.PubSub }

func (a localPubSub) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a localPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out, stop := relay(in, cancel, func(m local.Message) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	})
	return out, stop, nil
}

type redisPubSub struct{ c *cacheredis.Client }

func (a redisPubSub) Publish(ctx context.Context, channel, message string) error {
	return a.c.Publish(ctx, channel, message)
}

func (a redisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.c.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out, stop := relay(in, cancel, func(m cacheredis.Message) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	})
	return out, stop, nil
}
