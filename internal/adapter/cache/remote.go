package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Remote wraps a NATS JetStream KeyValue store as an L2 cache shared across
// instances. TTL is managed at bucket level.
type Remote struct {
	kv jetstream.KeyValue
}

// NewRemote creates a NATS KV-backed cache.
func NewRemote(kv jetstream.KeyValue) *Remote {
	return &Remote{kv: kv}
}

func (r *Remote) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := r.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

func (r *Remote) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := r.kv.Put(ctx, key, value)
	return err
}

func (r *Remote) Delete(ctx context.Context, key string) error {
	err := r.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
