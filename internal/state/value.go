package state

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/genem/simulado/internal/logger"
)

var jsonNull = []byte("null")

// Value is a typed JSON value bound to one key. It caches the decoded value,
// writes through on Set and follows writes made by other store instances.
//
// Values of reference types (slices, maps) are shared with callers; treat
// what Get returns as read-only.
type Value[T any] struct {
	store   Store
	key     string
	initial T

	mu      sync.RWMutex
	cur     T
	encoded []byte

	stop func()
	done chan struct{}
}

// NewValue loads key from store, falling back to initial when the key is
// missing or cannot be decoded.
func NewValue[T any](ctx context.Context, store Store, key string, initial T) (*Value[T], error) {
	v := &Value[T]{store: store, key: key, initial: initial, cur: initial, done: make(chan struct{})}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		var decoded T
		if err := json.Unmarshal(raw, &decoded); err != nil {
			logger.Warn("state: reading %q: %v", key, err)
		} else {
			v.cur, v.encoded = decoded, raw
		}
	}
	ch, stop := store.Watch(key)
	v.stop = stop
	go v.follow(ch)
	return v, nil
}

func (v *Value[T]) Key() string { return v.key }

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set stores val. Writes whose encoding equals the current one are skipped;
// a value that encodes to JSON null removes the key.
func (v *Value[T]) Set(ctx context.Context, val T) error {
	enc, err := json.Marshal(val)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.encoded != nil && bytes.Equal(enc, v.encoded) {
		return nil
	}
	if bytes.Equal(enc, jsonNull) {
		if err := v.store.Delete(ctx, v.key); err != nil {
			return err
		}
		v.cur, v.encoded = val, nil
		return nil
	}
	if err := v.store.Set(ctx, v.key, enc); err != nil {
		return err
	}
	v.cur, v.encoded = val, enc
	return nil
}

// Update applies fn to the current value and stores the result.
func (v *Value[T]) Update(ctx context.Context, fn func(T) T) error {
	return v.Set(ctx, fn(v.Get()))
}

// Reset removes the key, so every reader falls back to the initial value.
func (v *Value[T]) Reset(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Delete(ctx, v.key); err != nil {
		return err
	}
	v.cur, v.encoded = v.initial, nil
	return nil
}

// Close stops following external changes.
func (v *Value[T]) Close() {
	v.stop()
	<-v.done
}

func (v *Value[T]) follow(ch <-chan Change) {
	defer close(v.done)
	for c := range ch {
		if c.Origin == v.store.Origin() {
			continue
		}
		v.apply(c)
	}
}

func (v *Value[T]) apply(c Change) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c.Removed {
		v.cur, v.encoded = v.initial, nil
		return
	}
	var decoded T
	if err := json.Unmarshal(c.Value, &decoded); err != nil {
		logger.Warn("state: parsing external value for %q: %v", v.key, err)
		return
	}
	v.cur, v.encoded = decoded, append([]byte(nil), c.Value...)
}
