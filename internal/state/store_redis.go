package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/genem/simulado/internal/logger"
)

// RedisStore keeps values as plain redis keys under a prefix and publishes
// every write on a pub/sub channel. Each instance subscribes to that channel,
// so writes from other processes reach local watchers.
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	channel string
	origin  string
	hub     *hub
	sub     *redis.PubSub
	wg      sync.WaitGroup
}

func NewRedisStore(ctx context.Context, opts *redis.Options, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = "simulado:"
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := &RedisStore{
		rdb:     rdb,
		prefix:  prefix,
		channel: prefix + "changes",
		origin:  uuid.NewString(),
		hub:     newHub(),
	}
	s.sub = rdb.Subscribe(ctx, s.channel)
	// wait for the subscription confirmation so no write is missed afterwards
	if _, err := s.sub.Receive(ctx); err != nil {
		_ = s.sub.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	s.wg.Add(1)
	go s.forward(s.sub.Channel())
	return s, nil
}

func (s *RedisStore) forward(msgs <-chan *redis.Message) {
	defer s.wg.Done()
	for m := range msgs {
		var c Change
		if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
			logger.Warn("state: bad change payload on %s: %v", s.channel, err)
			continue
		}
		s.hub.publish(c)
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return err
	}
	return s.notify(ctx, Change{Key: key, Value: value, Origin: s.origin})
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return err
	}
	return s.notify(ctx, Change{Key: key, Removed: true, Origin: s.origin})
}

func (s *RedisStore) notify(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		// the value itself is stored; only the fan-out failed
		logger.Warn("state: publish %q: %v", c.Key, err)
	}
	return nil
}

func (s *RedisStore) Watch(key string) (<-chan Change, func()) { return s.hub.watch(key) }

func (s *RedisStore) Origin() string { return s.origin }

func (s *RedisStore) Close() error {
	err := s.sub.Close()
	s.wg.Wait()
	return errors.Join(err, s.rdb.Close())
}
