package state

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genem/simulado/internal/logger"
	syncx "github.com/genem/simulado/internal/sync"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	eventRetention      = 10 * time.Minute
	pollBatch           = 256
	pruneEvery          = 240 // polls
	// postgres hands out seq values before commit, so a write can become
	// visible after a higher seq already was. The tail re-reads this many
	// seq values behind the newest one it delivered.
	postgresLookback = 128
)

// SQLStore persists values in the app_state table created by db.Open.
// Writes are upserts, so the last writer of a key wins. Each write is also
// appended to event_log; a poller tails the log so writes from other
// processes on the same database are delivered to watchers.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	origin string
	feed   *sqlFeed
}

// sqlFeed is shared by a store and its siblings.
type sqlFeed struct {
	hub      *hub
	events   *syncx.EventRepo
	lookback int64

	mu    sync.Mutex
	local map[string]bool // origins of this process

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewSQLStore starts tailing the event log with the default poll interval.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return NewSQLStoreInterval(db, driver, defaultPollInterval)
}

func NewSQLStoreInterval(db *sql.DB, driver string, poll time.Duration) *SQLStore {
	var lookback int64
	if driver == "postgres" {
		lookback = postgresLookback
	}
	return newSQLStore(db, driver, poll, lookback)
}

func newSQLStore(db *sql.DB, driver string, poll time.Duration, lookback int64) *SQLStore {
	f := &sqlFeed{
		hub:      newHub(),
		events:   syncx.NewEventRepo(db),
		lookback: lookback,
		local:    map[string]bool{},
		stop:     make(chan struct{}),
	}
	s := &SQLStore{db: db, driver: driver, origin: uuid.NewString(), feed: f}
	f.local[s.origin] = true

	f.start(poll)
	return s
}

func (f *sqlFeed) start(poll time.Duration) {
	ctx := context.Background()
	last, err := f.events.Latest(ctx)
	if err != nil {
		logger.Warn("state: reading event log position: %v", err)
	}
	// events already in the window predate this store
	seen := map[int64]bool{}
	if f.lookback > 0 {
		prior, err := f.events.After(ctx, last-f.lookback, int(f.lookback))
		if err != nil {
			logger.Warn("state: reading recent events: %v", err)
		}
		for _, e := range prior {
			seen[e.Seq] = true
		}
	}
	f.wg.Add(1)
	go f.tail(last, seen, poll)
}

// Sibling returns a store over the same DB and notifications with a new origin.
func (s *SQLStore) Sibling() *SQLStore {
	sib := &SQLStore{db: s.db, driver: s.driver, origin: uuid.NewString(), feed: s.feed}
	s.feed.mu.Lock()
	s.feed.local[sib.origin] = true
	s.feed.mu.Unlock()
	return sib
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO app_state (key,value,updated_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`,
			key, string(value), time.Now().UnixMilli()); err != nil {
			return err
		}
		return s.feed.events.Append(ctx, tx, syncx.Event{Origin: s.origin, Key: key, Data: string(value)})
	})
	if err != nil {
		return err
	}
	s.feed.hub.publish(Change{Key: key, Value: append([]byte(nil), value...), Origin: s.origin})
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM app_state WHERE key=$1`, key); err != nil {
			return err
		}
		return s.feed.events.Append(ctx, tx, syncx.Event{Origin: s.origin, Key: key, Removed: true})
	})
	if err != nil {
		return err
	}
	s.feed.hub.publish(Change{Key: key, Removed: true, Origin: s.origin})
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Watch(key string) (<-chan Change, func()) { return s.feed.hub.watch(key) }

func (s *SQLStore) Origin() string { return s.origin }

// Close stops tailing the event log for the store and its siblings. The
// *sql.DB belongs to the caller.
func (s *SQLStore) Close() error {
	s.feed.once.Do(func() { close(s.feed.stop) })
	s.feed.wg.Wait()
	return nil
}

// tail publishes events written by other processes. Events from this
// process were already published when they were written. seen holds the
// delivered seq values inside the lookback window.
func (f *sqlFeed) tail(last int64, seen map[int64]bool, every time.Duration) {
	defer f.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	polls := 0
	for {
		select {
		case <-f.stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every*4+time.Second)
		events, err := f.events.After(ctx, last-f.lookback, pollBatch)
		if err != nil {
			cancel()
			logger.Warn("state: tailing event log: %v", err)
			continue
		}
		for _, e := range events {
			if seen[e.Seq] {
				continue
			}
			seen[e.Seq] = true
			if e.Seq > last {
				last = e.Seq
			}
			f.mu.Lock()
			own := f.local[e.Origin]
			f.mu.Unlock()
			if own {
				continue
			}
			c := Change{Key: e.Key, Removed: e.Removed, Origin: e.Origin}
			if !e.Removed {
				c.Value = []byte(e.Data)
			}
			f.hub.publish(c)
		}
		for seq := range seen {
			if seq <= last-f.lookback {
				delete(seen, seq)
			}
		}
		if polls++; polls%pruneEvery == 0 {
			if err := f.events.Prune(ctx, eventRetention); err != nil {
				logger.Debug("state: pruning event log: %v", err)
			}
		}
		cancel()
	}
}
