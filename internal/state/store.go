// Package state keeps the client's session state in a persisted key-value
// store and fans out change notifications, so a value written by one
// process (or another store instance over the same backend) is seen by the
// others.
package state

import (
	"context"
	"errors"
	"sync"

	"github.com/genem/simulado/internal/logger"
)

// Well-known keys.
const (
	KeyAppState        = "genem-app-state"
	KeyCurrentSimulado = "genem-current-simulado"
	KeySimuladoConfig  = "genem-simulado-config"
	KeyExamDetails     = "genem-exam-details"
	KeyExamID          = "genem-exam-id"
	KeyAnswers         = "genem-answers"
	KeyAccessToken     = "access_token"
)

// SessionKeys are cleared together when a new simulado starts.
var SessionKeys = []string{
	KeyAppState,
	KeyCurrentSimulado,
	KeySimuladoConfig,
	KeyExamDetails,
	KeyExamID,
	KeyAnswers,
}

// Change describes a write observed on a key. Removed is set for deletes.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Removed bool   `json:"removed,omitempty"`
	Origin  string `json:"origin"`
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch delivers changes to key until the returned cancel func is called.
	Watch(key string) (<-chan Change, func())
	// Origin identifies this store instance in the Changes it produces.
	Origin() string
	Close() error
}

// ClearSession removes every session key, continuing past failures.
func ClearSession(ctx context.Context, s Store) error {
	var errs []error
	for _, k := range SessionKeys {
		if err := s.Delete(ctx, k); err != nil {
			logger.Warn("state: removing %q: %v", k, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const watchBuffer = 16

// hub is the in-process fan-out used by every backend.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Change
	next int
}

func newHub() *hub { return &hub{subs: map[string]map[int]chan Change{}} }

func (h *hub) watch(key string) (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Change, watchBuffer)
	if h.subs[key] == nil {
		h.subs[key] = map[int]chan Change{}
	}
	h.subs[key][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			close(ch)
		})
	}
}

func (h *hub) publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[c.Key] {
		select {
		case ch <- c:
		default:
			logger.Warn("state: watcher of %q is slow, dropping change", c.Key)
		}
	}
}
