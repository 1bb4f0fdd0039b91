package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/genem/simulado/internal/state"
)

func TestRedisStore_PublishesAcrossInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tab1, err := state.NewRedisStore(ctx, &redis.Options{Addr: mr.Addr()}, "test:")
	if err != nil {
		t.Fatalf("tab1: %v", err)
	}
	defer tab1.Close()
	tab2, err := state.NewRedisStore(ctx, &redis.Options{Addr: mr.Addr()}, "test:")
	if err != nil {
		t.Fatalf("tab2: %v", err)
	}
	defer tab2.Close()

	v, err := state.NewValue(ctx, state.Store(tab2), state.KeyExamID, "")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if err := tab1.Set(ctx, state.KeyExamID, []byte(`"exam-42"`)); err != nil {
		t.Fatal(err)
	}
	if got, _ := mr.Get("test:" + state.KeyExamID); got != `"exam-42"` {
		t.Fatalf("raw redis value = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for v.Get() != "exam-42" {
		if time.Now().After(deadline) {
			t.Fatalf("value = %q, want exam-42", v.Get())
		}
		time.Sleep(5 * time.Millisecond)
	}

	raw, ok, err := tab2.Get(ctx, state.KeyExamID)
	if err != nil || !ok || string(raw) != `"exam-42"` {
		t.Fatalf("get = %q %v %v", raw, ok, err)
	}
}
