package state

import (
	"context"
	"testing"
	"time"
)

type countingStore struct {
	*MemoryStore
	sets, deletes int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.sets++
	return c.MemoryStore.Set(ctx, key, value)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.deletes++
	return c.MemoryStore.Delete(ctx, key)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestValue_LoadsInitialAndPersists(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	v, err := NewValue(ctx, st, KeyExamID, "")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if got := v.Get(); got != "" {
		t.Fatalf("initial = %q", got)
	}
	if err := v.Set(ctx, "exam-1"); err != nil {
		t.Fatal(err)
	}

	// a fresh value over the same store sees the persisted data
	again, err := NewValue(ctx, st, KeyExamID, "")
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	if got := again.Get(); got != "exam-1" {
		t.Fatalf("reloaded = %q, want exam-1", got)
	}
}

func TestValue_SkipsUnchangedWrites(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryStore: NewMemoryStore()}

	v, err := NewValue(ctx, Store(st), KeyAnswers, map[string]int{})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	_ = v.Set(ctx, map[string]int{"q1": 2})
	_ = v.Set(ctx, map[string]int{"q1": 2})
	if st.sets != 1 {
		t.Fatalf("sets = %d, want 1", st.sets)
	}
}

func TestValue_NullRemovesKey(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryStore: NewMemoryStore()}

	type cfg struct{ TotalQuestions int }
	v, err := NewValue[*cfg](ctx, st, KeySimuladoConfig, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	_ = v.Set(ctx, &cfg{TotalQuestions: 10})
	if err := v.Set(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if st.deletes != 1 {
		t.Fatalf("deletes = %d, want 1", st.deletes)
	}
	if _, ok, _ := st.Get(ctx, KeySimuladoConfig); ok {
		t.Fatalf("key still present after null write")
	}
}

func TestValue_FollowsSiblingWrites(t *testing.T) {
	ctx := context.Background()
	tab1 := NewMemoryStore()
	tab2 := tab1.Sibling()

	a, _ := NewValue(ctx, Store(tab1), KeyAppState, "builder")
	defer a.Close()
	b, _ := NewValue(ctx, Store(tab2), KeyAppState, "builder")
	defer b.Close()

	if err := a.Set(ctx, "simulado"); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return b.Get() == "simulado" })

	if err := tab1.Delete(ctx, KeyAppState); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return b.Get() == "builder" })
}

func TestClearSession_RemovesAllSessionKeys(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	for _, k := range SessionKeys {
		_ = st.Set(ctx, k, []byte(`"x"`))
	}
	_ = st.Set(ctx, KeyAccessToken, []byte(`"tok"`))

	if err := ClearSession(ctx, st); err != nil {
		t.Fatal(err)
	}
	for _, k := range SessionKeys {
		if _, ok, _ := st.Get(ctx, k); ok {
			t.Fatalf("%s not cleared", k)
		}
	}
	if _, ok, _ := st.Get(ctx, KeyAccessToken); !ok {
		t.Fatalf("access token must survive a session reset")
	}
}

func TestValue_ResetRemovesKey(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	v, err := NewValue(ctx, Store(st), KeyExamID, "")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	_ = v.Set(ctx, "exam-9")
	if err := v.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if v.Get() != "" {
		t.Fatalf("after reset = %q", v.Get())
	}
	if _, ok, _ := st.Get(ctx, KeyExamID); ok {
		t.Fatalf("key still stored after reset")
	}
}
