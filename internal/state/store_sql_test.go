package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/genem/simulado/internal/db"
	"github.com/genem/simulado/internal/state"
)

func TestSQLStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer dbh.Close()

	s := state.NewSQLStore(dbh, string(db.DriverSQLite))
	defer s.Close()
	if err := s.Set(ctx, state.KeyExamID, []byte(`"a"`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, state.KeyExamID, []byte(`"b"`)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, state.KeyExamID)
	if err != nil || !ok || string(v) != `"b"` {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}

	if err := s.Delete(ctx, state.KeyExamID); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, state.KeyExamID); ok {
		t.Fatalf("expected key removed")
	}
}

func TestSQLStore_SiblingSeesChanges(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer dbh.Close()

	tab1 := state.NewSQLStore(dbh, "sqlite")
	defer tab1.Close()
	tab2 := tab1.Sibling()

	v, err := state.NewValue(ctx, state.Store(tab2), state.KeyAppState, "builder")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if err := tab1.Set(ctx, state.KeyAppState, []byte(`"history"`)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for v.Get() != "history" {
		if time.Now().After(deadline) {
			t.Fatalf("sibling value = %q, want history", v.Get())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSQLStore_OtherProcessSeesChangesThroughEventLog(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer dbh.Close()

	// two independent stores stand in for two processes on one database
	writer := state.NewSQLStoreInterval(dbh, "sqlite", 10*time.Millisecond)
	defer writer.Close()
	reader := state.NewSQLStoreInterval(dbh, "sqlite", 10*time.Millisecond)
	defer reader.Close()

	v, err := state.NewValue(ctx, state.Store(reader), state.KeyExamID, "")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if err := writer.Set(ctx, state.KeyExamID, []byte(`"exam-7"`)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for v.Get() != "exam-7" {
		if time.Now().After(deadline) {
			t.Fatalf("reader value = %q, want exam-7", v.Get())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := writer.Delete(ctx, state.KeyExamID); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for v.Get() != "" {
		if time.Now().After(deadline) {
			t.Fatalf("reader value after delete = %q, want initial", v.Get())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
