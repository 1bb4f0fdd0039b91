package simulado

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownFiresOnce(t *testing.T) {
	var fired atomic.Int32
	cd := NewCountdown(3, time.Millisecond, func() { fired.Add(1) })
	cd.Start()

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("fired %d times, want 1", fired.Load())
	}
	if cd.Remaining() != 0 {
		t.Fatalf("remaining = %d", cd.Remaining())
	}
}

func TestStoppedCountdownNeverFires(t *testing.T) {
	var fired atomic.Int32
	cd := NewCountdown(5, time.Millisecond, func() { fired.Add(1) })
	cd.Start()
	cd.Stop()
	cd.Stop()
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("stopped countdown fired")
	}
}

func TestQuestionLetters(t *testing.T) {
	q := Question{Alternatives: []Alternative{{Letter: "A"}, {}, {Letter: "C"}}}
	if q.Letter(1) != "B" || q.Letter(2) != "C" {
		t.Fatalf("letters = %s %s", q.Letter(1), q.Letter(2))
	}
	if q.IndexOf("C") != 2 || q.IndexOf("Z") != -1 {
		t.Fatalf("IndexOf mismatch")
	}
}
