package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_DrainRecordsFirstCall(t *testing.T) {
	start := time.Unix(1_760_000_000, 0)
	l := New(start)

	if l.IsDraining() || l.DrainingFor(start.Add(time.Minute)) != 0 {
		t.Fatal("new lifecycle should be serving")
	}
	if !l.BeginDrain(start.Add(30 * time.Second)) {
		t.Fatal("first BeginDrain should start the drain")
	}
	if l.BeginDrain(start.Add(40 * time.Second)) {
		t.Fatal("second BeginDrain should be a no-op")
	}
	now := start.Add(45 * time.Second)
	if got := l.DrainingFor(now); got != 15*time.Second {
		t.Fatalf("DrainingFor=%v", got)
	}
	if got := l.Uptime(now); got != 45*time.Second {
		t.Fatalf("Uptime=%v", got)
	}
}

func TestLifecycle_NilIsServing(t *testing.T) {
	var l *Lifecycle
	now := time.Now()
	if l.BeginDrain(now) || l.IsDraining() || l.DrainingFor(now) != 0 || l.Uptime(now) != 0 {
		t.Fatal("nil lifecycle should be inert")
	}
}
