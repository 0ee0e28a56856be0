package live

import (
	"testing"
	"time"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time { return c.t }

func TestTurnTracker_CommitOnTurnComplete(t *testing.T) {
	clk := &stepClock{t: time.Unix(1000, 0)}
	tr := NewTurnTracker(1500*time.Millisecond, clk.Now)

	tr.AddInput("What is ")
	clk.t = clk.t.Add(100 * time.Millisecond)
	tr.AddInput("the weather?")
	tr.AddOutput(" Sunny ")
	tr.AddOutput("today.")

	user, model := tr.Pending()
	if user != "What is the weather?" || model != "Sunny today." {
		t.Fatalf("pending = %q / %q", user, model)
	}

	clk.t = clk.t.Add(time.Second)
	turn, ok := tr.Commit(TurnReasonComplete)
	if !ok {
		t.Fatal("expected commit")
	}
	if turn.UserText != "What is the weather?" || turn.ModelText != "Sunny today." {
		t.Fatalf("turn = %+v", turn)
	}
	if !turn.StartedAt.Equal(time.Unix(1000, 0)) || !turn.CommittedAt.Equal(clk.t) {
		t.Fatalf("timestamps = %v / %v", turn.StartedAt, turn.CommittedAt)
	}
	if turn.Reason != TurnReasonComplete || turn.ID == "" {
		t.Fatalf("turn = %+v", turn)
	}

	if u, m := tr.Pending(); u != "" || m != "" {
		t.Fatalf("pending not reset: %q / %q", u, m)
	}
	if got := tr.Turns(); len(got) != 1 || got[0].ID != turn.ID {
		t.Fatalf("turns = %+v", got)
	}
}

func TestTurnTracker_EmptyTurnsAreNeverCommitted(t *testing.T) {
	tr := NewTurnTracker(time.Second, nil)
	if _, ok := tr.Commit(TurnReasonComplete); ok {
		t.Fatal("empty turn committed")
	}
	tr.AddInput("   ")
	if _, ok := tr.Commit(TurnReasonClosed); ok {
		t.Fatal("whitespace turn committed")
	}
	if len(tr.Turns()) != 0 {
		t.Fatal("log should be empty")
	}
}

func TestTurnTracker_SilenceTimeout(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0)}
	tr := NewTurnTracker(1500*time.Millisecond, clk.Now)

	if _, ok := tr.CommitIfSilent(); ok {
		t.Fatal("nothing to commit yet")
	}

	tr.AddOutput("Hello there.")
	clk.t = clk.t.Add(time.Second)
	if _, ok := tr.CommitIfSilent(); ok {
		t.Fatal("committed before timeout")
	}

	tr.AddOutput(" Anything else?")
	clk.t = clk.t.Add(1499 * time.Millisecond)
	if _, ok := tr.CommitIfSilent(); ok {
		t.Fatal("new transcript should extend the turn")
	}

	clk.t = clk.t.Add(time.Millisecond)
	turn, ok := tr.CommitIfSilent()
	if !ok || turn.Reason != TurnReasonSilence || turn.ModelText != "Hello there. Anything else?" {
		t.Fatalf("turn = %+v ok=%v", turn, ok)
	}
}
