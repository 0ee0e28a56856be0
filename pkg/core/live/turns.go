package live

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TurnReason records why a turn was committed.
type TurnReason string

const (
	TurnReasonComplete TurnReason = "turn_complete"
	TurnReasonSilence  TurnReason = "silence"
	TurnReasonClosed   TurnReason = "closed"
)

// Turn is one committed exchange between the user and the model.
type Turn struct {
	ID          string     `json:"id"`
	UserText    string     `json:"user_text"`
	ModelText   string     `json:"model_text"`
	StartedAt   time.Time  `json:"started_at"`
	CommittedAt time.Time  `json:"committed_at"`
	Reason      TurnReason `json:"reason"`
}

// TurnTracker accumulates partial transcripts for the current turn and
// appends committed turns to a transcript log.
type TurnTracker struct {
	mu           sync.Mutex
	now          func() time.Time
	timeout      time.Duration
	user         strings.Builder
	model        strings.Builder
	startedAt    time.Time
	lastActivity time.Time
	turns        []Turn
}

// NewTurnTracker creates a tracker that treats silenceTimeout without any
// transcript as the end of a turn. A nil now uses time.Now.
func NewTurnTracker(silenceTimeout time.Duration, now func() time.Time) *TurnTracker {
	if now == nil {
		now = time.Now
	}
	return &TurnTracker{now: now, timeout: silenceTimeout}
}

// AddInput appends a fragment of user transcript.
func (t *TurnTracker) AddInput(text string) {
	t.add(&t.user, text)
}

// AddOutput appends a fragment of model transcript.
func (t *TurnTracker) AddOutput(text string) {
	t.add(&t.model, text)
}

func (t *TurnTracker) add(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.startedAt.IsZero() {
		t.startedAt = now
	}
	t.lastActivity = now
	b.WriteString(text)
}

// Pending returns the uncommitted user and model text.
func (t *TurnTracker) Pending() (user, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.user.String()), strings.TrimSpace(t.model.String())
}

// Commit closes the current turn. Empty turns are discarded and reported
// as not committed.
func (t *TurnTracker) Commit(reason TurnReason) (Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitLocked(reason)
}

// CommitIfSilent commits the current turn when no transcript has arrived
// within the silence timeout.
func (t *TurnTracker) CommitIfSilent() (Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timeout <= 0 || t.lastActivity.IsZero() {
		return Turn{}, false
	}
	if t.now().Sub(t.lastActivity) < t.timeout {
		return Turn{}, false
	}
	return t.commitLocked(TurnReasonSilence)
}

func (t *TurnTracker) commitLocked(reason TurnReason) (Turn, bool) {
	user := strings.TrimSpace(t.user.String())
	model := strings.TrimSpace(t.model.String())
	started := t.startedAt

	t.user.Reset()
	t.model.Reset()
	t.startedAt = time.Time{}
	t.lastActivity = time.Time{}

	if user == "" && model == "" {
		return Turn{}, false
	}
	turn := Turn{
		ID:          uuid.NewString(),
		UserText:    user,
		ModelText:   model,
		StartedAt:   started,
		CommittedAt: t.now(),
		Reason:      reason,
	}
	t.turns = append(t.turns, turn)
	return turn, true
}

// Turns returns a copy of the transcript log.
func (t *TurnTracker) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}
