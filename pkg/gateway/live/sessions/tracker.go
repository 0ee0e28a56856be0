// Package sessions tracks live relay connections so the gateway can list
// them, and warn, cancel and wait for them while draining.
package sessions

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// Handle is what the relay registers for each connection.
type Handle struct {
	UID       string
	Model     string
	Voice     string
	StartedAt time.Time
	Cancel    func()
	Warn      func(code, message string) error
}

// Info describes one registered live session.
type Info struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid,omitempty"`
	Model     string    `json:"model,omitempty"`
	Voice     string    `json:"voice,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type Tracker struct {
	mu    sync.Mutex
	byID  map[string]*entry
	alive sync.WaitGroup
}

type entry struct {
	id   string
	h    Handle
	done sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]*entry)}
}

// Register adds a session and returns the func that removes it. Registering
// an ID that is already present replaces the older entry.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}
	e := &entry{id: sessionID, h: h}

	t.mu.Lock()
	if t.byID == nil {
		t.byID = make(map[string]*entry)
	}
	prev := t.byID[sessionID]
	t.byID[sessionID] = e
	t.alive.Add(1)
	t.mu.Unlock()

	t.remove(prev)
	return func() { t.remove(e) }
}

func (t *Tracker) remove(e *entry) {
	if e == nil {
		return
	}
	e.done.Do(func() {
		t.mu.Lock()
		if t.byID[e.id] == e {
			delete(t.byID, e.id)
		}
		t.mu.Unlock()
		t.alive.Done()
	})
}

// snapshot copies the entries matching keep so callbacks run unlocked.
func (t *Tracker) snapshot(keep func(*entry) bool) []*entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*entry, 0, len(t.byID))
	for _, e := range t.byID {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// List returns the registered sessions, oldest first. A non-empty uid
// keeps only that user's sessions.
func (t *Tracker) List(uid string) []Info {
	if t == nil {
		return nil
	}
	entries := t.snapshot(func(e *entry) bool { return uid == "" || e.h.UID == uid })
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, Info{ID: e.id, UID: e.h.UID, Model: e.h.Model, Voice: e.h.Voice, StartedAt: e.h.StartedAt})
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// WarnAll sends a warning frame to every session. Write failures are
// ignored; the session's own read loop notices a dead socket.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}
	for _, e := range t.snapshot(func(e *entry) bool { return e.h.Warn != nil }) {
		_ = e.h.Warn(code, message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, e := range t.snapshot(func(e *entry) bool { return e.h.Cancel != nil }) {
		e.h.Cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx ends,
// and reports whether the tracker drained.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	drained := make(chan struct{})
	go func() {
		t.alive.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return true
	case <-ctx.Done():
		return false
	}
}
