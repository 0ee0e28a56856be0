package live

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t += d
	c.mu.Unlock()
}

type recordingSink struct {
	mu       sync.Mutex
	played   []ScheduledBuffer
	clears   int
	failNext bool
}

func (s *recordingSink) Play(b ScheduledBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("device gone")
	}
	s.played = append(s.played, b)
	return nil
}

func (s *recordingSink) Clear() {
	s.mu.Lock()
	s.clears++
	s.played = nil
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() ([]ScheduledBuffer, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledBuffer, len(s.played))
	copy(out, s.played)
	return out, s.clears
}

// pcmOf returns silent 24 kHz mono PCM of the given duration.
func pcmOf(d time.Duration) []byte {
	return make([]byte, int(d.Seconds()*24000)*2)
}

func TestScheduler_ChunksPlayBackToBack(t *testing.T) {
	clock := &fakeClock{t: 5 * time.Second}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink, 24000, 1)

	a, _ := s.Enqueue(pcmOf(200 * time.Millisecond))
	b, _ := s.Enqueue(pcmOf(100 * time.Millisecond))

	if a.Start != 5*time.Second {
		t.Fatalf("first start = %v, want clock now", a.Start)
	}
	if a.Duration != 200*time.Millisecond {
		t.Fatalf("first duration = %v", a.Duration)
	}
	if b.Start != a.End() {
		t.Fatalf("second start = %v, want %v", b.Start, a.End())
	}
	if got := s.Pending(); got != 300*time.Millisecond {
		t.Fatalf("pending = %v", got)
	}
	if got := s.Active(); got != 2 {
		t.Fatalf("active = %d", got)
	}

	clock.Advance(250 * time.Millisecond)
	if got := s.Active(); got != 1 {
		t.Fatalf("active after first ended = %d", got)
	}
	played, _ := sink.snapshot()
	if len(played) != 2 || played[0].ID >= played[1].ID {
		t.Fatalf("unexpected sink order %+v", played)
	}
}

func TestScheduler_StartsAtClockAfterUnderrun(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(clock, nil, 24000, 1)

	s.Enqueue(pcmOf(100 * time.Millisecond))
	clock.Advance(time.Second)
	b, _ := s.Enqueue(pcmOf(100 * time.Millisecond))

	if b.Start != time.Second {
		t.Fatalf("start = %v, want now after gap", b.Start)
	}
	if s.Pending() != 100*time.Millisecond {
		t.Fatalf("pending = %v", s.Pending())
	}
}

func TestScheduler_FlushResetsTimeline(t *testing.T) {
	clock := &fakeClock{t: time.Second}
	sink := &recordingSink{}
	s := NewScheduler(clock, sink, 24000, 1)

	s.Enqueue(pcmOf(500 * time.Millisecond))
	s.Enqueue(pcmOf(500 * time.Millisecond))
	s.Flush()

	if s.NextStart() != 0 {
		t.Fatalf("nextStart = %v, want 0", s.NextStart())
	}
	if s.Active() != 0 || s.Pending() != 0 {
		t.Fatalf("active=%d pending=%v after flush", s.Active(), s.Pending())
	}
	played, clears := sink.snapshot()
	if clears != 1 || len(played) != 0 {
		t.Fatalf("sink not cleared: clears=%d played=%d", clears, len(played))
	}

	c, _ := s.Enqueue(pcmOf(100 * time.Millisecond))
	if c.Start != time.Second {
		t.Fatalf("start after flush = %v, want clock now", c.Start)
	}
}

func TestScheduler_SinkErrorIsNotTracked(t *testing.T) {
	sink := &recordingSink{failNext: true}
	s := NewScheduler(&fakeClock{}, sink, 24000, 1)
	if _, err := s.Enqueue(pcmOf(100 * time.Millisecond)); err == nil {
		t.Fatal("expected sink error")
	}
	if s.Active() != 0 {
		t.Fatalf("active = %d", s.Active())
	}
}

func TestScheduler_EnqueueBase64(t *testing.T) {
	s := NewScheduler(&fakeClock{}, nil, 24000, 1)
	b, err := s.EnqueueBase64(EncodeBase64(pcmOf(50 * time.Millisecond)))
	if err != nil {
		t.Fatalf("EnqueueBase64: %v", err)
	}
	if b.Duration != 50*time.Millisecond || len(b.Samples[0]) != 1200 {
		t.Fatalf("unexpected buffer duration=%v samples=%d", b.Duration, len(b.Samples[0]))
	}
	if _, err := s.EnqueueBase64("not base64!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestScheduler_PlayingTracksPlayHead(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(clock, nil, 24000, 1)
	if got := s.Playing(256); got != nil {
		t.Fatalf("idle window = %d bytes", len(got))
	}

	pcm := make([]byte, 2400) // 50ms
	for i := range pcm {
		pcm[i] = byte(i)
	}
	if _, err := s.Enqueue(pcm); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// 10ms in: 240 samples have played.
	clock.Advance(10 * time.Millisecond)
	if got := s.Playing(256); !bytes.Equal(got, pcm[224:480]) {
		t.Fatalf("window = %d bytes, want pcm[224:480]", len(got))
	}
	if got := s.Playing(4096); !bytes.Equal(got, pcm[:480]) {
		t.Fatalf("wide window = %d bytes", len(got))
	}

	clock.Advance(40 * time.Millisecond)
	if got := s.Playing(256); got != nil {
		t.Fatalf("window after end = %d bytes", len(got))
	}
}
