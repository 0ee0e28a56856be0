package live

import (
	"sync"
	"time"
)

// Clock is a monotonic playback clock measured from an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

type monotonicClock struct {
	origin time.Time
}

// NewMonotonicClock returns a Clock starting at zero now.
func NewMonotonicClock() Clock {
	return &monotonicClock{origin: time.Now()}
}

func (c *monotonicClock) Now() time.Duration { return time.Since(c.origin) }

// ScheduledBuffer is a decoded chunk of model audio placed on the timeline.
type ScheduledBuffer struct {
	ID       uint64
	Samples  [][]float32
	PCM      []byte
	Start    time.Duration
	Duration time.Duration
}

// End returns the time at which the buffer finishes playing.
func (b ScheduledBuffer) End() time.Duration { return b.Start + b.Duration }

// Sink receives scheduled buffers. Play must not block for the duration of
// the audio. Clear drops everything handed to the sink that has not played.
type Sink interface {
	Play(buf ScheduledBuffer) error
	Clear()
}

// NopSink discards audio.
type NopSink struct{}

func (NopSink) Play(ScheduledBuffer) error { return nil }
func (NopSink) Clear()                     {}

// Scheduler places model audio chunks back to back on a Clock so that
// consecutive chunks never overlap or leave gaps while data keeps arriving.
type Scheduler struct {
	mu        sync.Mutex
	clock     Clock
	sink      Sink
	format    AudioConfig
	nextStart time.Duration
	active    map[uint64]ScheduledBuffer
	seq       uint64
}

// NewScheduler creates a Scheduler for PCM at sampleRate with channels.
func NewScheduler(clock Clock, sink Sink, sampleRate, channels int) *Scheduler {
	if clock == nil {
		clock = NewMonotonicClock()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		format: AudioConfig{SampleRate: sampleRate, Channels: channels, BitsPerSample: 16},
		active: make(map[uint64]ScheduledBuffer),
	}
}

// Enqueue decodes a PCM chunk and schedules it at max(nextStart, now).
func (s *Scheduler) Enqueue(pcm []byte) (ScheduledBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.pruneLocked(now)

	start := max(s.nextStart, now)
	s.seq++
	buf := ScheduledBuffer{
		ID:       s.seq,
		Samples:  DecodePCM16(pcm, s.format.Channels),
		PCM:      pcm,
		Start:    start,
		Duration: s.format.Duration(len(pcm) - len(pcm)%(2*s.format.Channels)),
	}
	s.nextStart = buf.End()
	s.active[buf.ID] = buf

	if err := s.sink.Play(buf); err != nil {
		delete(s.active, buf.ID)
		return buf, err
	}
	return buf, nil
}

// EnqueueBase64 decodes a base64 payload and schedules it.
func (s *Scheduler) EnqueueBase64(payload string) (ScheduledBuffer, error) {
	pcm, err := DecodeBase64(payload)
	if err != nil {
		return ScheduledBuffer{}, err
	}
	return s.Enqueue(pcm)
}

// Flush stops every active and pending buffer and rewinds the timeline so
// the next chunk starts immediately.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Clear()
	clear(s.active)
	s.nextStart = 0
}

// Active returns the number of buffers that have not finished playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
	return len(s.active)
}

// Pending returns how much scheduled audio remains ahead of the clock.
func (s *Scheduler) Pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem := s.nextStart - s.clock.Now(); rem > 0 {
		return rem
	}
	return 0
}

// Playing returns up to n bytes of the buffer under the play head, ending at
// the clock's current position. It is nil when nothing is playing.
func (s *Scheduler) Playing(n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.pruneLocked(now)

	frame := 2 * s.format.Channels
	for _, b := range s.active {
		if now < b.Start {
			continue
		}
		elapsed := int64(now-b.Start) * int64(s.format.SampleRate) / int64(time.Second)
		end := min(int(elapsed)*frame, len(b.PCM)-len(b.PCM)%frame)
		from := max(0, end-n)
		from -= from % frame
		return b.PCM[from:end]
	}
	return nil
}

// NextStart returns the time the next chunk would start at, ignoring the clock.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

func (s *Scheduler) pruneLocked(now time.Duration) {
	for id, b := range s.active {
		if b.End() <= now {
			delete(s.active, id)
		}
	}
}
