package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/vango-go/zenith/pkg/core/live"
)

// audioIO owns the microphone and speaker devices.
type audioIO struct {
	malgoCtx *malgo.AllocatedContext
	mic      *micReader
	speaker  *speakerSink
}

// openAudio starts capture at micRate and prepares playback at speakerRate,
// both mono s16le.
func openAudio(micRate, speakerRate int) (*audioIO, error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	mic, err := newMicReader(malgoCtx.Context, micRate, 1)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, err
	}

	// 100ms of 16-bit mono at speakerRate.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   speakerRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   speakerRate / 10 * 2,
	})
	if err != nil {
		mic.Close()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	return &audioIO{
		malgoCtx: malgoCtx,
		mic:      mic,
		speaker:  newSpeakerSink(otoCtx),
	}, nil
}

func (a *audioIO) Close() {
	a.mic.Close()
	a.speaker.Close()
	_ = a.malgoCtx.Uninit()
	a.malgoCtx.Free()
}

// micReader exposes microphone PCM as an io.Reader for live.Capture.
type micReader struct {
	device *malgo.Device
	buf    []byte
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

func newMicReader(ctx malgo.Context, sampleRate, channels int) (*micReader, error) {
	m := &micReader{
		buf: make([]byte, 0, sampleRate*2),
	}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.push(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return m, nil
}

func (m *micReader) push(pcm []byte) {
	m.mu.Lock()
	if !m.closed {
		m.buf = append(m.buf, pcm...)
	}
	m.mu.Unlock()
	m.cond.Signal()
}

// Read blocks until samples arrive. It returns io.EOF once closed.
func (m *micReader) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

func (m *micReader) Close() {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
	if already || m.device == nil {
		return
	}
	_ = m.device.Stop()
	m.device.Uninit()
}

// audioPlayer is the part of oto.Player the speaker uses.
type audioPlayer interface {
	Play()
	Close() error
}

// speakerSink is a live.Sink that streams scheduled buffers to oto. The
// scheduler already orders buffers back to back, so PCM is appended as it
// arrives. One player reads from the sink for its whole life.
type speakerSink struct {
	newPlayer func(io.Reader) audioPlayer
	player    audioPlayer
	buf       []byte
	mu        sync.Mutex
	cond      *sync.Cond
	closed    bool
}

var _ live.Sink = (*speakerSink)(nil)

func newSpeakerSink(ctx *oto.Context) *speakerSink {
	s := &speakerSink{}
	if ctx != nil {
		s.newPlayer = func(r io.Reader) audioPlayer { return ctx.NewPlayer(r) }
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *speakerSink) Play(b live.ScheduledBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.buf = append(s.buf, b.PCM...)
	if s.player == nil && s.newPlayer != nil {
		s.player = s.newPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for oto.Player.
func (s *speakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		// Silence lets oto drain after close.
		clear(p)
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Clear drops audio that has not been handed to the device. The player is
// left running; a Read in flight just sees an empty queue.
func (s *speakerSink) Clear() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
}

func (s *speakerSink) Close() {
	s.mu.Lock()
	s.closed = true
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
}

// pending reports the bytes not yet handed to the device.
func (s *speakerSink) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
