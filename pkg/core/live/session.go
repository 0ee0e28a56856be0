package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotActive is returned by send operations outside the active phase.
	ErrNotActive = errors.New("live: session is not active")

	// ErrAlreadyStarted is returned by Start outside the idle and error phases.
	ErrAlreadyStarted = errors.New("live: session already started")
)

// Session is the live session controller. It owns the connection, routes
// model audio to the playback scheduler and transcripts to the turn
// tracker, and publishes events.
type Session struct {
	config SessionConfig
	dialer Dialer
	logger *slog.Logger
	clock  Clock
	now    func() time.Time

	playback *Scheduler
	turns    *TurnTracker
	meter    *Meter

	mu           sync.Mutex
	phase        Phase
	conn         Conn
	cancel       context.CancelFunc
	recvDone     chan struct{}
	latency      time.Duration
	visionCancel context.CancelFunc
	captureStop  context.CancelFunc

	events chan Event
}

type sessionOptions struct {
	logger     *slog.Logger
	clock      Clock
	sink       Sink
	now        func() time.Time
	eventQueue int
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// WithClock sets the playback clock.
func WithClock(c Clock) Option {
	return func(o *sessionOptions) { o.clock = c }
}

// WithSink sets where model audio is played.
func WithSink(s Sink) Option {
	return func(o *sessionOptions) { o.sink = s }
}

// WithNow sets the wall clock used for turn timestamps and silence timeouts.
func WithNow(now func() time.Time) Option {
	return func(o *sessionOptions) { o.now = now }
}

// WithEventBuffer sets the capacity of the events channel. Default: 256.
func WithEventBuffer(n int) Option {
	return func(o *sessionOptions) { o.eventQueue = n }
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig, dialer Dialer, opts ...Option) *Session {
	o := sessionOptions{eventQueue: 256}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = NewMonotonicClock()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.eventQueue <= 0 {
		o.eventQueue = 256
	}

	cfg = cfg.withDefaults()
	return &Session{
		config:   cfg,
		dialer:   dialer,
		logger:   o.logger,
		clock:    o.clock,
		now:      o.now,
		playback: NewScheduler(o.clock, o.sink, cfg.OutputSampleRate, cfg.Channels),
		turns:    NewTurnTracker(cfg.TurnSilenceTimeout, o.now),
		meter:    NewMeter(cfg.InputSpeechThreshold, cfg.OutputSpeechThreshold),
		phase:    PhaseIdle,
		events:   make(chan Event, o.eventQueue),
	}
}

// Config returns the effective configuration.
func (s *Session) Config() SessionConfig { return s.config }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Events returns the channel of session events. It is never closed; events
// are dropped when the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// HandshakeLatency returns how long the last successful dial took.
func (s *Session) HandshakeLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// Playback exposes the playback scheduler.
func (s *Session) Playback() *Scheduler { return s.playback }

// Turns returns the committed transcript log.
func (s *Session) Turns() []Turn { return s.turns.Turns() }

// Activity returns the latest meter snapshot.
func (s *Session) Activity() Activity { return s.meter.Snapshot() }

// Start dials the model and begins receiving. It is valid from the idle and
// error phases.
func (s *Session) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.phase != PhaseIdle && s.phase != PhaseError {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.setPhaseLocked(PhaseHandshaking)
	s.mu.Unlock()

	begin := s.now()
	conn, err := s.dialer.Dial(ctx, s.config)
	if err != nil {
		s.mu.Lock()
		s.setPhaseLocked(PhaseError)
		s.mu.Unlock()
		err = fmt.Errorf("live: dial: %w", err)
		s.logger.Error("live handshake failed", "model", s.config.Model, "error", err)
		s.emit(&ErrorEvent{Err: err})
		return err
	}
	latency := s.now().Sub(begin)

	// ctx bounds the dial only; Stop ends the background loops.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	if s.phase != PhaseHandshaking {
		// Stop raced the dial.
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrNotActive
	}
	s.conn = conn
	s.cancel = cancel
	s.recvDone = done
	s.latency = latency
	s.setPhaseLocked(PhaseActive)
	s.mu.Unlock()

	s.logger.Info("live session linked",
		"model", s.config.Model,
		"voice", s.config.Voice,
		"latency_ms", latency.Milliseconds(),
	)
	s.emit(&HandshakeEvent{Model: s.config.Model, Voice: s.config.Voice, Latency: latency})

	go s.receiveLoop(conn, done)
	go s.monitorLoop(runCtx)
	return nil
}

// Stop closes the connection, stops vision and capture, flushes playback and
// commits any pending turn. It is safe to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.phase == PhaseIdle {
		s.mu.Unlock()
		return nil
	}
	done := s.teardownLocked()
	s.setPhaseLocked(PhaseIdle)
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.commitTurn(TurnReasonClosed)
	s.emit(&SessionClosedEvent{Reason: "stopped"})
	return nil
}

// teardownLocked releases the connection and background work. It returns
// the receive loop's done channel, if any.
func (s *Session) teardownLocked() chan struct{} {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.visionCancel != nil {
		s.visionCancel()
		s.visionCancel = nil
		s.emit(&VisionEvent{Enabled: false})
	}
	if s.captureStop != nil {
		s.captureStop()
		s.captureStop = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("live connection close", "error", err)
		}
		s.conn = nil
	}
	s.playback.Flush()
	s.meter.Reset()

	done := s.recvDone
	s.recvDone = nil
	return done
}

func (s *Session) receiveLoop(conn Conn, done chan struct{}) {
	defer close(done)
	for {
		msg, err := conn.Receive()
		if err != nil {
			s.fail(conn, err)
			return
		}
		s.dispatch(msg)
	}
}

// fail moves an active session to the error phase after a receive failure.
func (s *Session) fail(conn Conn, err error) {
	s.mu.Lock()
	if s.phase != PhaseActive || s.conn != conn {
		s.mu.Unlock()
		return
	}
	// The receive loop is the caller; it exits right after, so its done
	// channel is not awaited here.
	s.teardownLocked()
	s.setPhaseLocked(PhaseError)
	s.mu.Unlock()

	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("live: connection closed by server: %w", err)
	} else {
		err = fmt.Errorf("live: receive: %w", err)
	}
	s.logger.Error("live session failed", "error", err)
	s.commitTurn(TurnReasonClosed)
	s.emit(&ErrorEvent{Err: err})
}

func (s *Session) dispatch(msg *ServerMessage) {
	if msg == nil {
		return
	}
	if msg.Interrupted {
		s.playback.Flush()
		if a, changed := s.meter.ResetOutput(); changed {
			s.emit(&ActivityEvent{Activity: a})
		}
		s.emit(&InterruptedEvent{})
	}
	for _, pcm := range msg.Audio {
		buf, err := s.playback.Enqueue(pcm)
		if err != nil {
			s.logger.Warn("live playback failed", "error", err)
			continue
		}
		s.emit(&AudioScheduledEvent{Start: buf.Start, Duration: buf.Duration})
	}
	if msg.InputTranscript != "" {
		s.turns.AddInput(msg.InputTranscript)
		s.emit(&InputTranscriptEvent{Text: msg.InputTranscript})
	}
	if msg.OutputTranscript != "" {
		s.turns.AddOutput(msg.OutputTranscript)
		s.emit(&OutputTranscriptEvent{Text: msg.OutputTranscript})
	}
	if msg.TurnComplete {
		s.commitTurn(TurnReasonComplete)
	}
}

func (s *Session) commitTurn(reason TurnReason) {
	if turn, ok := s.turns.Commit(reason); ok {
		s.emit(&TurnCommittedEvent{Turn: turn})
	}
}

// monitorInterval paces output metering and the silence check.
const monitorInterval = 50 * time.Millisecond

// monitorLoop meters the audio under the play head and commits turns that
// have gone quiet.
func (s *Session) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.meterPlayback()
			if turn, ok := s.turns.CommitIfSilent(); ok {
				s.emit(&TurnCommittedEvent{Turn: turn})
			}
		}
	}
}

func (s *Session) meterPlayback() {
	if a, changed := s.meter.SetOutput(s.playback.Playing(fftSize * 2)); changed {
		s.emit(&ActivityEvent{Activity: a})
	}
}

func (s *Session) activeConn() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive || s.conn == nil {
		return nil, ErrNotActive
	}
	return s.conn, nil
}

// SendAudio sends a 16 kHz PCM chunk and feeds the input meter.
func (s *Session) SendAudio(pcm []byte) error {
	conn, err := s.activeConn()
	if err != nil {
		return err
	}
	if a, changed := s.meter.ObserveInput(pcm); changed {
		s.emit(&ActivityEvent{Activity: a})
	}
	return conn.SendAudio(pcm, InputMIMEType)
}

// SendText sends a typed message.
func (s *Session) SendText(text string) error {
	conn, err := s.activeConn()
	if err != nil {
		return err
	}
	return conn.SendText(text)
}

// SendVideoFrame sends one JPEG frame.
func (s *Session) SendVideoFrame(jpeg []byte) error {
	conn, err := s.activeConn()
	if err != nil {
		return err
	}
	return conn.SendVideo(jpeg, FrameMIMEType)
}

// StartCapture streams microphone PCM from src through the capture pipeline
// until Stop or the end of src.
func (s *Session) StartCapture(src io.Reader, deviceRate, deviceChannels int) error {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.captureStop != nil {
		s.captureStop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.captureStop = cancel
	s.mu.Unlock()

	capture := NewCapture(src, CaptureConfig{
		DeviceRate:     deviceRate,
		DeviceChannels: deviceChannels,
		TargetRate:     s.config.InputSampleRate,
		ChunkSamples:   s.config.ChunkSamples,
	}, s.SendAudio)

	go func() {
		err := capture.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNotActive) {
			s.logger.Warn("live capture stopped", "error", err)
			s.emit(&ErrorEvent{Err: fmt.Errorf("live: capture: %w", err)})
		}
	}()
	return nil
}

// StartVision sends a frame from src every VisionInterval until StopVision.
func (s *Session) StartVision(src FrameSource) error {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.visionCancel != nil {
		s.visionCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.visionCancel = cancel
	s.mu.Unlock()

	s.emit(&VisionEvent{Enabled: true})
	go s.visionLoop(ctx, src)
	return nil
}

// StopVision stops sending frames.
func (s *Session) StopVision() {
	s.mu.Lock()
	cancel := s.visionCancel
	s.visionCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.emit(&VisionEvent{Enabled: false})
	}
}

// VisionActive reports whether frames are being sent.
func (s *Session) VisionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visionCancel != nil
}

func (s *Session) visionLoop(ctx context.Context, src FrameSource) {
	ticker := time.NewTicker(s.config.VisionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendFrame(src)
		}
	}
}

func (s *Session) sendFrame(src FrameSource) {
	if s.Phase() != PhaseActive {
		return
	}
	img, err := src.Frame()
	if err != nil {
		s.logger.Debug("live vision frame unavailable", "error", err)
		return
	}
	if img == nil {
		return
	}
	frame, err := EncodeJPEG(img, s.config.VisionJPEGQuality)
	if err != nil {
		s.logger.Warn("live vision encode failed", "error", err)
		return
	}
	if err := s.SendVideoFrame(frame); err != nil && !errors.Is(err, ErrNotActive) {
		s.logger.Warn("live vision send failed", "error", err)
	}
}

func (s *Session) setPhaseLocked(p Phase) {
	old := s.phase
	s.phase = p
	if old != p {
		s.logger.Debug("live phase", "from", old.String(), "to", p.String())
		s.emit(&PhaseChangedEvent{From: old, To: p})
	}
}

// emit sends an event without blocking; events are dropped when the
// channel is full.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}
