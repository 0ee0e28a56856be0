package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/live"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/lifecycle"
	"github.com/vango-go/zenith/pkg/gateway/live/protocol"
	"github.com/vango-go/zenith/pkg/gateway/live/sessions"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/gateway/principal"
	"github.com/vango-go/zenith/pkg/gateway/ratelimit"
	"github.com/vango-go/zenith/pkg/store"
)

// LiveHandler relays /v1/live WebSocket sessions to a live model dialed on
// the server side. Committed turns are written to chat memory when the
// hello carries a uid.
type LiveHandler struct {
	Config       config.Config
	Dialer       live.Dialer
	Memory       store.ChatMemory
	Logger       *slog.Logger
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining"}, 529)
		return
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && !h.Config.CORSOriginAllowed(origin) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}
	out := &liveWriter{conn: conn, timeout: h.Config.LiveWSWriteTimeout}

	hello, ok := h.readHello(conn, out)
	if !ok {
		return
	}
	h.logger().Info("live hello", "request_id", reqID, "hello", hello.RedactedForLog())

	cfg := live.DefaultSessionConfig()
	cfg.Model = firstNonEmpty(hello.Model, h.Config.LiveModel, cfg.Model)
	cfg.Voice = firstNonEmpty(hello.Voice, h.Config.LiveVoice, cfg.Voice)
	cfg.System = hello.System
	if h.Config.LiveTurnSilence > 0 {
		cfg.TurnSilenceTimeout = h.Config.LiveTurnSilence
	}
	if err := cfg.Validate(); err != nil {
		out.fail("unsupported", err.Error(), false, true)
		return
	}

	caller := principal.Resolve(r, h.Config)
	if h.Limiter != nil {
		dec := h.Limiter.AcquireLiveSession(caller.Key, h.now())
		if !dec.Allowed {
			h.Metrics.RecordRateLimitHit(dec.Reason)
			out.fail("rate_limited", "too many active live sessions", true, true)
			return
		}
		defer dec.Permit.Release()
	}

	maxDuration := h.Config.LiveMaxSessionDuration
	if maxDuration <= 0 {
		maxDuration = time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), maxDuration)
	defer cancel()

	upstream, err := h.Dialer.Dial(ctx, cfg)
	if err != nil {
		h.logger().Warn("live dial failed", "request_id", reqID, "model", cfg.Model, "error", err)
		out.fail("upstream_unavailable", "failed to connect to the live model", true, true)
		return
	}
	defer upstream.Close()

	sessionID := strings.TrimSpace(hello.SessionID)
	if sessionID == "" {
		sessionID = "live_" + uuid.NewString()
	}
	logger := h.logger().With("request_id", reqID, "session_id", sessionID, "uid", hello.UID, "principal", caller)

	if err := out.write(protocol.ServerHelloAck{
		Type:            protocol.TypeHelloAck,
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		Model:           cfg.Model,
		Voice:           cfg.Voice,
		AudioIn:         protocol.AudioFormat{Encoding: protocol.EncodingPCM16, SampleRateHz: cfg.InputSampleRate, Channels: 1},
		AudioOut:        protocol.AudioFormat{Encoding: protocol.EncodingPCM16, SampleRateHz: cfg.OutputSampleRate, Channels: cfg.Channels},
	}); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	startedAt := h.now()
	rl := &liveRelay{
		handler:   h,
		out:       out,
		upstream:  upstream,
		turns:     live.NewTurnTracker(cfg.TurnSilenceTimeout, h.Now),
		uid:       hello.UID,
		sessionID: sessionID,
		logger:    logger,
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
		UID:       hello.UID,
		Model:     cfg.Model,
		Voice:     cfg.Voice,
		StartedAt: startedAt,
		Cancel:    cancel,
		Warn: func(code, message string) error {
			return out.write(protocol.ServerWarning{Type: protocol.TypeWarning, Code: code, Message: message})
		},
	})
	defer unregister()
	h.Metrics.RecordLiveSessionStart()
	logger.Info("live session started", "model", cfg.Model, "voice", cfg.Voice)

	status := rl.run(ctx, cancel, conn, cfg.TurnSilenceTimeout)

	h.Metrics.RecordLiveSessionEnd(status, h.now().Sub(startedAt))
	logger.Info("live session ended", "status", status, "turns", len(rl.turns.Turns()))
}

func (h LiveHandler) readHello(conn *websocket.Conn, out *liveWriter) (protocol.ClientHello, bool) {
	timeout := h.Config.LiveHandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	messageType, frame, err := conn.ReadMessage()
	if err != nil {
		out.fail("bad_request", "failed to read hello", false, true)
		return protocol.ClientHello{}, false
	}
	if messageType != websocket.TextMessage {
		out.fail("bad_request", "first frame must be hello", false, true)
		return protocol.ClientHello{}, false
	}
	decoded, err := protocol.DecodeClientMessage(frame)
	if err != nil {
		out.decodeError(err, true)
		return protocol.ClientHello{}, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		out.fail("bad_request", "first frame must be hello", false, true)
		return protocol.ClientHello{}, false
	}
	return hello, true
}

func (h LiveHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h LiveHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// liveWriter serializes frames onto the client socket.
type liveWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *liveWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteJSON(v)
}

func (w *liveWriter) fail(code, message string, retryable, closeConn bool) {
	_ = w.write(protocol.ServerError{Type: protocol.TypeError, Code: code, Message: message, Retryable: retryable, Close: closeConn})
	if closeConn {
		w.close(websocket.ClosePolicyViolation, message)
	}
}

func (w *liveWriter) decodeError(err error, closeConn bool) {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		w.fail(de.Code, de.Error(), false, closeConn)
		return
	}
	w.fail("bad_request", err.Error(), false, closeConn)
}

func (w *liveWriter) close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(2*time.Second))
}

// liveRelay bridges one client socket and one upstream live connection.
type liveRelay struct {
	handler   LiveHandler
	out       *liveWriter
	upstream  live.Conn
	turns     *live.TurnTracker
	uid       string
	sessionID string
	logger    *slog.Logger

	upstreamFailed atomic.Bool
}

// run pumps both directions until the client leaves, the upstream fails or
// ctx ends. It returns the session's end status for metrics.
func (rl *liveRelay) run(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, silence time.Duration) string {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rl.downstream(ctx)
		cancel()
	}()

	if silence > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.silenceLoop(ctx, silence)
		}()
	}

	// Unblock the client read when the session is canceled from elsewhere.
	stop := context.AfterFunc(ctx, func() {
		rl.out.close(websocket.CloseGoingAway, "session ended")
		_ = conn.Close()
	})
	defer stop()

	clientEnded := rl.upstreamLoop(ctx, conn)
	canceled := ctx.Err() != nil
	cancel()
	_ = rl.upstream.Close()
	wg.Wait()

	status := "disconnected"
	switch {
	case clientEnded:
		status = "ok"
	case rl.upstreamFailed.Load():
		status = "upstream_error"
	case canceled:
		status = "canceled"
	}

	if turn, ok := rl.turns.Commit(live.TurnReasonClosed); ok {
		rl.persist(turn)
	}
	return status
}

// upstreamLoop forwards client frames to the model. It reports true when the
// client ended the session itself.
func (rl *liveRelay) upstreamLoop(ctx context.Context, conn *websocket.Conn) bool {
	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil
		}
		if messageType != websocket.TextMessage {
			rl.out.fail("bad_request", "frames must be JSON text", false, false)
			continue
		}
		decoded, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			rl.out.decodeError(err, false)
			continue
		}

		var sendErr error
		switch msg := decoded.(type) {
		case protocol.ClientAudio:
			pcm, err := live.DecodeBase64(msg.DataB64)
			if err != nil {
				rl.out.fail("bad_request", "audio.data_b64 is not valid base64", false, false)
				continue
			}
			rl.handler.Metrics.RecordLiveAudio("in", len(pcm))
			sendErr = rl.upstream.SendAudio(pcm, live.InputMIMEType)
		case protocol.ClientVideo:
			data, err := live.DecodeBase64(msg.DataB64)
			if err != nil {
				rl.out.fail("bad_request", "video.data_b64 is not valid base64", false, false)
				continue
			}
			sendErr = rl.upstream.SendVideo(data, msg.MIMEType)
		case protocol.ClientText:
			sendErr = rl.upstream.SendText(msg.Text)
		case protocol.ClientControl:
			rl.out.close(websocket.CloseNormalClosure, "session ended")
			return true
		case protocol.ClientHello:
			rl.out.fail("bad_request", "session already started", false, false)
			continue
		}
		if sendErr != nil {
			if ctx.Err() == nil {
				rl.upstreamFailed.Store(true)
				rl.logger.Warn("live upstream send failed", "error", sendErr)
				rl.out.fail("upstream_error", "live model connection lost", true, true)
			}
			return false
		}
	}
}

// downstream forwards model output to the client.
func (rl *liveRelay) downstream(ctx context.Context) {
	for {
		msg, err := rl.upstream.Receive()
		if err != nil {
			if ctx.Err() == nil {
				rl.upstreamFailed.Store(true)
				rl.logger.Warn("live upstream receive failed", "error", err)
				rl.out.fail("upstream_error", "live model connection lost", true, true)
			}
			return
		}
		if msg == nil {
			continue
		}
		// Clients flush queued playback on interrupted, so it must precede
		// any audio from the same message.
		if msg.Interrupted {
			if err := rl.out.write(protocol.ServerInterrupted{Type: protocol.TypeInterrupted}); err != nil {
				return
			}
		}
		for _, chunk := range msg.Audio {
			rl.handler.Metrics.RecordLiveAudio("out", len(chunk))
			if err := rl.out.write(protocol.ServerAudio{Type: protocol.TypeAudio, AudioB64: live.EncodeBase64(chunk)}); err != nil {
				return
			}
		}
		if msg.InputTranscript != "" {
			rl.turns.AddInput(msg.InputTranscript)
			_ = rl.out.write(protocol.ServerTranscript{Type: protocol.TypeInputTranscript, Text: msg.InputTranscript})
		}
		if msg.OutputTranscript != "" {
			rl.turns.AddOutput(msg.OutputTranscript)
			_ = rl.out.write(protocol.ServerTranscript{Type: protocol.TypeOutputTranscript, Text: msg.OutputTranscript})
		}
		if msg.TurnComplete {
			turn, ok := rl.turns.Commit(live.TurnReasonComplete)
			if !ok {
				turn = live.Turn{Reason: live.TurnReasonComplete}
			}
			rl.completeTurn(turn)
		}
	}
}

func (rl *liveRelay) silenceLoop(ctx context.Context, silence time.Duration) {
	period := silence / 3
	if period < 50*time.Millisecond {
		period = 50 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if turn, ok := rl.turns.CommitIfSilent(); ok {
				rl.completeTurn(turn)
			}
		}
	}
}

func (rl *liveRelay) completeTurn(turn live.Turn) {
	rl.persist(turn)
	_ = rl.out.write(protocol.ServerTurnComplete{
		Type:      protocol.TypeTurnComplete,
		Reason:    string(turn.Reason),
		TurnID:    turn.ID,
		UserText:  turn.UserText,
		ModelText: turn.ModelText,
	})
}

// persist appends the non-empty sides of turn to chat memory.
func (rl *liveRelay) persist(turn live.Turn) {
	mem := rl.handler.Memory
	if mem == nil || rl.uid == "" {
		return
	}
	var msgs []types.ChatMessage
	if turn.UserText != "" {
		msgs = append(msgs, types.ChatMessage{Role: types.RoleUser, Text: turn.UserText, TS: isoTimestamp(turn.StartedAt)})
	}
	if turn.ModelText != "" {
		msgs = append(msgs, types.ChatMessage{Role: types.RoleModel, Text: turn.ModelText, TS: isoTimestamp(turn.CommittedAt)})
	}
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mem.Append(ctx, rl.uid, rl.sessionID, msgs...); err != nil {
		rl.logger.Warn("live turn not saved", "turn_id", turn.ID, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
