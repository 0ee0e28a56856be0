package zenith

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/live"
	"github.com/vango-go/zenith/pkg/gateway/live/protocol"
)

const (
	defaultLiveConnectTimeout = 10 * time.Second
	liveWriteTimeout          = 5 * time.Second
)

// LiveDialer opens live sessions through the gateway relay at /v1/live
// instead of connecting to the model directly.
type LiveDialer struct {
	Client *Client
	// UID and SessionID, when both set, make the gateway store committed
	// turns in chat memory.
	UID       string
	SessionID string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

var _ live.Dialer = (*LiveDialer)(nil)

// Dial sends the hello frame and waits for hello_ack.
func (d *LiveDialer) Dial(ctx context.Context, cfg live.SessionConfig) (live.Conn, error) {
	if d == nil || d.Client == nil {
		return nil, core.NewInvalidRequestError("live dialer requires a client")
	}
	wsURL, err := d.Client.webSocketEndpoint("/v1/live")
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if d.Client.APIKey != "" {
		headers.Set("Authorization", "Bearer "+d.Client.APIKey)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultLiveConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	hello := protocol.ClientHello{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.ProtocolVersion1,
		Model:           cfg.Model,
		Voice:           cfg.Voice,
		System:          cfg.System,
	}
	if d.UID != "" && d.SessionID != "" {
		hello.UID = d.UID
		hello.SessionID = d.SessionID
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live hello: %w", err)
	}

	deadline := time.Now().Add(defaultLiveConnectTimeout)
	if dl, ok := dialCtx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame type %d", messageType)
	}

	first, err := protocol.DecodeServerMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode hello_ack: %w", err)
	}
	switch msg := first.(type) {
	case *protocol.ServerHelloAck:
		logger := d.Logger
		if logger == nil {
			logger = slog.Default()
		}
		return &RelayConn{conn: conn, ack: *msg, logger: logger.With("session_id", msg.SessionID)}, nil
	case *protocol.ServerError:
		_ = conn.Close()
		return nil, relayError(msg)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame %T", first)
	}
}

// RelayConn is a live.Conn backed by the gateway relay.
type RelayConn struct {
	conn   *websocket.Conn
	ack    protocol.ServerHelloAck
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ live.Conn = (*RelayConn)(nil)

// Ack returns the gateway's hello_ack, which carries the session ID and the
// negotiated audio formats.
func (c *RelayConn) Ack() protocol.ServerHelloAck { return c.ack }

func (c *RelayConn) SendAudio(pcm []byte, _ string) error {
	return c.write(protocol.ClientAudio{Type: protocol.TypeAudio, DataB64: base64.StdEncoding.EncodeToString(pcm)})
}

func (c *RelayConn) SendVideo(frame []byte, mimeType string) error {
	return c.write(protocol.ClientVideo{Type: protocol.TypeVideo, MIMEType: mimeType, DataB64: base64.StdEncoding.EncodeToString(frame)})
}

func (c *RelayConn) SendText(text string) error {
	return c.write(protocol.ClientText{Type: protocol.TypeText, Text: text})
}

func (c *RelayConn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return c.conn.WriteJSON(v)
}

// Receive returns the next model message. Warnings and non-fatal errors are
// logged and skipped. A normal close yields io.EOF.
func (c *RelayConn) Receive() (*live.ServerMessage, error) {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		decoded, err := protocol.DecodeServerMessage(payload)
		if err != nil {
			c.logger.Warn("dropping undecodable relay frame", "error", err)
			continue
		}
		switch msg := decoded.(type) {
		case *protocol.ServerAudio:
			pcm, err := base64.StdEncoding.DecodeString(msg.AudioB64)
			if err != nil {
				c.logger.Warn("dropping audio frame with invalid base64", "error", err)
				continue
			}
			return &live.ServerMessage{Audio: [][]byte{pcm}}, nil
		case *protocol.ServerTranscript:
			if msg.Type == protocol.TypeInputTranscript {
				return &live.ServerMessage{InputTranscript: msg.Text}, nil
			}
			return &live.ServerMessage{OutputTranscript: msg.Text}, nil
		case *protocol.ServerTurnComplete:
			// The local session runs its own silence timer.
			if msg.Reason == string(live.TurnReasonSilence) {
				continue
			}
			return &live.ServerMessage{TurnComplete: true}, nil
		case *protocol.ServerInterrupted:
			return &live.ServerMessage{Interrupted: true}, nil
		case *protocol.ServerWarning:
			c.logger.Warn("gateway warning", "code", msg.Code, "message", msg.Message)
		case *protocol.ServerError:
			if msg.Close {
				return nil, relayError(msg)
			}
			c.logger.Warn("gateway error", "code", msg.Code, "message", msg.Message)
		}
	}
}

// Close ends the session and closes the socket. Safe to call more than once.
func (c *RelayConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.write(protocol.ClientControl{Type: protocol.TypeControl, Op: "end_session"})
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		err = c.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func relayError(msg *protocol.ServerError) *core.Error {
	t := core.ErrAPI
	switch msg.Code {
	case "bad_request", "unsupported":
		t = core.ErrInvalidRequest
	case "rate_limited":
		t = core.ErrRateLimit
	case "unauthorized":
		t = core.ErrAuthentication
	case "draining":
		t = core.ErrOverloaded
	case "upstream_unavailable", "upstream_error":
		t = core.ErrProvider
	}
	return &core.Error{Type: t, Message: strings.TrimSpace(msg.Message), Code: msg.Code}
}

func (c *Client) webSocketEndpoint(path string) (string, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", core.NewInvalidRequestError("gateway base URL must be http(s) or ws(s)")
	}
	return u.String(), nil
}
