package live

import "context"

// ServerMessage is one decoded message from the live model.
type ServerMessage struct {
	// Audio holds PCM s16le chunks at the output sample rate.
	Audio            [][]byte
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	Interrupted      bool
}

// Conn is an open bidirectional link to a live model. Receive blocks until a
// message arrives or the connection is closed; Close unblocks it.
type Conn interface {
	SendAudio(pcm []byte, mimeType string) error
	SendVideo(frame []byte, mimeType string) error
	SendText(text string) error
	Receive() (*ServerMessage, error)
	Close() error
}

// Dialer opens a Conn for a session configuration.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg SessionConfig) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, cfg SessionConfig) (Conn, error) {
	return f(ctx, cfg)
}
