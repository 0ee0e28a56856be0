package live

import (
	"context"
	"errors"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GenAIDialer connects straight to the Gemini Live API.
type GenAIDialer struct {
	Client *genai.Client
}

// Dial opens a live session with audio responses, the configured prebuilt
// voice and transcription of both directions.
func (d *GenAIDialer) Dial(ctx context.Context, cfg SessionConfig) (Conn, error) {
	if d == nil || d.Client == nil {
		return nil, errors.New("live: genai client is required")
	}
	cfg = cfg.withDefaults()
	sess, err := d.Client.Live.Connect(ctx, cfg.Model, ConnectConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &genaiConn{session: sess}, nil
}

// ConnectConfig builds the SDK connect configuration for cfg.
func ConnectConfig(cfg SessionConfig) *genai.LiveConnectConfig {
	cfg = cfg.withDefaults()
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if s := strings.TrimSpace(cfg.System); s != "" {
		out.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	return out
}

type genaiConn struct {
	session *genai.Session

	// the SDK session does not allow concurrent writers
	sendMu sync.Mutex
}

func (c *genaiConn) send(in genai.LiveRealtimeInput) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.session.SendRealtimeInput(in)
}

func (c *genaiConn) SendAudio(pcm []byte, mimeType string) error {
	return c.send(genai.LiveRealtimeInput{Audio: &genai.Blob{Data: pcm, MIMEType: mimeType}})
}

func (c *genaiConn) SendVideo(frame []byte, mimeType string) error {
	return c.send(genai.LiveRealtimeInput{Video: &genai.Blob{Data: frame, MIMEType: mimeType}})
}

func (c *genaiConn) SendText(text string) error {
	return c.send(genai.LiveRealtimeInput{Text: text})
}

func (c *genaiConn) Receive() (*ServerMessage, error) {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			return nil, err
		}
		if out, ok := fromLiveServerMessage(msg); ok {
			return out, nil
		}
	}
}

func (c *genaiConn) Close() error {
	return c.session.Close()
}

// fromLiveServerMessage extracts the parts a Session acts on. Setup
// acknowledgements and usage reports yield ok=false.
func fromLiveServerMessage(msg *genai.LiveServerMessage) (*ServerMessage, bool) {
	if msg == nil || msg.ServerContent == nil {
		return nil, false
	}
	sc := msg.ServerContent
	out := &ServerMessage{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if strings.HasPrefix(part.InlineData.MIMEType, "audio/") || part.InlineData.MIMEType == "" {
				out.Audio = append(out.Audio, part.InlineData.Data)
			}
		}
	}
	if sc.InputTranscription != nil {
		out.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscript = sc.OutputTranscription.Text
	}
	return out, true
}
