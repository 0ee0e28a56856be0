package live

import (
	"testing"

	"google.golang.org/genai"
)

func TestConnectConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Voice = "Kore"
	cfg.System = "You are ZENITH."

	got := ConnectConfig(cfg)
	if len(got.ResponseModalities) != 1 || got.ResponseModalities[0] != genai.ModalityAudio {
		t.Fatalf("modalities = %v", got.ResponseModalities)
	}
	if got.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Fatalf("voice not set")
	}
	if got.InputAudioTranscription == nil || got.OutputAudioTranscription == nil {
		t.Fatal("transcription should be enabled in both directions")
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "You are ZENITH." {
		t.Fatalf("system instruction = %+v", got.SystemInstruction)
	}

	if ConnectConfig(SessionConfig{}).SystemInstruction != nil {
		t.Fatal("blank system should be omitted")
	}
}

func TestFromLiveServerMessage(t *testing.T) {
	if _, ok := fromLiveServerMessage(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}); ok {
		t.Fatal("setup message should be skipped")
	}

	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{9}}},
			}},
			InputTranscription:  &genai.Transcription{Text: "hi"},
			OutputTranscription: &genai.Transcription{Text: "hello"},
			TurnComplete:        true,
			Interrupted:         true,
		},
	}
	out, ok := fromLiveServerMessage(msg)
	if !ok {
		t.Fatal("expected message")
	}
	if len(out.Audio) != 1 || out.Audio[0][1] != 2 {
		t.Fatalf("audio = %v", out.Audio)
	}
	if out.InputTranscript != "hi" || out.OutputTranscript != "hello" || !out.TurnComplete || !out.Interrupted {
		t.Fatalf("out = %+v", out)
	}
}
