// Package live implements the ZENITH live audio/video session client.
//
// A Session links to a Gemini native-audio model, streams microphone audio
// and optional camera frames up, and plays the model's spoken reply back
// through a gap-free scheduler. Transcripts from both sides are grouped into
// turns, and an activity meter derives "user speaking" and "model speaking"
// flags from the frequency content of recent audio.
//
// # Architecture
//
//   - Session: the controller that owns the connection and its phase
//   - Capture: microphone PCM → 16 kHz chunks sent upstream
//   - Scheduler: sequential playback of model audio against a Clock
//   - Meter: 128-bin frequency data and speaking flags
//   - TurnTracker: partial transcripts committed into Turns
//
// # Phases
//
//	IDLE → HANDSHAKING → ACTIVE → IDLE
//	         │             │
//	         └──→ ERROR ←──┘   (ERROR → HANDSHAKING on retry)
//
// # Data Flow
//
//	Mic → Capture → Resample(16k) → Chunk(4096) → Conn.SendAudio
//	                      │
//	                      └── Meter (input)
//
//	Conn.Receive → audio → Scheduler → Sink (speaker)
//	             │             │
//	             │             └── Meter (output)
//	             ├── transcripts → TurnTracker
//	             └── interrupted → Scheduler.Flush
//
// # Usage
//
//	cfg := live.DefaultSessionConfig()
//	cfg.Voice = "Puck"
//
//	session := live.NewSession(cfg, &live.GenAIDialer{Client: client.GenAI()},
//		live.WithSink(speaker),
//	)
//	if err := session.Start(ctx); err != nil {
//		return err
//	}
//	defer session.Stop()
//
//	for event := range session.Events() {
//		switch e := event.(type) {
//		case *live.TurnCommittedEvent:
//			fmt.Println(e.Turn.UserText, "→", e.Turn.ModelText)
//		}
//	}
package live
