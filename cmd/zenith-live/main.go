// Command zenith-live is a terminal live client: it streams the microphone
// to a Gemini live session and plays the spoken replies.
//
// Usage:
//
//	zenith-live [-gateway URL] [-voice Zephyr] [-system "..."]
//
// Without -gateway the session connects directly with GEMINI_API_KEY. With
// it, the session goes through the zenith-agent relay and starts with the
// agent handshake.
//
// Keys: v toggles vision test frames, q quits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/vango-go/zenith/pkg/core/gemini"
	"github.com/vango-go/zenith/pkg/core/live"
	"github.com/vango-go/zenith/pkg/gateway/config"
	zenith "github.com/vango-go/zenith/sdk"
)

type liveOptions struct {
	gateway   string
	apiKey    string
	uid       string
	sessionID string
	model     string
	voice     string
	system    string
	micRate   int
	handshake bool
}

func parseFlags(args []string, stderr io.Writer) (liveOptions, error) {
	fs := flag.NewFlagSet("zenith-live", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts liveOptions
	fs.StringVar(&opts.gateway, "gateway", os.Getenv("ZENITH_GATEWAY_URL"), "zenith-agent base URL; empty connects directly")
	fs.StringVar(&opts.apiKey, "api-key", os.Getenv("ZENITH_API_KEY"), "gateway API key")
	fs.StringVar(&opts.uid, "uid", zenith.DefaultUID, "user ID for turn memory (gateway only)")
	fs.StringVar(&opts.sessionID, "session", zenith.DefaultSessionID, "session ID for turn memory (gateway only)")
	fs.StringVar(&opts.model, "model", live.DefaultModel, "live model")
	fs.StringVar(&opts.voice, "voice", live.DefaultVoice, "prebuilt voice: "+strings.Join(live.AvailableVoices, ", "))
	fs.StringVar(&opts.system, "system", "", "system instruction")
	fs.IntVar(&opts.micRate, "mic-rate", 16000, "microphone sample rate")
	fs.BoolVar(&opts.handshake, "handshake", true, "send the agent handshake before going live (gateway only)")

	if err := fs.Parse(args); err != nil {
		return liveOptions{}, err
	}
	if opts.micRate <= 0 {
		return liveOptions{}, errors.New("-mic-rate must be > 0")
	}
	if !live.IsAvailableVoice(opts.voice) {
		return liveOptions{}, fmt.Errorf("unknown voice %q", opts.voice)
	}
	return opts, nil
}

func (o liveOptions) sessionConfig() live.SessionConfig {
	cfg := live.DefaultSessionConfig()
	cfg.Model = o.model
	cfg.Voice = o.voice
	cfg.System = o.system
	return cfg
}

func newDialer(ctx context.Context, opts liveOptions, logger *slog.Logger) (live.Dialer, error) {
	if opts.gateway != "" {
		return &zenith.LiveDialer{
			Client:    zenith.NewClient(opts.gateway, zenith.WithAPIKey(opts.apiKey)),
			UID:       opts.uid,
			SessionID: opts.sessionID,
			Logger:    logger,
		}, nil
	}
	gem, err := gemini.New(ctx, os.Getenv("GEMINI_API_KEY"))
	if err != nil {
		return nil, err
	}
	return &live.GenAIDialer{Client: gem.GenAI()}, nil
}

type keyAction int

const (
	keyNone keyAction = iota
	keyVision
	keyQuit
)

func actionForKey(b byte) keyAction {
	switch b {
	case 'v', 'V':
		return keyVision
	case 'q', 'Q', 0x03: // Ctrl-C arrives as a byte in raw mode.
		return keyQuit
	default:
		return keyNone
	}
}

// formatEvent renders an event as one terminal line. ok is false for events
// that are not shown.
func formatEvent(ev live.Event) (line string, ok bool) {
	switch e := ev.(type) {
	case *live.HandshakeEvent:
		return fmt.Sprintf("[linked] %s voice=%s latency=%dms", e.Model, e.Voice, e.Latency.Milliseconds()), true
	case *live.TurnCommittedEvent:
		var b strings.Builder
		if e.Turn.UserText != "" {
			fmt.Fprintf(&b, "[you] %s", e.Turn.UserText)
		}
		if e.Turn.ModelText != "" {
			if b.Len() > 0 {
				b.WriteString("\r\n")
			}
			fmt.Fprintf(&b, "[zenith] %s", e.Turn.ModelText)
		}
		return b.String(), b.Len() > 0
	case *live.InterruptedEvent:
		return "[interrupted]", true
	case *live.VisionEvent:
		if e.Enabled {
			return "[vision on]", true
		}
		return "[vision off]", true
	case *live.ErrorEvent:
		return "[error] " + e.Error(), true
	case *live.SessionClosedEvent:
		return "[closed] " + e.Reason, true
	default:
		return "", false
	}
}

func run(ctx context.Context, opts liveOptions, stdin *os.File, out io.Writer, logger *slog.Logger) error {
	if opts.gateway != "" && opts.handshake {
		client := zenith.NewClient(opts.gateway, zenith.WithAPIKey(opts.apiKey))
		reply, latency, err := client.Handshake(ctx, opts.uid, opts.sessionID)
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		fmt.Fprintf(out, "Linked via zenith-agent (%dms)\n%s\n", latency.Milliseconds(), reply.Reply)
	}

	dialer, err := newDialer(ctx, opts, logger)
	if err != nil {
		return err
	}

	cfg := opts.sessionConfig()
	audio, err := openAudio(opts.micRate, cfg.OutputSampleRate)
	if err != nil {
		return err
	}
	defer audio.Close()

	session := live.NewSession(cfg, dialer, live.WithLogger(logger), live.WithSink(audio.speaker))
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	if err := session.StartCapture(audio.mic, opts.micRate, 1); err != nil {
		return err
	}

	keys := make(chan keyAction, 4)
	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, oldState)
		}
	}
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := stdin.Read(buf)
			if err != nil {
				keys <- keyQuit
				return
			}
			if n == 1 {
				if a := actionForKey(buf[0]); a != keyNone {
					keys <- a
				}
			}
		}
	}()

	fmt.Fprint(out, "Speak naturally. v toggles vision, q quits.\r\n")
	frames := newTestPattern(320, 240)
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-keys:
			switch a {
			case keyQuit:
				return nil
			case keyVision:
				if session.VisionActive() {
					session.StopVision()
				} else if err := session.StartVision(frames); err != nil {
					fmt.Fprintf(out, "[error] %v\r\n", err)
				}
			}
		case ev := <-session.Events():
			if line, ok := formatEvent(ev); ok {
				fmt.Fprintf(out, "%s\r\n", line)
			}
			if _, failed := ev.(*live.ErrorEvent); failed && session.Phase() == live.PhaseError {
				return errors.New("live session failed")
			}
		}
	}
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "zenith-live: %v\n", err)
		return 1
	}
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, stdout, logger); err != nil {
		fmt.Fprintf(stderr, "zenith-live: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
