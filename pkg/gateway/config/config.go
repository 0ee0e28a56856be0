package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr   string
	Region string

	GeminiAPIKey  string
	GeminiBaseURL string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	// Studio payload budgets. Zero disables a check.
	MaxPromptBytes int64
	MaxAudioBytes  int64

	// CORS. "*" in ZENITH_CORS_ORIGINS allows every origin.
	CORSAllowedOrigins map[string]struct{}
	CORSAllowAll       bool

	// Agent endpoint.
	ChatModel    string
	MemoryWindow int

	// Persistence. An empty DatabaseURL keeps campaigns and chat memory in the
	// embedded store; an empty LocalDBPath runs it in memory.
	DatabaseURL string
	LocalDBPath string

	// Assets. S3 is used when S3Bucket is set, the filesystem otherwise.
	AssetDir          string
	AssetBaseURL      string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	VideoPollInterval time.Duration
	VideoProgressTick time.Duration

	// Live WebSocket relay (/v1/live).
	LiveModel                   string
	LiveVoice                   string
	LiveMaxJSONMessageBytes     int64
	LiveHandshakeTimeout        time.Duration
	LiveWSWriteTimeout          time.Duration
	LiveMaxSessionDuration      time.Duration
	LiveMaxSessionsPerPrincipal int
	LiveTurnSilence             time.Duration

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

// S3Enabled reports whether assets go to S3.
func (c Config) S3Enabled() bool {
	return strings.TrimSpace(c.S3Bucket) != ""
}

// CORSOriginAllowed reports whether origin may call the gateway from a browser.
func (c Config) CORSOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if c.CORSAllowAll {
		return true
	}
	_, ok := c.CORSAllowedOrigins[origin]
	return ok
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                        envOr("ZENITH_ADDR", ":8080"),
		Region:                      envOr("ZENITH_REGION", "asia-southeast1"),
		GeminiAPIKey:                envOr("GEMINI_API_KEY", ""),
		GeminiBaseURL:               envOr("ZENITH_GEMINI_BASE_URL", ""),
		AuthMode:                    AuthMode(envOr("ZENITH_AUTH_MODE", string(AuthModeOptional))),
		APIKeys:                     make(map[string]struct{}),
		TrustProxyHeaders:           envBoolOr("ZENITH_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:                envInt64Or("ZENITH_MAX_BODY_BYTES", 32<<20), // 32 MiB, audio uploads
		MaxPromptBytes:              envInt64Or("ZENITH_MAX_PROMPT_BYTES", 32<<10),
		MaxAudioBytes:               envInt64Or("ZENITH_MAX_AUDIO_BYTES", 20<<20),
		CORSAllowedOrigins:          make(map[string]struct{}),
		ChatModel:                   envOr("ZENITH_CHAT_MODEL", "gemini-2.5-flash"),
		MemoryWindow:                envIntOr("ZENITH_MEMORY_WINDOW", 10),
		DatabaseURL:                 envOr("ZENITH_DATABASE_URL", ""),
		LocalDBPath:                 envOr("ZENITH_LOCAL_DB_PATH", ""),
		AssetDir:                    envOr("ZENITH_ASSET_DIR", "zenith-assets"),
		AssetBaseURL:                envOr("ZENITH_ASSET_BASE_URL", ""),
		S3Bucket:                    envOr("ZENITH_S3_BUCKET", ""),
		S3Region:                    envOr("ZENITH_S3_REGION", "us-east-1"),
		S3Endpoint:                  envOr("ZENITH_S3_ENDPOINT", ""),
		S3AccessKeyID:               envOr("ZENITH_S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:           envOr("ZENITH_S3_SECRET_ACCESS_KEY", ""),
		S3PublicBaseURL:             envOr("ZENITH_S3_PUBLIC_BASE_URL", ""),
		VideoPollInterval:           envDurationOr("ZENITH_VIDEO_POLL_INTERVAL", 10*time.Second),
		VideoProgressTick:           envDurationOr("ZENITH_VIDEO_PROGRESS_TICK", 6*time.Second),
		LiveModel:                   envOr("ZENITH_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		LiveVoice:                   envOr("ZENITH_LIVE_VOICE", "Zephyr"),
		LiveMaxJSONMessageBytes:     envInt64Or("ZENITH_LIVE_MAX_JSON_MESSAGE_BYTES", 1<<20),
		LiveHandshakeTimeout:        envDurationOr("ZENITH_LIVE_HANDSHAKE_TIMEOUT", 10*time.Second),
		LiveWSWriteTimeout:          envDurationOr("ZENITH_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveMaxSessionDuration:      envDurationOr("ZENITH_LIVE_MAX_DURATION", time.Hour),
		LiveMaxSessionsPerPrincipal: envIntOr("ZENITH_LIVE_MAX_SESSIONS_PER_PRINCIPAL", 2),
		LiveTurnSilence:             envDurationOr("ZENITH_LIVE_TURN_SILENCE", 1500*time.Millisecond),
		LimitRPS:                    envFloat64Or("ZENITH_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                  envIntOr("ZENITH_RATE_LIMIT_BURST", 4),
		LimitMaxConcurrentRequests:  envIntOr("ZENITH_MAX_CONCURRENT_REQUESTS", 20),
		ReadHeaderTimeout:           envDurationOr("ZENITH_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                 envDurationOr("ZENITH_READ_TIMEOUT", 60*time.Second),
		HandlerTimeout:              envDurationOr("ZENITH_TOTAL_REQUEST_TIMEOUT", 10*time.Minute),
		ShutdownGracePeriod:         envDurationOr("ZENITH_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("ZENITH_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("ZENITH_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("ZENITH_CORS_ORIGINS")) {
		if origin == "*" {
			cfg.CORSAllowAll = true
			continue
		}
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("ZENITH_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxPromptBytes < 0 || cfg.MaxAudioBytes < 0 {
		return Config{}, fmt.Errorf("ZENITH_MAX_PROMPT_BYTES and ZENITH_MAX_AUDIO_BYTES must be >= 0")
	}
	if cfg.MemoryWindow <= 0 {
		return Config{}, fmt.Errorf("ZENITH_MEMORY_WINDOW must be > 0")
	}
	if cfg.VideoPollInterval <= 0 {
		return Config{}, fmt.Errorf("ZENITH_VIDEO_POLL_INTERVAL must be > 0")
	}
	if cfg.VideoProgressTick <= 0 {
		return Config{}, fmt.Errorf("ZENITH_VIDEO_PROGRESS_TICK must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("ZENITH_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("ZENITH_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("ZENITH_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("ZENITH_LIVE_MAX_DURATION must be > 0")
	}
	if cfg.LiveMaxSessionsPerPrincipal < 0 {
		return Config{}, fmt.Errorf("ZENITH_LIVE_MAX_SESSIONS_PER_PRINCIPAL must be >= 0")
	}
	if cfg.LiveTurnSilence < 0 {
		return Config{}, fmt.Errorf("ZENITH_LIVE_TURN_SILENCE must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ZENITH_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("ZENITH_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("ZENITH_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("ZENITH_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("ZENITH_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("ZENITH_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("ZENITH_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.S3Enabled() && (cfg.S3AccessKeyID == "") != (cfg.S3SecretAccessKey == "") {
		return Config{}, fmt.Errorf("ZENITH_S3_ACCESS_KEY_ID and ZENITH_S3_SECRET_ACCESS_KEY must be set together")
	}
	if !cfg.S3Enabled() && strings.TrimSpace(cfg.AssetDir) == "" {
		return Config{}, fmt.Errorf("ZENITH_ASSET_DIR must not be empty when S3 is not configured")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("ZENITH_API_KEYS must be set when ZENITH_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

// envDurationOr accepts Go durations ("1500ms") or bare milliseconds.
func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
