// Package limits enforces size budgets on studio request payloads before
// they reach Gemini.
package limits

import (
	"fmt"
	"strings"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/gateway/config"
)

// ValidatePrompt rejects prompts larger than cfg.MaxPromptBytes.
func ValidatePrompt(param, prompt string, cfg config.Config) error {
	if cfg.MaxPromptBytes <= 0 {
		return nil
	}
	if n := int64(len(prompt)); n > cfg.MaxPromptBytes {
		return core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("%s is %d bytes, limit is %d", param, n, cfg.MaxPromptBytes),
			param,
		)
	}
	return nil
}

// ValidateAudioB64 rejects base64 soundtracks whose decoded size exceeds
// cfg.MaxAudioBytes. The payload is not decoded.
func ValidateAudioB64(param, b64 string, cfg config.Config) error {
	if cfg.MaxAudioBytes <= 0 {
		return nil
	}
	if decoded := estimateDecodedB64Bytes(b64); decoded > cfg.MaxAudioBytes {
		return core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("decoded audio %d bytes exceeds limit %d", decoded, cfg.MaxAudioBytes),
			param,
		)
	}
	return nil
}

func estimateDecodedB64Bytes(b64 string) int64 {
	// decoded ~= floor(len(b64) * 3/4) - padding.
	n := int64(len(b64))
	if n <= 0 {
		return 0
	}
	pad := int64(0)
	if strings.HasSuffix(b64, "==") {
		pad = 2
	} else if strings.HasSuffix(b64, "=") {
		pad = 1
	}
	decoded := (n * 3 / 4) - pad
	if decoded < 0 {
		return 0
	}
	return decoded
}
