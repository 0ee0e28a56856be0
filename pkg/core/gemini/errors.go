package gemini

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/zenith/pkg/core"
)

// ErrNoImage is returned when an image response carries no inline data.
var ErrNoImage = errors.New("No image generated")

const entityNotFound = "Requested entity was not found"

// mapError converts a vendor failure into a *core.Error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return err
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		if strings.Contains(err.Error(), entityNotFound) {
			return core.NewNotFoundError(err.Error()).WithCode(core.CodeAPIKeyNotFound).WithCause(err)
		}
		return core.NewProviderError("gemini", err)
	}

	if strings.Contains(apiErr.Message, entityNotFound) {
		return core.NewNotFoundError(apiErr.Message).WithCode(core.CodeAPIKeyNotFound).WithCause(err)
	}

	var errType core.ErrorType
	switch apiErr.Status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		errType = core.ErrInvalidRequest
	case "UNAUTHENTICATED":
		errType = core.ErrAuthentication
	case "PERMISSION_DENIED":
		errType = core.ErrPermission
	case "NOT_FOUND":
		errType = core.ErrNotFound
	case "RESOURCE_EXHAUSTED":
		errType = core.ErrRateLimit
	case "INTERNAL":
		errType = core.ErrAPI
	case "UNAVAILABLE":
		errType = core.ErrOverloaded
	default:
		errType = core.ErrProvider
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		errType = core.ErrRateLimit
	case http.StatusServiceUnavailable:
		errType = core.ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = core.ErrAuthentication
	}

	out := &core.Error{Type: errType, Message: apiErr.Message, Code: apiErr.Status}
	return out.WithCause(err)
}
