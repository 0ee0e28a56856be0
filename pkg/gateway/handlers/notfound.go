package handlers

import (
	"net/http"

	"github.com/vango-go/zenith/pkg/core"
)

// NotFoundHandler answers unrouted paths with the JSON error envelope so
// SDK clients can decode every gateway response the same way.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCoreErrorJSON(w, requestIDFromContext(r.Context()), &core.Error{
		Type:    core.ErrNotFound,
		Message: "no route for " + r.Method + " " + r.URL.Path,
		Code:    "unknown_route",
	}, http.StatusNotFound)
}
