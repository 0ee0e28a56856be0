package mw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// recordingWriter is a bare ResponseWriter; the embedding types below add
// Flusher and Hijacker in each combination.
type recordingWriter struct {
	header   http.Header
	status   int
	body     bytes.Buffer
	flushed  bool
	hijacked bool
}

func newRecordingWriter() *recordingWriter { return &recordingWriter{header: make(http.Header)} }

func (w *recordingWriter) Header() http.Header { return w.header }

func (w *recordingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.Write(p)
}

type flushingWriter struct{ *recordingWriter }

func (w flushingWriter) Flush() { w.flushed = true }

type hijackingWriter struct{ *recordingWriter }

func (w hijackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

type flushHijackWriter struct{ *recordingWriter }

func (w flushHijackWriter) Flush() { w.flushed = true }

func (w flushHijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func logRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal log %q: %v", line, err)
	}
	return rec
}

func TestAccessLog_KeepsWriterCapabilities(t *testing.T) {
	cases := []struct {
		name       string
		writer     func(*recordingWriter) http.ResponseWriter
		canFlush   bool
		canHijack  bool
		wantStatus int
	}{
		{"plain", func(r *recordingWriter) http.ResponseWriter { return r }, false, false, http.StatusOK},
		{"orchestrate stream", func(r *recordingWriter) http.ResponseWriter { return flushingWriter{r} }, true, false, http.StatusOK},
		{"live upgrade", func(r *recordingWriter) http.ResponseWriter { return hijackingWriter{r} }, false, true, http.StatusSwitchingProtocols},
		{"both", func(r *recordingWriter) http.ResponseWriter { return flushHijackWriter{r} }, true, true, http.StatusSwitchingProtocols},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecordingWriter()
			var logs bytes.Buffer
			h := AccessLog(slog.New(slog.NewJSONHandler(&logs, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				f, okFlush := w.(http.Flusher)
				hj, okHijack := w.(http.Hijacker)
				if okFlush != tc.canFlush || okHijack != tc.canHijack {
					t.Fatalf("flusher=%v hijacker=%v", okFlush, okHijack)
				}
				if okFlush {
					f.Flush()
				}
				if okHijack {
					_, _, _ = hj.Hijack()
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/orchestrate", nil)
			h.ServeHTTP(tc.writer(rec), req.WithContext(WithRequestID(context.Background(), "req_1")))

			if rec.flushed != tc.canFlush || rec.hijacked != tc.canHijack {
				t.Fatalf("flushed=%v hijacked=%v", rec.flushed, rec.hijacked)
			}
			entry := logRecord(t, &logs)
			if got, _ := entry["status"].(float64); int(got) != tc.wantStatus {
				t.Fatalf("status=%v want %d", entry["status"], tc.wantStatus)
			}
			if entry["request_id"] != "req_1" || entry["path"] != "/v1/orchestrate" {
				t.Fatalf("entry=%v", entry)
			}
		})
	}
}

func TestAccessLog_ExplicitStatus(t *testing.T) {
	var logs bytes.Buffer
	h := AccessLog(slog.New(slog.NewJSONHandler(&logs, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"v1"}`))
	}))
	h.ServeHTTP(newRecordingWriter(), httptest.NewRequest(http.MethodPost, "/v1/video", nil))

	if got, _ := logRecord(t, &logs)["status"].(float64); int(got) != http.StatusAccepted {
		t.Fatalf("status=%v", got)
	}
}

func TestAccessLog_UnwrapsForResponseController(t *testing.T) {
	rec := newRecordingWriter()
	h := AccessLog(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Fatalf("flush via controller: %v", err)
		}
	}))
	h.ServeHTTP(flushingWriter{rec}, httptest.NewRequest(http.MethodGet, "/v1/text", nil))

	if !rec.flushed {
		t.Fatalf("expected flush to reach the underlying writer")
	}
}

func TestRequestID_PropagatesOrMints(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/agent", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("seen=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/agent", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxInboundRequestID+1))
	h.ServeHTTP(rr, req)
	if !strings.HasPrefix(seen, "req_") || len(seen) != len("req_")+36 {
		t.Fatalf("minted id=%q", seen)
	}
}
