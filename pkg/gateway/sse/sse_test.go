package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriter_Send(t *testing.T) {
	rr := httptest.NewRecorder()
	sw, err := New(rr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Send("stage", map[string]string{"stage": "narrative"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sw.Send("done", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if ct := rr.Header().Get("Content-Type"); ct != ContentType {
		t.Fatalf("content-type=%q", ct)
	}
	want := "event: stage\ndata: {\"stage\":\"narrative\"}\n\nevent: done\ndata: {\"n\":1}\n\n"
	if got := rr.Body.String(); got != want {
		t.Fatalf("body=%q", got)
	}
	if !rr.Flushed {
		t.Fatalf("expected flush")
	}
}

func TestWants(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if Wants(r) {
		t.Fatalf("plain request should not want a stream")
	}
	r.Header.Set("Accept", "text/event-stream")
	if !Wants(r) {
		t.Fatalf("expected stream")
	}
}

type noFlush struct{ http.ResponseWriter }

func TestNew_RequiresFlusher(t *testing.T) {
	if _, err := New(noFlush{httptest.NewRecorder()}); err == nil {
		t.Fatalf("expected error")
	}
}
