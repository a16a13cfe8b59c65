package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondError(resp, http.StatusConflict, "busy")

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"busy"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		NodeID int `json:"nodeId"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nodeId":12}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &payload); err != nil {
		t.Fatalf("DecodeJSON err: %v", err)
	}
	if payload.NodeID != 12 {
		t.Fatalf("unexpected node id: %d", payload.NodeID)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &payload); err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	SendSSEEvent(resp, resp, "notify", map[string]string{"contact": "Mira"})

	if resp.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", resp.Header().Get("Content-Type"))
	}
	want := "event: notify\ndata: {\"contact\":\"Mira\"}\n\n"
	if resp.Body.String() != want {
		t.Fatalf("unexpected body: %q", resp.Body.String())
	}
	if !resp.Flushed {
		t.Fatal("expected flush")
	}
}
