package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func TestRouteHandlerHappyPath(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"task_type": "openai", "tokens": 100})
	resp, err := http.Post(srv.URL+"/v1/route", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["Provider"] != "openai" {
		t.Fatalf("expected provider openai, got %+v", out)
	}
}

func TestRouteHandlerRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/route", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
