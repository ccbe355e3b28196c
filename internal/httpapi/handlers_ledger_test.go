package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func TestAppendAndFetchLedger(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"event": "created"})
	resp, err := http.Post(srv.URL+"/v1/sessions/s1/ledger", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	fetchResp, err := http.Get(srv.URL + "/v1/sessions/s1/ledger")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer fetchResp.Body.Close()
	var out map[string]any
	json.NewDecoder(fetchResp.Body).Decode(&out)
	entries, _ := out["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", out)
	}
}
