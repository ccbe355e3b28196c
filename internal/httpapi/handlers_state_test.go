package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func TestSaveAndGetStateRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"foo": "bar"})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/sessions/s1", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/v1/sessions/s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
	var rec map[string]any
	if err := json.NewDecoder(getResp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["SessionID"] != "s1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGetMissingSessionReturns404(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/sessions/ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteStateIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestValidateIntegrityOnSavedSession(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"foo": "bar"})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/sessions/s1", bytes.NewReader(body))
	resp, _ := http.DefaultClient.Do(req)
	resp.Body.Close()

	intResp, err := http.Get(srv.URL + "/v1/sessions/s1/integrity")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer intResp.Body.Close()
	var out map[string]any
	json.NewDecoder(intResp.Body).Decode(&out)
	if out["valid"] != true {
		t.Fatalf("expected valid integrity, got %+v", out)
	}
}
