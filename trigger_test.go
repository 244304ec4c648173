package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeTrigger(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantJobID  string
		wantLegacy bool
		wantErr    bool
	}{
		{
			name:      "valid job trigger",
			body:      `{"detail": {"jobId": "abc123"}}`,
			wantJobID: "abc123",
		},
		{
			name:      "full bus envelope",
			body:      `{"source":"intake","detail-type":"JobCreated","detail":{"jobId":"j-42","extra":1}}`,
			wantJobID: "j-42",
		},
		{
			name:    "missing jobId",
			body:    `{"detail": {"other": "x"}}`,
			wantErr: true,
		},
		{
			name:    "empty jobId",
			body:    `{"detail": {"jobId": "  "}}`,
			wantErr: true,
		},
		{
			name:    "no detail at all",
			body:    `{}`,
			wantErr: true,
		},
		{
			name:       "legacy records payload",
			body:       `{"Records": [{"s3": {"object": {"key": "x.pdf"}}}]}`,
			wantLegacy: true,
		},
		{
			name:    "not json",
			body:    `not json at all`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobID, legacy, err := decodeTrigger([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got jobID=%q legacy=%v", jobID, legacy)
				}
				if KindOf(err) != InvalidTriggerPayload {
					t.Errorf("kind = %q, want InvalidTriggerPayload", KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeTrigger: %v", err)
			}
			if jobID != tt.wantJobID {
				t.Errorf("jobID = %q, want %q", jobID, tt.wantJobID)
			}
			if legacy != tt.wantLegacy {
				t.Errorf("legacy = %v, want %v", legacy, tt.wantLegacy)
			}
		})
	}
}

// Full scenario: 3-page source in bucket "docs", bus "bus1".
func TestHandleJobScenario(t *testing.T) {
	store := &fakeStore{objects: sourceObjects("abc123", "docs")}
	pub := &fakePublisher{}
	w := newTestWorker(t,
		&Config{PDFBucket: "docs", EventBusName: "bus1"},
		store, &fakeRenderer{pages: 3, failAt: -1}, pub)
	mux := NewMux(w)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs",
		strings.NewReader(`{"detail": {"jobId": "abc123"}}`))
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var result JobResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	want := JobResult{JobID: "abc123", Pages: 3, Status: "success"}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}

	for _, key := range []string{
		"docs/abc123_pages/page_1.png",
		"docs/abc123_pages/page_2.png",
		"docs/abc123_pages/page_3.png",
	} {
		if _, ok := store.objects[key]; !ok {
			t.Errorf("missing uploaded object %s", key)
		}
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	detail, _ := json.Marshal(pub.events[0])
	wantDetail := `{"jobId":"abc123","pageCount":3,"imagePrefix":"abc123_pages"}`
	if string(detail) != wantDetail {
		t.Errorf("event detail = %s, want %s", detail, wantDetail)
	}
}

func TestHandleJobInvalidPayload(t *testing.T) {
	w := newTestWorker(t, &Config{PDFBucket: "docs"},
		&fakeStore{}, &fakeRenderer{failAt: -1}, &fakePublisher{})
	mux := NewMux(w)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"detail":{}}`))
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["kind"] != string(InvalidTriggerPayload) {
		t.Errorf("kind = %q, want InvalidTriggerPayload", resp["kind"])
	}
}

func TestHandleJobLegacyRecordsIsNoOp(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(t, &Config{PDFBucket: "docs"},
		store, &fakeRenderer{failAt: -1}, &fakePublisher{})
	mux := NewMux(w)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs",
		strings.NewReader(`{"Records": [{"s3": {}}]}`))
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["status"] != "acknowledged" {
		t.Errorf("status = %q, want acknowledged", resp["status"])
	}
	if store.downloads != 0 {
		t.Errorf("legacy payload triggered processing")
	}
}

func TestHandleJobFailureSurfacesKind(t *testing.T) {
	// Missing source object -> SourceFetchFailed surfaced as a 500.
	w := newTestWorker(t, &Config{PDFBucket: "docs", EventBusName: "bus1"},
		&fakeStore{}, &fakeRenderer{pages: 1, failAt: -1}, &fakePublisher{})
	mux := NewMux(w)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs",
		strings.NewReader(`{"detail": {"jobId": "ghost"}}`))
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["kind"] != string(SourceFetchFailed) {
		t.Errorf("kind = %q, want SourceFetchFailed", resp["kind"])
	}
	if resp["jobId"] != "ghost" {
		t.Errorf("jobId = %q, want ghost", resp["jobId"])
	}
}

func TestHandleJobMethodNotAllowed(t *testing.T) {
	w := newTestWorker(t, &Config{PDFBucket: "docs"},
		&fakeStore{}, &fakeRenderer{failAt: -1}, &fakePublisher{})
	mux := NewMux(w)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestHandleJobSignatureVerification(t *testing.T) {
	secret := "topsecret"
	store := &fakeStore{objects: sourceObjects("abc123", "docs")}
	w := newTestWorker(t,
		&Config{PDFBucket: "docs", WebhookSecret: secret},
		store, &fakeRenderer{pages: 1, failAt: -1}, &fakePublisher{})
	mux := NewMux(w)
	body := `{"detail": {"jobId": "abc123"}}`

	// Unsigned request is rejected.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned: status = %d, want 401", rr.Code)
	}

	// Properly signed request is processed.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	sig := hex.EncodeToString(mac.Sum(nil))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("X-Trigger-Signature", sig)
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("signed: status = %d, body = %s", rr.Code, rr.Body.String())
	}
}
