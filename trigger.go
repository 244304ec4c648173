package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

// triggerEnvelope is the bus envelope carrying a job creation notice. A
// payload with a top-level Records list is the old storage-notification
// shape, which this worker acknowledges but does not process.
type triggerEnvelope struct {
	Source     string                 `json:"source"`
	DetailType string                 `json:"detail-type"`
	Detail     map[string]interface{} `json:"detail"`
	Records    []json.RawMessage      `json:"Records"`
}

// decodeTrigger extracts the job id from a trigger payload. legacy is true
// for the records-style shape, which is a documented no-op rather than an
// error.
func decodeTrigger(body []byte) (jobID string, legacy bool, err error) {
	var event triggerEnvelope
	if err := json.Unmarshal(body, &event); err != nil {
		return "", false, jobErr(InvalidTriggerPayload, "", err)
	}

	id, _ := event.Detail["jobId"].(string)
	id = strings.TrimSpace(id)
	if id != "" {
		return id, false, nil
	}

	if len(event.Records) > 0 {
		return "", true, nil
	}

	return "", false, jobErr(InvalidTriggerPayload, "", errors.New("jobId not found in event detail"))
}

// NewMux exposes the worker handlers for testing.
func NewMux(w *Worker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", w.handleJob)
	mux.HandleFunc("/healthz", healthz)
	return mux
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (w *Worker) handleJob(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10*1024*1024)) // 10MB limit
	if err != nil {
		log.Printf("Failed to read trigger body: %v", err)
		w.metrics.triggersTotal.WithLabelValues("error").Inc()
		http.Error(rw, "Failed to read request body", http.StatusBadRequest)
		return
	}

	// Verify trigger signature if secret is configured
	if w.config.WebhookSecret != "" {
		signature := r.Header.Get("X-Trigger-Signature")
		if !w.verifyTriggerSignature(body, signature) {
			log.Printf("Invalid trigger signature")
			w.metrics.triggersTotal.WithLabelValues("invalid_signature").Inc()
			http.Error(rw, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	jobID, legacy, err := decodeTrigger(body)
	if legacy {
		log.Printf("Received records-style storage event, not a job trigger; ignoring")
		w.metrics.triggersTotal.WithLabelValues("legacy").Inc()
		writeJSON(rw, http.StatusOK, map[string]string{
			"status": "acknowledged",
			"reason": "records-style payload is not supported",
		})
		return
	}
	if err != nil {
		log.Printf("Error processing job unknown: %v", err)
		w.metrics.triggersTotal.WithLabelValues("invalid").Inc()
		writeJSON(rw, http.StatusBadRequest, map[string]string{
			"kind":  string(InvalidTriggerPayload),
			"error": err.Error(),
		})
		return
	}

	w.metrics.triggersTotal.WithLabelValues("accepted").Inc()

	// The invocation environment's deadline is the only bound; propagate it.
	result, err := w.ProcessJob(r.Context(), jobID)
	if err != nil {
		log.Printf("Error processing job %s: %v", jobID, err)
		w.metrics.jobsTotal.WithLabelValues("error").Inc()
		writeJSON(rw, http.StatusInternalServerError, map[string]string{
			"jobId": jobID,
			"kind":  string(KindOf(err)),
			"error": err.Error(),
		})
		return
	}

	w.metrics.jobsTotal.WithLabelValues("success").Inc()
	writeJSON(rw, http.StatusOK, result)
}

func (w *Worker) verifyTriggerSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(w.config.WebhookSecret))
	mac.Write(body)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))

	// Constant time comparison to prevent timing attacks
	return hmac.Equal([]byte(signature), []byte(expectedMAC))
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
