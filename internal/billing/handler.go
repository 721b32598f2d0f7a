package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// Handler serves the billing webhook endpoint. The body is read raw first so
// the signature check covers exactly the bytes that were signed.
type Handler struct {
	svc    *Service
	secret []byte
	log    *slog.Logger
}

func NewHandler(svc *Service, webhookSecret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, secret: []byte(webhookSecret), log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"cannot read body"}`, http.StatusBadRequest)
		return
	}
	if !h.verifySignature(body, r.Header.Get(SignatureHeader)) {
		http.Error(w, `{"error":"invalid signature"}`, http.StatusBadRequest)
		return
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if evt.ID == "" || evt.Type == "" {
		http.Error(w, `{"error":"event id and type are required"}`, http.StatusBadRequest)
		return
	}

	if err := h.svc.HandleEvent(r.Context(), evt); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			// Replays are acknowledged so the provider stops retrying.
			writeStatus(w, "duplicate", evt.Type)
			return
		}
		// Acknowledge with an error marker rather than 5xx: the provider
		// would otherwise retry forever while we investigate.
		h.log.Error("billing event processing failed", "event_id", evt.ID, "type", evt.Type, "error", err)
		writeStatus(w, "error", evt.Type)
		return
	}
	writeStatus(w, "success", evt.Type)
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeStatus(w http.ResponseWriter, status, eventType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "event_type": eventType})
}
