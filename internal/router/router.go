package router

import (
	"net/http"

	"github.com/vykso/backend/internal/auth"
	"github.com/vykso/backend/internal/billing"
	"github.com/vykso/backend/internal/dashboard"
	"github.com/vykso/backend/internal/generation"
	"github.com/vykso/backend/internal/middleware"
)

// New returns an http.Handler that serves the API under /api/v1.
// Webhook and callback endpoints skip JWT auth; they authenticate
// by signature (billing) or by provider task id (generation).
func New(authHandler *auth.Handler, dashHandler *dashboard.Handler, billingHandler *billing.Handler, callbackHandler *generation.CallbackHandler, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc(base+"/auth/register", methodPOST(authHandler.Register))
	mux.HandleFunc(base+"/auth/login", methodPOST(authHandler.Login))

	mux.Handle(base+"/webhooks/billing", methodPOSTh(billingHandler))
	mux.Handle(base+"/callbacks/generation", methodPOSTh(callbackHandler))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	authed := http.NewServeMux()
	authed.HandleFunc(base+"/account/me", methodGET(dashHandler.GetMe))
	authed.HandleFunc(base+"/credit-ledger", methodGET(dashHandler.ListCreditLedger))
	authed.HandleFunc(base+"/videos", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			dashHandler.CreateVideo(w, r)
		case http.MethodGet:
			dashHandler.ListVideos(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	authed.HandleFunc(base+"/videos/{id}", methodGET(dashHandler.GetVideo))

	mux.Handle(base+"/", middleware.JWTAuth(validator)(authed))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOSTh(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}
