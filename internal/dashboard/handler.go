// Package dashboard serves the client-facing query surface: account info,
// job creation, job polling, and the credit transaction history.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vykso/backend/internal/ledger"
	"github.com/vykso/backend/internal/middleware"
	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/repository"
	"github.com/vykso/backend/internal/videos"
)

// AccountReader resolves account rows for the profile endpoint.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// CreditHistory lists the transaction log for an account.
type CreditHistory interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.CreditTransaction, error)
}

// VideoService is the job lifecycle surface the dashboard needs.
type VideoService interface {
	Create(ctx context.Context, accountID uuid.UUID, req videos.CreateRequest) (*models.VideoJob, error)
	Get(ctx context.Context, id uuid.UUID) (*models.VideoJob, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.VideoJob, error)
}

type Handler struct {
	accounts AccountReader
	credits  CreditHistory
	videos   VideoService
	log      *slog.Logger
}

func NewHandler(accounts AccountReader, credits CreditHistory, videoSvc VideoService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{accounts: accounts, credits: credits, videos: videoSvc, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	acc, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get account failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                 acc.ID,
		"email":              acc.Email,
		"display_name":       acc.DisplayName,
		"plan":               acc.Plan,
		"plan_status":        acc.PlanStatus,
		"tier":               acc.Tier,
		"aspect_ratio":       acc.AspectRatio,
		"credits":            acc.Credits,
		"current_period_end": acc.CurrentPeriodEnd,
	})
}

type createVideoRequest struct {
	Prompt             string   `json:"prompt"`
	Model              string   `json:"model"`
	DurationSeconds    int      `json:"duration_seconds"`
	ReferenceImageURLs []string `json:"reference_image_urls"`
}

// POST /api/v1/videos
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())

	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = models.ModelSora
	}

	job, err := h.videos.Create(r.Context(), accountID, videos.CreateRequest{
		Prompt:             strings.TrimSpace(req.Prompt),
		Model:              req.Model,
		DurationSeconds:    req.DurationSeconds,
		ReferenceImageURLs: req.ReferenceImageURLs,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientCredits):
			http.Error(w, `{"error":"insufficient credits","action":"top_up"}`, http.StatusPaymentRequired)
		case errors.Is(err, videos.ErrInvalidDuration), errors.Is(err, videos.ErrEmptyPrompt):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.log.Error("create video failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// GET /api/v1/videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	list, err := h.videos.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.log.Error("list videos failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.VideoJob{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	job, err := h.videos.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get video failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if job.AccountID != accountID {
		// Jobs are private; an existing but foreign id reads as absent.
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GET /api/v1/credit-ledger
func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	list, err := h.credits.ListByAccountID(r.Context(), accountID)
	if err != nil {
		h.log.Error("list credit ledger failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, list)
}
