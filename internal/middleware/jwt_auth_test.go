package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type stubValidator struct {
	tokens map[string]uuid.UUID
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	id, ok := s.tokens[token]
	if !ok {
		return uuid.Nil, errors.New("invalid token")
	}
	return id, nil
}

func TestJWTAuth_ValidToken(t *testing.T) {
	accID := uuid.New()
	v := &stubValidator{tokens: map[string]uuid.UUID{"good-token": accID}}

	var gotID uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = AccountIDFromCtx(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	JWTAuth(v)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != accID {
		t.Errorf("expected account %s in context, got %s", accID, gotID)
	}
}

func TestJWTAuth_Rejections(t *testing.T) {
	v := &stubValidator{tokens: map[string]uuid.UUID{"good-token": uuid.New()}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without valid auth")
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic Zm9vOmJhcg=="},
		{"unknown token", "Bearer bad-token"},
		{"empty bearer", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			JWTAuth(v)(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAccountIDFromCtx_Empty(t *testing.T) {
	if id := AccountIDFromCtx(context.Background()); id != uuid.Nil {
		t.Errorf("expected uuid.Nil for bare context, got %s", id)
	}
}
