package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/crewchat/go-team-chat/internal/domain"
	"github.com/crewchat/go-team-chat/internal/services"
)

func mountUsers(svc usrSvcStub) *gin.Engine {
	h := New(chSvcStub{}, mbSvcStub{}, msgSvcStub{}, svc, subStub{})
	r := gin.New()
	r.POST("/users/me", h.RegisterMe)
	r.PUT("/users/me/status", h.UpdateStatus)
	return r
}

func TestRegisterMe(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// No identity -> 401
	{
		r := mountUsers(usrSvcStub{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/users/me", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("no identity -> %d", w.Code)
		}
	}

	// Registration is idempotent, always 200 with the stored profile.
	{
		r := mountUsers(usrSvcStub{ensure: func(_ context.Context, id string) (*domain.User, error) {
			return &domain.User{ID: id, Status: domain.StatusOffline}, nil
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/users/me", nil)
		req.Header.Set("X-User-ID", "dana")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("register -> %d", w.Code)
		}
		var out UserResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.User.ID != "dana" || out.User.Status != domain.StatusOffline {
			t.Fatalf("user = %+v", out.User)
		}
	}

	// Store failure -> 500
	{
		r := mountUsers(usrSvcStub{ensure: func(context.Context, string) (*domain.User, error) {
			return nil, errors.New("disk on fire")
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/users/me", nil)
		req.Header.Set("X-User-ID", "dana")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("store failure -> %d", w.Code)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Missing body -> 400
	{
		r := mountUsers(usrSvcStub{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/me/status", bytes.NewBufferString(`{}`))
		req.Header.Set("X-User-ID", "dana")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("missing status -> %d", w.Code)
		}
	}

	// Unknown enum value -> 400 with a stable code
	{
		r := mountUsers(usrSvcStub{setStatus: func(context.Context, string, string) (*domain.User, error) {
			return nil, services.ErrInvalidStatus
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/me/status", bytes.NewBufferString(`{"status":"busy"}`))
		req.Header.Set("X-User-ID", "dana")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("invalid status -> %d", w.Code)
		}
		var er ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &er)
		if er.Code != ErrCodeBadRequest {
			t.Fatalf("code = %q", er.Code)
		}
	}

	// Unregistered caller -> 404
	{
		r := mountUsers(usrSvcStub{setStatus: func(context.Context, string, string) (*domain.User, error) {
			return nil, services.ErrNotFound
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/me/status", bytes.NewBufferString(`{"status":"away"}`))
		req.Header.Set("X-User-ID", "ghost")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("unknown user -> %d", w.Code)
		}
	}

	// Success -> 200 with the new status
	{
		r := mountUsers(usrSvcStub{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/users/me/status", bytes.NewBufferString(`{"status":"away"}`))
		req.Header.Set("X-User-ID", "dana")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("update -> %d", w.Code)
		}
		var out UserResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.User.Status != domain.StatusAway {
			t.Fatalf("status = %q, want away", out.User.Status)
		}
	}
}
