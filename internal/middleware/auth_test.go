package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type fakeAuth map[string]string

func (f fakeAuth) Authenticate(_ context.Context, token string) (string, error) {
	if login, ok := f[token]; ok {
		return login, nil
	}
	return "", errors.New("unknown token")
}

func TestBearerAuth(t *testing.T) {
	auth := fakeAuth{"good": "alice"}

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantUser string
	}{
		{name: "public register", path: "/api/register", wantCode: http.StatusOK},
		{name: "public health", path: "/health", wantCode: http.StatusOK},
		{name: "missing token", path: "/rest/v1/folders", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/rest/v1/folders", header: "Basic good", wantCode: http.StatusUnauthorized},
		{name: "unknown token", path: "/rest/v1/folders", header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "valid header", path: "/rest/v1/folders", header: "Bearer good", wantCode: http.StatusOK, wantUser: "alice"},
		{name: "valid query", path: "/realtime/v1?access_token=good", wantCode: http.StatusOK, wantUser: "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := BearerAuth(auth)(dummy)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if dummy.called != (tt.wantCode == http.StatusOK) {
				t.Errorf("next called = %v", dummy.called)
			}
			if dummy.called && GetUserIDFromContext(dummy.ctx) != tt.wantUser {
				t.Errorf("expected context user %q, got %q", tt.wantUser, GetUserIDFromContext(dummy.ctx))
			}
		})
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	if empty := GetUserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string for missing user, got '%s'", empty)
	}
	ctx := WithUserID(context.Background(), "bob")
	if val := GetUserIDFromContext(ctx); val != "bob" {
		t.Errorf("expected 'bob', got '%s'", val)
	}
}
