package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCorsMiddleware(t *testing.T) {
	called := false
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("preflight short-circuits", func(t *testing.T) {
		called = false
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/quozen.v1.GroupService/GetGroup", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if called {
			t.Error("preflight should not reach the handler")
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
			t.Errorf("Authorization not allowed: %q", rec.Header().Get("Access-Control-Allow-Headers"))
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "Quozen-Conflict-Actual") {
			t.Errorf("conflict header not exposed: %q", rec.Header().Get("Access-Control-Expose-Headers"))
		}
	})

	t.Run("post passes through", func(t *testing.T) {
		called = false
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quozen.v1.GroupService/GetGroup", nil))

		if !called || rec.Code != http.StatusTeapot {
			t.Errorf("expected handler to run, got code %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing allow-origin header")
		}
	})
}
