package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okCheck(context.Context) error { return nil }

func failingCheck(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", CheckFunc(okCheck))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	check, ok := response.Checks["storage"]
	if !ok {
		t.Fatalf("expected storage check in response")
	}
	if !check.Critical {
		t.Errorf("expected storage check to be critical")
	}
}

func TestHealthHandler_CriticalFailure(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", CheckFunc(failingCheck))
	handler.RegisterOptional("kafka", CheckFunc(okCheck))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["storage"].Message != "connection refused" {
		t.Errorf("unexpected check message: %q", response.Checks["storage"].Message)
	}
}

func TestHealthHandler_OptionalFailureDegrades(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", CheckFunc(okCheck))
	handler.RegisterOptional("kafka", CheckFunc(failingCheck))

	response := handler.Evaluate(context.Background())
	if response.Status != StatusDegraded {
		t.Errorf("expected status degraded, got %s", response.Status)
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected ready with degraded optional dependency, got %d", w.Code)
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("redis", CheckFunc(failingCheck))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not ready") {
		t.Errorf("expected body to mention not ready, got %q", w.Body.String())
	}
}

func TestHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.SetTimeout(20 * time.Millisecond)
	handler.RegisterChecker("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	response := handler.Evaluate(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("check was not bounded by timeout: %s", elapsed)
	}
	if response.Checks["slow"].Status != StatusUnhealthy {
		t.Errorf("expected slow check to be unhealthy, got %s", response.Checks["slow"].Status)
	}
}

func TestHandler_NilCheckerIgnored(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("nothing", nil)

	response := handler.Evaluate(context.Background())
	if len(response.Checks) != 0 {
		t.Errorf("expected no checks, got %d", len(response.Checks))
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", response.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body ok, got %q", w.Body.String())
	}
}
