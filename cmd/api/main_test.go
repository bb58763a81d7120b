package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/matheuspdias/managerclin/internal/config"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		Port:                   "0",
		LogLevel:               "error",
		DefaultDayStart:        "08:00",
		DefaultDayEnd:          "18:00",
		SlotCadenceMinutes:     30,
		IdempotencyTTL:         time.Hour,
		MeteringInterval:       time.Minute,
		MeteringConcurrency:    1,
		TelemedicineBaseURL:    "https://meet.example.test",
		TelemedicineRoomPrefix: "clinic",
		EmailProvider:          "stub",
	}
}

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, reg := setupMetrics()
	if handler == nil || reg == nil {
		t.Fatalf("expected non-nil handler and registry")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected go collector output")
	}
}

func TestSetupInMemory(t *testing.T) {
	logger := logging.New("error")
	application, err := setup(context.Background(), memoryConfig(), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer application.close()

	if application.stack.Dashboard != nil {
		t.Fatalf("expected no dashboard without postgres")
	}

	rr := httptest.NewRecorder()
	application.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthy service, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	application.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "managerclin_") {
		t.Fatalf("expected domain metrics to be registered")
	}

	req := httptest.NewRequest(http.MethodGet, "/credits", nil)
	req.Header.Set("X-Org-Id", "org-1")
	rr = httptest.NewRecorder()
	application.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected credits balance, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSetupRejectsBadDatabaseURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.DatabaseURL = "postgres://localhost:notaport/clinic"
	if _, err := setup(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error for invalid database url")
	}
}

func TestSetupMemoryStoreIgnoresDatabaseURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.UseMemoryStore = true
	cfg.DatabaseURL = "postgres://localhost:notaport/clinic"
	application, err := setup(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	application.close()
}

func TestSetupRequiresDatabaseInProduction(t *testing.T) {
	cfg := memoryConfig()
	cfg.Env = "production"
	if _, err := setup(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error without DATABASE_URL in production")
	}
}
