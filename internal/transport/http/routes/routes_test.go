package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/infra/config"
	httproutes "github.com/taskbridge/provider-verification/internal/transport/http/routes"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	cfg := &config.AppConfig{
		App: config.AppSettings{Env: "test"},
		JWT: config.JWTSettings{Secret: "test-secret"},
	}

	return httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessEndpointWithoutCheckers(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestOnboardingRoutesRequireAuth(t *testing.T) {
	r := newTestEngine()

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/onboarding/progress"},
		{http.MethodGet, "/api/v1/onboarding/steps"},
		{http.MethodGet, "/api/v1/onboarding/session"},
		{http.MethodPut, "/api/v1/onboarding/stripe-validation"},
		{http.MethodDelete, "/api/v1/onboarding/documents"},
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(route.method, route.path, nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without a token: expected status 401, got %d", route.method, route.path, w.Code)
		}
	}
}
