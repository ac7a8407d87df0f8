package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgserver "github.com/DjordjeVuckovic/etl-runner/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downChecker struct{}

func (downChecker) Name() string                 { return "postgres" }
func (downChecker) Healthy(context.Context) bool { return false }

func newTestServer(checkers ...pkgserver.HealthChecker) *Server {
	s := New(&Config{Port: "8080", CorsOrigins: []string{"*"}}).
		SetupMiddlewares().
		SetupErrorHandler().
		SetupHealthChecks("/health", checkers...).
		SetupOpenApi("/swagger/*")
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newTestServer(pkgserver.NewOkHealthChecker()), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"healthy":true,"checks":{"app":true}}`, rec.Body.String())

	rec = get(newTestServer(pkgserver.NewOkHealthChecker(), downChecker{}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":false`)
}

func TestOpenApi(t *testing.T) {
	rec := get(newTestServer(), "/swagger/doc.json")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/tasks/{name}/run"`)
}

func TestUnknownRoute(t *testing.T) {
	rec := get(newTestServer(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("USE_HTTP2", "true")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.UseHttp2)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CorsOrigins)

	t.Setenv("PORT", "70000")
	_, err = LoadConfig()
	assert.Error(t, err)
}
