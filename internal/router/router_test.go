package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/config"
)

func newTestRouter(cors config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{CORS: cors}
	return SetupRouter(cfg, Handlers{
		Health: func() gin.H { return gin.H{"database": "disabled"} },
	}, nil)
}

func request(r *gin.Engine, method, path, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndFallback(t *testing.T) {
	require := require.New(t)
	r := newTestRouter(config.CORSConfig{})

	w := request(r, http.MethodGet, "/ping", "", nil)
	require.Equal(http.StatusOK, w.Code)
	require.JSONEq(`{"message":"pong"}`, w.Body.String())

	w = request(r, http.MethodGet, "/health", "", nil)
	require.Equal(http.StatusOK, w.Code)
	require.JSONEq(`{"status":"ok","service":"bridged","database":"disabled"}`, w.Body.String())

	w = request(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(http.StatusOK, w.Code)
	require.True(strings.Contains(w.Body.String(), "go_goroutines"))

	w = request(r, http.MethodGet, "/nowhere", "", nil)
	require.Equal(http.StatusNotFound, w.Code)
	require.Contains(w.Body.String(), `"NOT_FOUND"`)
}

func TestAdminRoutesAreIPRestricted(t *testing.T) {
	require := require.New(t)
	r := newTestRouter(config.CORSConfig{})

	w := request(r, http.MethodPut, "/api/v1/admin/home/threshold", "203.0.113.9:4000", nil)
	require.Equal(http.StatusForbidden, w.Code)
	require.Contains(w.Body.String(), "IP_NOT_ALLOWED")

	w = request(r, http.MethodPut, "/api/v1/admin/home/threshold", "127.0.0.1:4000", nil)
	require.Equal(http.StatusUnauthorized, w.Code)
	require.Contains(w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestCORS(t *testing.T) {
	require := require.New(t)

	r := newTestRouter(config.CORSConfig{AllowedOrigins: []string{"https://relayer.example"}, AllowCredentials: true})
	w := request(r, http.MethodOptions, "/api/v1/home/status", "", map[string]string{"Origin": "https://relayer.example"})
	require.Equal(http.StatusNoContent, w.Code)
	require.Equal("https://relayer.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal("true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = request(r, http.MethodGet, "/ping", "", map[string]string{"Origin": "https://evil.example"})
	require.Equal(http.StatusOK, w.Code)
	require.Empty(w.Header().Get("Access-Control-Allow-Origin"))

	r = newTestRouter(config.CORSConfig{})
	w = request(r, http.MethodGet, "/ping", "", map[string]string{"Origin": "https://any.example"})
	require.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
}
