package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/handlers"
)

func serve(r *gin.Engine, remote, auth string) (int, string) {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.RemoteAddr = remote
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body.Code
}

func TestAllowedIPs(t *testing.T) {
	require := require.New(t)
	a := NewAllowedIPs(nil, []string{"10.1.0.0/16", "192.168.1.7", "not-an-ip", "300.0.0.0/8"})

	require.True(a.Allowed("127.0.0.1"))
	require.True(a.Allowed("::1"))
	require.True(a.Allowed("10.1.200.3"))
	require.True(a.Allowed("192.168.1.7"))
	require.False(a.Allowed("192.168.1.8"))
	require.False(a.Allowed("10.2.0.1"))
	require.False(a.Allowed("garbage"))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", a.Restrict(), func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	status, _ := serve(r, "10.1.0.9:5555", "")
	require.Equal(http.StatusOK, status)
	status, code := serve(r, "8.8.8.8:5555", "")
	require.Equal(http.StatusForbidden, status)
	require.Equal("IP_NOT_ALLOWED", code)
}

func TestRequireAdminAuth(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)
	secret := "middleware-secret"

	var seen string
	r := gin.New()
	r.GET("/guarded", NewAdminAuthMiddleware(nil, secret).RequireAdminAuth(), func(c *gin.Context) {
		seen = c.GetString("admin_username")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	token, err := handlers.GenerateAdminJWTToken([]byte(secret), "root", time.Hour, time.Now())
	require.NoError(err)
	forged, err := handlers.GenerateAdminJWTToken([]byte("other"), "root", time.Hour, time.Now())
	require.NoError(err)

	cases := []struct {
		auth   string
		status int
		code   string
	}{
		{"", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"Token abc", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"Bearer ", http.StatusUnauthorized, "EMPTY_TOKEN"},
		{"Bearer " + forged, http.StatusUnauthorized, "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		status, code := serve(r, "127.0.0.1:1", tc.auth)
		require.Equal(tc.status, status, tc.auth)
		require.Equal(tc.code, code, tc.auth)
	}
	require.Empty(seen)

	status, _ := serve(r, "127.0.0.1:1", "Bearer "+token)
	require.Equal(http.StatusOK, status)
	require.Equal("root", seen)
}
