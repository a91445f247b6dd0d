package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/config"
)

func newAuthHandler(t *testing.T) (*AdminAuthHandler, string, time.Time) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := GenerateTOTPKey("")
	require.NoError(t, err)
	now := time.Now().UTC()

	h := NewAdminAuthHandler(config.AdminConfig{
		Username:   "root",
		Password:   "s3cret",
		TOTPSecret: key.Secret(),
		JWTSecret:  "jwt-test-secret",
	})
	h.now = func() time.Time { return now }
	return h, key.Secret(), now
}

func login(t *testing.T, h *AdminAuthHandler, body gin.H) (int, AdminLoginResponse) {
	t.Helper()
	r := gin.New()
	r.POST("/login", h.AdminLoginHandler)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp AdminLoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestAdminLoginIssuesVerifiableToken(t *testing.T) {
	require := require.New(t)
	h, secret, now := newAuthHandler(t)

	code, err := totp.GenerateCode(secret, now)
	require.NoError(err)

	status, resp := login(t, h, gin.H{"username": "root", "password": "s3cret", "totp_code": code})
	require.Equal(http.StatusOK, status, resp.Message)
	require.True(resp.Success)

	claims, err := ValidateAdminJWTToken([]byte("jwt-test-secret"), resp.Token)
	require.NoError(err)
	require.Equal("root", claims.Username)
	require.Equal("admin", claims.Role)

	_, err = ValidateAdminJWTToken([]byte("other-secret"), resp.Token)
	require.Error(err)
}

func TestAdminLoginRejections(t *testing.T) {
	require := require.New(t)
	h, secret, now := newAuthHandler(t)
	code, err := totp.GenerateCode(secret, now)
	require.NoError(err)

	status, resp := login(t, h, gin.H{"username": "root", "password": "wrong", "totp_code": code})
	require.Equal(http.StatusUnauthorized, status)
	require.Equal("Invalid credentials", resp.Message)

	status, resp = login(t, h, gin.H{"username": "admin", "password": "s3cret", "totp_code": code})
	require.Equal(http.StatusUnauthorized, status)
	require.Equal("Invalid credentials", resp.Message)

	stale, err := totp.GenerateCode(secret, now.Add(-10*time.Minute))
	require.NoError(err)
	status, resp = login(t, h, gin.H{"username": "root", "password": "s3cret", "totp_code": stale})
	require.Equal(http.StatusUnauthorized, status)
	require.Equal("Invalid TOTP code", resp.Message)

	status, _ = login(t, h, gin.H{"username": "root"})
	require.Equal(http.StatusBadRequest, status)

	unconfigured := NewAdminAuthHandler(config.AdminConfig{})
	status, _ = login(t, unconfigured, gin.H{"username": "admin", "password": "x", "totp_code": "123456"})
	require.Equal(http.StatusInternalServerError, status)
}

func TestExpiredAdminTokenIsRejected(t *testing.T) {
	require := require.New(t)
	secret := []byte("jwt-test-secret")

	token, err := GenerateAdminJWTToken(secret, "root", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(err)
	_, err = ValidateAdminJWTToken(secret, token)
	require.Error(err)

	_, err = GenerateAdminJWTToken(nil, "root", time.Hour, time.Now())
	require.Error(err)
}
