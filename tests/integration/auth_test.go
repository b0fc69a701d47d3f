//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRejectsBadCredentials(t *testing.T) {
	body, _ := json.Marshal(map[string]string{
		"user":     adminUser,
		"password": "wrong",
	})
	resp, err := http.Post(testServer.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAPIRequiresToken(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/api/v1/webhooks/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAPIAcceptsIssuedToken(t *testing.T) {
	token := login(t)

	resp := adminRequest(t, token, http.MethodGet, "/api/v1/webhooks/", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		resp, err := http.Get(testServer.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
