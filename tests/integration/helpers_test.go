//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func login(t *testing.T) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"user":     adminUser,
		"password": adminPassword,
	})
	resp, err := http.Post(testServer.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Token string `json:"token"`
	}
	decodeJSON(t, resp, &loginResp)
	require.NotEmpty(t, loginResp.Token)
	return loginResp.Token
}

// adminRequest performs an authenticated JSON request against the admin API.
func adminRequest(t *testing.T, token, method, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, testServer.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// postForm posts form-encoded data the way the email provider does.
func postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()

	resp, err := http.Post(
		testServer.URL+path,
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

// createWebhook creates a webhook config through the admin API and returns
// its token. The webhook is deleted when the test finishes.
func createWebhook(t *testing.T, token string, payload map[string]any) (hookToken string) {
	t.Helper()

	resp := adminRequest(t, token, http.MethodPost, "/api/v1/webhooks/", payload)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Token      string `json:"token"`
		WebhookURL string `json:"webhook_url"`
	}
	decodeJSON(t, resp, &created)
	require.NotEmpty(t, created.Token)

	t.Cleanup(func() {
		resp := adminRequest(t, token, http.MethodDelete, "/api/v1/webhooks/"+created.Token, nil)
		resp.Body.Close()
	})

	return created.Token
}
