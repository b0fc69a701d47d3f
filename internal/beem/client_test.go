package beem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:         "key",
		SecretKey:      "secret",
		SenderNumber:   "255700000001",
		APIBaseURL:     server.URL,
		BroadcastURL:   server.URL + "/broadcast",
		TemplateUserID: "42",
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{SecretKey: "s", APIBaseURL: "http://x", BroadcastURL: "http://y"})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k", SecretKey: "s", BroadcastURL: "http://y"})
	assert.Error(t, err)
}

func TestTemplatesFiltersUnapproved(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/message-templates", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id":      10,
					"name":    "welcome",
					"content": "Hello {{1}}, your code is {{2}}. Bye {{1}}.",
					"status":  "enabled",
					"metadata": []map[string]any{
						{"status": map[string]any{"approved": true}},
					},
				},
				{
					"id":      11,
					"name":    "pending",
					"content": "Pending template",
					"status":  "enabled",
					"metadata": []map[string]any{
						{"status": map[string]any{"approved": false}},
					},
				},
				{
					"id":      12,
					"name":    "disabled",
					"content": "Disabled template",
					"status":  "disabled",
					"metadata": []map[string]any{
						{"status": map[string]any{"approved": true}},
					},
				},
			},
		})
	})

	templates, err := client.Templates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)

	assert.Equal(t, 10, templates[0].ID)
	assert.Equal(t, "welcome", templates[0].Name)
	assert.Equal(t, 2, templates[0].Placeholders, "repeated placeholders counted once")
	assert.Equal(t, "text", templates[0].Type)
	assert.Equal(t, "en", templates[0].Language)
}

func TestSendTemplateSuccess(t *testing.T) {
	var captured []broadcastMessage

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/broadcast", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"successful": true,
				"jobId":      "job-123",
				"message":    "queued",
			},
		})
	})

	result, err := client.SendTemplate(context.Background(), "255712345678", "77", []string{"Asha"})
	require.NoError(t, err)

	assert.Equal(t, "job-123", result.JobID)
	require.Len(t, captured, 1)
	assert.Equal(t, "255700000001", captured[0].FromAddr)
	assert.Equal(t, "whatsapp", captured[0].Channel)
	assert.Equal(t, 77, captured[0].TemplateData.ID)
	require.Len(t, captured[0].DestinationAddr, 1)
	assert.Equal(t, "+255712345678", captured[0].DestinationAddr[0].PhoneNumber)
	assert.Equal(t, []string{"Asha"}, captured[0].DestinationAddr[0].Params)
}

func TestSendTemplateRejectsNonNumericID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.SendTemplate(context.Background(), "255712345678", "welcome_v2", nil)
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Message, "not numeric")
}

func TestSendTemplateAPIFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": map[string]any{"message": "invalid destination"},
		})
	})

	_, err := client.SendTemplate(context.Background(), "bad", "77", nil)
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, http.StatusUnprocessableEntity, sendErr.StatusCode)
	assert.Contains(t, sendErr.Message, "invalid destination")
}

func TestSendTemplateUnsuccessfulResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"successful": false,
				"message":    "template not found",
			},
		})
	})

	_, err := client.SendTemplate(context.Background(), "255712345678", "9999", nil)
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Message, "template not found")
}
