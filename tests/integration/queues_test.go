//go:build integration

package integration

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passResult struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

func processQueue(t *testing.T, token, queue string) passResult {
	t.Helper()

	resp := adminRequest(t, token, http.MethodPost, "/api/v1/queues/"+queue+"/process", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result passResult
	decodeJSON(t, resp, &result)
	return result
}

func TestHybridDripEndToEnd(t *testing.T) {
	beemMock.Reset()
	sendyMock.Reset()
	token := login(t)

	hookToken := createWebhook(t, token, map[string]any{
		"list_id":   "list-hybrid",
		"list_name": "Hybrid List",
		"config": map[string]any{
			"mode": "hybrid_drip",
			"sequence": []map[string]any{
				{
					"channel":     "whatsapp",
					"template_id": "101",
					"delay":       0,
					"delay_unit":  "minutes",
				},
				{
					"channel":    "email",
					"subject":    "Welcome [name]",
					"html_text":  "<p>Hello [name]</p>",
					"delay":      0,
					"delay_unit": "minutes",
				},
			},
		},
	})

	resp := postForm(t, "/hooks/"+hookToken+"/subscribe", url.Values{
		"trigger": {"subscribe"},
		"email":   {"juma@example.com"},
		"name":    {"Juma"},
		"Phone":   {"255712000111"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var subResult struct {
		Status        string `json:"status"`
		DripID        string `json:"drip_id"`
		EmailSteps    int    `json:"email_steps"`
		WhatsAppSteps int    `json:"whatsapp_steps"`
	}
	decodeJSON(t, resp, &subResult)
	require.Equal(t, "success", subResult.Status)
	require.NotEmpty(t, subResult.DripID)
	assert.Equal(t, 1, subResult.EmailSteps)
	assert.Equal(t, 1, subResult.WhatsAppSteps)

	// One step per entry per pass: the WhatsApp step goes out first, the
	// email step on the following pass.
	first := processQueue(t, token, "hybrid")
	assert.Equal(t, 1, first.Sent)
	assert.Equal(t, 0, first.Completed)

	second := processQueue(t, token, "hybrid")
	assert.Equal(t, 1, second.Sent)
	assert.Equal(t, 1, second.Completed)

	// A third pass finds nothing due.
	third := processQueue(t, token, "hybrid")
	assert.Equal(t, 0, third.Processed)

	var broadcasts, campaigns int
	for _, req := range beemMock.Requests() {
		if req.Path == "/broadcast" {
			broadcasts++
		}
	}
	for _, req := range sendyMock.Requests() {
		if req.Path == "/api/campaigns/create.php" {
			campaigns++
			assert.Equal(t, "Welcome Juma", req.Form["subject"])
			assert.Equal(t, "list-hybrid", req.Form["list_ids"])
		}
	}
	assert.Equal(t, 1, broadcasts)
	assert.Equal(t, 1, campaigns)
}

func TestQueueStats(t *testing.T) {
	token := login(t)

	resp := adminRequest(t, token, http.MethodGet, "/api/v1/queues/drip/stats", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	}
	decodeJSON(t, resp, &stats)
	assert.GreaterOrEqual(t, stats.Total, 0)
}

func TestUnknownQueue(t *testing.T) {
	token := login(t)

	resp := adminRequest(t, token, http.MethodPost, "/api/v1/queues/nope/process", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
