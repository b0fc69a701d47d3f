//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogBrandsAndLists(t *testing.T) {
	token := login(t)

	resp := adminRequest(t, token, http.MethodGet, "/api/v1/brands", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var brands []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decodeJSON(t, resp, &brands)
	require.Len(t, brands, 1)
	assert.Equal(t, "Kwetu", brands[0].Name)

	resp2 := adminRequest(t, token, http.MethodGet, "/api/v1/lists?brand_id=1", nil)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var lists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decodeJSON(t, resp2, &lists)
	require.Len(t, lists, 1)
	assert.Equal(t, "list-1", lists[0].ID)
}

func TestCatalogTemplates(t *testing.T) {
	token := login(t)

	resp := adminRequest(t, token, http.MethodGet, "/api/v1/templates", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var templates []struct {
		ID           int    `json:"id"`
		Name         string `json:"name"`
		Placeholders int    `json:"placeholders"`
	}
	decodeJSON(t, resp, &templates)
	require.Len(t, templates, 1)
	assert.Equal(t, "welcome", templates[0].Name)
	assert.Equal(t, 1, templates[0].Placeholders)
}

func TestSubscriberStatus(t *testing.T) {
	token := login(t)

	resp := adminRequest(t, token, http.MethodGet,
		"/api/v1/subscribers/status?email=asha%40example.com&list_id=list-1", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Status string `json:"status"`
	}
	decodeJSON(t, resp, &status)
	assert.Equal(t, "Subscribed", status.Status)
}
