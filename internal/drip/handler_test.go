package drip

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
)

func newQueueRouter(f *processorFixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(map[string]*Processor{"hybrid": f.processor}).RegisterRoutes(r)
	return r
}

func TestProcessEndpoint(t *testing.T) {
	f := newFixture(t, ProcessorConfig{QueueName: "hybrid_queue"})
	router := newQueueRouter(f)

	_, err := f.processor.Enroll(context.Background(), domain.Subscriber{
		Email: "a@example.com", Phone: "+255700000001", ListID: "l1",
	}, []domain.Step{whatsappStep("1", 0)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/hybrid/process", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, f.whatsapp.sends, 1)
}

func TestProcessEndpointUnknownQueue(t *testing.T) {
	f := newFixture(t, ProcessorConfig{})
	router := newQueueRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queues/nope/process", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, ProcessorConfig{QueueName: "hybrid_queue"})
	router := newQueueRouter(f)

	_, err := f.processor.Enroll(context.Background(), domain.Subscriber{
		Email: "a@example.com", Phone: "+255700000001", ListID: "l1",
	}, []domain.Step{whatsappStep("1", 0), whatsappStep("2", 60)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues/hybrid/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 2, stats.RemainingSteps)
}

func TestListQueuesEndpoint(t *testing.T) {
	f := newFixture(t, ProcessorConfig{})
	router := newQueueRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Queues []string `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"hybrid"}, body.Queues)
}
