package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/config"
	"stockpilot/internal/logger"
	"stockpilot/internal/portfolio"
	"stockpilot/pkg/types"
)

func advisorConfig(baseURL string) config.AdvisorConfig {
	return config.AdvisorConfig{
		BaseURL:      baseURL,
		APIKey:       "sk-test",
		PrimaryModel: "primary-model",
		BackupModel:  "backup-model",
		Timeout:      5 * time.Second,
		MaxTokens:    500,
	}
}

func decisionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
}

func testRequest() Request {
	return Request{
		State:  portfolio.NewState(1000),
		Prices: map[string]float64{},
	}
}

func TestPropose_PrimaryModelSucceeds(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(decisionResponse(
			`{"decisions": [{"action": "BUY", "ticker": "ABEO", "confidence": 0.8, "position_size": 0.1}]}`))
	}))
	defer server.Close()

	a := NewOpenAIAdvisor(advisorConfig(server.URL), logger.NewDiscard())
	orders, err := a.Propose(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ABEO", orders[0].Ticker)
	assert.Equal(t, types.SideBuy, orders[0].Side)
	assert.Equal(t, []string{"primary-model"}, models)
}

func TestPropose_FallsBackToBackupModel(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)

		if req.Model == "primary-model" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(decisionResponse(`{"decisions": [{"action": "SELL", "ticker": "XYZ", "quantity": 3}]}`))
	}))
	defer server.Close()

	a := NewOpenAIAdvisor(advisorConfig(server.URL), logger.NewDiscard())
	orders, err := a.Propose(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "XYZ", orders[0].Ticker)
	assert.Equal(t, []string{"primary-model", "backup-model"}, models)
}

func TestPropose_UnparseableResponseTriggersFallback(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(decisionResponse("I would rather discuss the weather."))
			return
		}
		json.NewEncoder(w).Encode(decisionResponse(`{"decisions": []}`))
	}))
	defer server.Close()

	a := NewOpenAIAdvisor(advisorConfig(server.URL), logger.NewDiscard())
	orders, err := a.Propose(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 2, calls)
}

func TestPropose_BothModelsFailingIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "down", "type": "server_error"}}`))
	}))
	defer server.Close()

	a := NewOpenAIAdvisor(advisorConfig(server.URL), logger.NewDiscard())
	orders, err := a.Propose(context.Background(), testRequest())
	assert.Error(t, err)
	assert.Empty(t, orders, "failure must never fabricate orders")
}

func TestPropose_ResearchUsesResearchModel(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)
		json.NewEncoder(w).Encode(decisionResponse(`{"decisions": []}`))
	}))
	defer server.Close()

	cfg := advisorConfig(server.URL)
	cfg.ResearchModel = "research-model"
	a := NewOpenAIAdvisor(cfg, logger.NewDiscard())

	req := testRequest()
	req.Research = true
	_, err := a.Propose(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"research-model"}, models)
}
