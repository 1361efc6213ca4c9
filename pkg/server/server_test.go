package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/cache"
	"github.com/saagar210/AssistSupport/pkg/coordinator"
	"github.com/saagar210/AssistSupport/pkg/intent"
	"github.com/saagar210/AssistSupport/pkg/store"
)

func newTestRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	}
	r.RemoteAddr = "192.0.2.1:54321"
	return r
}

func seededCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	st := store.NewMemoryStore()
	now := time.Now()
	require.NoError(t, st.PutArticle(context.Background(), &article.Article{
		ID:               "kb-1",
		Title:            "How to reset your VPN password",
		Body:             "Open the self-service portal and choose reset password under the VPN section.",
		Category:         article.CategoryProcedure,
		SourceDocumentID: "doc-1",
		IsActive:         true,
		QualityScore:     article.QualityScoreDefault,
		CreatedAt:        now,
		UpdatedAt:        now,
	}))
	detector := intent.NewDetector(nil)
	respCache := cache.NewSearchCache(100, time.Minute)
	return coordinator.New(st, detector, nil, nil, respCache, coordinator.DefaultConfig())
}

func newTestServer(t *testing.T, configure func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	if configure != nil {
		configure(cfg)
	}
	srv, err := New(seededCoordinator(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if srv.rateLimiter != nil {
			srv.rateLimiter.Stop()
		}
	})
	return srv
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), v))
}

// =============================================================================
// /health and /config
// =============================================================================

func TestHandleHealthReturnsOK(t *testing.T) {
	srv := newTestServer(t, nil)
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	decodeJSON(t, recorder, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestHandleConfigReturnsFeatureFlags(t *testing.T) {
	srv := newTestServer(t, nil)
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/config", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	decodeJSON(t, recorder, &body)
	features, ok := body["features"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, features["hybrid_search"])
}

func TestHandleConfigNeverRequiresAuth(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RequireAuth = true
		c.APIKey = "secret"
	})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/config", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
}

// =============================================================================
// /search
// =============================================================================

func TestHandleSearchReturnsRankedResults(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/search", map[string]interface{}{
		"query":          "reset vpn password",
		"top_k":          5,
		"include_scores": true,
	})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	decodeJSON(t, recorder, &body)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["query_id"])

	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)

	row := results[0].(map[string]interface{})
	assert.Equal(t, "kb-1", row["article_id"])
	assert.NotNil(t, row["scores"])
}

func TestHandleSearchOmitsScoresByDefault(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/search", map[string]interface{}{"query": "vpn"})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	var body map[string]interface{}
	decodeJSON(t, recorder, &body)
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	row := results[0].(map[string]interface{})
	assert.Nil(t, row["scores"])
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/search", map[string]interface{}{"query": "   "})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleSearchRejectsGET(t *testing.T) {
	srv := newTestServer(t, nil)
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/search", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestHandleSearchRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest("POST", "/search", bytes.NewBufferString("not json"))
	req.RemoteAddr = "192.0.2.1:1"
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleSearchRejectsUnknownFusionStrategy(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/search", map[string]interface{}{
		"query":           "vpn",
		"fusion_strategy": "not_a_strategy",
	})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// =============================================================================
// /feedback
// =============================================================================

func TestHandleFeedbackAcceptsValidRating(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/feedback", map[string]interface{}{
		"query_id":    "q1",
		"result_rank": 1,
		"article_id":  "kb-1",
		"rating":      "helpful",
	})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestHandleFeedbackRejectsInvalidRating(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/feedback", map[string]interface{}{
		"query_id":    "q1",
		"result_rank": 1,
		"article_id":  "kb-1",
		"rating":      "love_it",
	})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleFeedbackRequiresCoreFields(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "POST", "/feedback", map[string]interface{}{"rating": "helpful"})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// =============================================================================
// /stats
// =============================================================================

func TestHandleStatsReturnsAggregates(t *testing.T) {
	srv := newTestServer(t, nil)

	searchReq := newTestRequest(t, "POST", "/search", map[string]interface{}{"query": "vpn"})
	srv.buildRouter().ServeHTTP(httptest.NewRecorder(), searchReq)

	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/stats", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]interface{}
	decodeJSON(t, recorder, &body)
	assert.Equal(t, "success", body["status"])
}

// =============================================================================
// Auth
// =============================================================================

func TestWithAuthRejectsMissingHeaderWhenRequired(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RequireAuth = true
		c.APIKey = "secret-key"
	})
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/stats", nil))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestWithAuthRejectsWrongKey(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RequireAuth = true
		c.APIKey = "secret-key"
	})
	req := newTestRequest(t, "GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestWithAuthAcceptsValidKey(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RequireAuth = true
		c.APIKey = "secret-key"
	})
	req := newTestRequest(t, "GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestWithAuthSkippedWhenNotRequired(t *testing.T) {
	srv := newTestServer(t, nil)
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, newTestRequest(t, "GET", "/stats", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
}

// =============================================================================
// CORS
// =============================================================================

func TestCORSSetsAllowOriginForWildcard(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "GET", "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, "https://example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsDisallowedOrigin(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.CORSOrigins = []string{"https://allowed.example.com"}
	})
	req := newTestRequest(t, "GET", "/health", nil)
	req.Header.Set("Origin", "https://not-allowed.example.com")
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSHandlesPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	req := newTestRequest(t, "OPTIONS", "/search", nil)
	recorder := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

// =============================================================================
// Rate limit middleware
// =============================================================================

func TestRateLimitMiddlewareReturns429WhenExhausted(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RateLimitEnabled = true
		c.RateLimitPerMinute = 1
		c.RateLimitPerHour = 100
		c.RateLimitBurst = 0
	})
	router := srv.buildRouter()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, newTestRequest(t, "GET", "/stats", nil))
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, newTestRequest(t, "GET", "/stats", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareSkipsHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.RateLimitEnabled = true
		c.RateLimitPerMinute = 1
		c.RateLimitPerHour = 1
		c.RateLimitBurst = 0
	})
	router := srv.buildRouter()

	router.ServeHTTP(httptest.NewRecorder(), newTestRequest(t, "GET", "/stats", nil))

	for i := 0; i < 5; i++ {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, newTestRequest(t, "GET", "/health", nil))
		assert.NotEqual(t, http.StatusTooManyRequests, recorder.Code)
	}
}

func TestRateLimitMiddlewareDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.buildRouter()

	for i := 0; i < 50; i++ {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, newTestRequest(t, "GET", "/stats", nil))
		assert.NotEqual(t, http.StatusTooManyRequests, recorder.Code)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartAndStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	srv, err := New(seededCoordinator(t), cfg)
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	assert.NotEmpty(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	srv, err := New(seededCoordinator(t), cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
	assert.NoError(t, srv.Stop(ctx))
}

func TestRuntimeStatsTracksRequestCount(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.buildRouter()

	router.ServeHTTP(httptest.NewRecorder(), newTestRequest(t, "GET", "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), newTestRequest(t, "GET", "/config", nil))

	stats := srv.RuntimeStats()
	assert.GreaterOrEqual(t, stats.RequestCount, int64(2))
}
