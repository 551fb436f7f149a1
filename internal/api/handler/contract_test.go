package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/internal/api"
	"github.com/priyamshenoy/dataforge/internal/api/handler"
	mw "github.com/priyamshenoy/dataforge/internal/api/middleware"
	"github.com/priyamshenoy/dataforge/internal/auth"
	"github.com/priyamshenoy/dataforge/internal/cache"
	"github.com/priyamshenoy/dataforge/internal/orchestrator"
	"github.com/priyamshenoy/dataforge/internal/ratelimit"
	"github.com/priyamshenoy/dataforge/internal/retention"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/internal/webhook"
	"github.com/priyamshenoy/dataforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── test harness ────────────────────────────────────────────────────────────
// Real services over the in-memory store; only webhook delivery is faked.

type noopSender struct{}

func (noopSender) Send(_ context.Context, _ webhook.Delivery) error { return nil }

type testServer struct {
	server     *httptest.Server
	docs       *store.MemoryStore
	limiter    *ratelimit.Limiter
	dispatcher *webhook.Dispatcher
	keys       *auth.KeyService
	customerID uuid.UUID
	rawKey     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	docs := store.NewMemoryStore()
	memCache := cache.NewMemoryCache()
	limiter := ratelimit.New()
	dispatcher := webhook.NewDispatcher(docs, noopSender{})
	orch := orchestrator.New(docs, limiter, dispatcher, memCache)
	policies := retention.NewPolicyStore(docs)
	keys := auth.NewKeyService(docs)

	customerID := uuid.New()
	created, err := keys.Create(context.Background(), customerID, "contract-test", []string{"read", "write", "admin"})
	require.NoError(t, err)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(docs),
		RateLimit: mw.NewRateLimit(memCache, 1000),

		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"status":"ok"}}`))
		},

		CreateJobHandler:     handler.NewCreateJobHandler(orch),
		GetJobHandler:        handler.NewGetJobHandler(orch),
		ListJobsHandler:      handler.NewListJobsHandler(orch),
		TransitionJobHandler: handler.NewTransitionJobHandler(orch),
		CancelJobHandler:     handler.NewCancelJobHandler(orch),
		ResumeJobHandler:     handler.NewResumeJobHandler(orch),
		LimitsHandler:        handler.NewLimitsHandler(orch),

		RegisterWebhookHandler: handler.NewRegisterWebhookHandler(dispatcher),
		ListWebhooksHandler:    handler.NewListWebhooksHandler(dispatcher),
		DeleteWebhookHandler:   handler.NewDeleteWebhookHandler(dispatcher),

		GetRetentionHandler: handler.NewGetRetentionHandler(policies),
		SetRetentionHandler: handler.NewSetRetentionHandler(policies),

		CreateKeyHandler: handler.NewCreateKeyHandler(keys),
		ListKeysHandler:  handler.NewListKeysHandler(keys),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(keys),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{
		server:     srv,
		docs:       docs,
		limiter:    limiter,
		dispatcher: dispatcher,
		keys:       keys,
		customerID: customerID,
		rawKey:     created.RawKey,
	}
}

func (ts *testServer) authRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	req.Header.Set("Authorization", "Bearer "+ts.rawKey)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) unauthRequest(method, path string) *http.Request {
	req, _ := http.NewRequest(method, ts.server.URL+path, nil)
	return req
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

// createJob posts a tabular job and returns its id.
func (ts *testServer) createJob(t *testing.T) string {
	t.Helper()
	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs", map[string]any{
		"projectId":     "proj-1",
		"configuration": map[string]any{"dataType": "tabular", "recordCount": 100},
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["data"].(map[string]any)["id"].(string)
}

// ─── POST /api/v1/jobs ───────────────────────────────────────────────────────

func TestCreateJob_201_InitialState(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs", map[string]any{
		"projectId":     "proj-1",
		"configuration": map[string]any{"dataType": "tabular"},
	}))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "queued", data["status"])
	assert.Equal(t, float64(0), data["progress"])
	assert.Len(t, data["stages"].([]any), 6)
}

func TestCreateJob_400_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	tests := []map[string]any{
		{"configuration": map[string]any{"dataType": "tabular"}},
		{"projectId": "proj-1"},
		{"projectId": "proj-1", "configuration": map[string]any{}},
	}
	for _, payload := range tests {
		resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs", payload))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
	}
}

func TestCreateJob_429_RateLimitExceeded(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < ratelimit.DefaultMaxJobs; i++ {
		ts.createJob(t)
	}

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs", map[string]any{
		"projectId":     "proj-1",
		"configuration": map[string]any{"dataType": "tabular"},
	}))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"].(map[string]any)["code"])
}

// ─── GET /api/v1/jobs/{projectID}/{jobID} ───────────────────────────────────

func TestGetJob_200(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/jobs/proj-1/"+jobID, nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobID, body["data"].(map[string]any)["id"])
}

func TestGetJob_404_Missing(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/jobs/proj-1/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestGetJob_404_ForeignCustomer(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	// A second customer with their own key must not see the first's job.
	other, err := ts.keys.Create(context.Background(), uuid.New(), "other", nil)
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", ts.server.URL+"/api/v1/jobs/proj-1/"+jobID, nil)
	req.Header.Set("Authorization", "Bearer "+other.RawKey)
	resp, body := ts.do(t, req)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestGetJob_400_BadUUID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/jobs/proj-1/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

// ─── POST .../transition ────────────────────────────────────────────────────

func TestTransition_200_QueuedToRunning(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{
		"status": "running",
		"stage":  map[string]any{"name": "initialization", "status": "running", "progress": 40},
	}))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "running", data["status"])
	assert.Equal(t, float64(2), data["progress"]) // 5% weight * 40%
}

func TestTransition_409_InvalidEdge(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{
		"status": "completed",
	}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["error"].(map[string]any)["code"])
}

func TestTransition_409_AlreadyCompleted(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{"status": "running"}))
	for _, name := range []string{"initialization", "data-processing", "model-generation", "data-generation", "output-formatting", "finalization"} {
		resp, _ := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{
			"stage": map[string]any{"name": name, "status": "completed"},
		}))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{"status": "running"}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_COMPLETED", body["error"].(map[string]any)["code"])
}

func TestTransition_400_UnknownStage(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{
		"status": "running",
		"stage":  map[string]any{"name": "no-such-stage", "status": "running"},
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

// ─── POST .../cancel and .../resume ─────────────────────────────────────────

func TestCancel_ThenResubmitHitsCooldown(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/cancel", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["data"].(map[string]any)["status"])

	resp, body = ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{
		"status": "queued",
	}))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "COOLDOWN_PERIOD", body["error"].(map[string]any)["code"])
}

func TestResume_200_FromPaused(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{"status": "running"}))
	ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/transition", map[string]any{"status": "paused"}))

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/resume", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", body["data"].(map[string]any)["status"])
}

func TestResume_409_FromQueued(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/jobs/proj-1/"+jobID+"/resume", nil))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["error"].(map[string]any)["code"])
}

// ─── GET /api/v1/limits ─────────────────────────────────────────────────────

func TestLimits_200_ReflectsOccupancy(t *testing.T) {
	ts := newTestServer(t)
	ts.createJob(t)
	ts.createJob(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/limits", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["currentJobs"])
	assert.Equal(t, float64(ratelimit.DefaultMaxJobs), data["maxJobs"])
}

// ─── /api/v1/webhooks ───────────────────────────────────────────────────────

func TestWebhooks_RegisterListDelete(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/webhooks", map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"job.completed", "job.failed"},
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := body["data"].(map[string]any)
	assert.NotEmpty(t, created["secret"]) // handed out once at registration
	webhookID := created["id"].(string)

	resp, body = ts.do(t, ts.authRequest("GET", "/api/v1/webhooks", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].(map[string]any)["secret"]) // never re-exposed

	req := ts.authRequest("DELETE", "/api/v1/webhooks/"+webhookID, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestWebhooks_400_UnknownEvent(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/webhooks", map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"job.exploded"},
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

func TestWebhooks_403_DeleteForeign(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/webhooks", map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"job.completed"},
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	webhookID := body["data"].(map[string]any)["id"].(string)

	other, err := ts.keys.Create(context.Background(), uuid.New(), "other", nil)
	require.NoError(t, err)

	req, _ := http.NewRequest("DELETE", ts.server.URL+"/api/v1/webhooks/"+webhookID, nil)
	req.Header.Set("Authorization", "Bearer "+other.RawKey)
	resp, body = ts.do(t, req)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "PERMISSION_DENIED", body["error"].(map[string]any)["code"])
}

// ─── /api/v1/retention ──────────────────────────────────────────────────────

func TestRetention_DefaultsThenUpdate(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/retention", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(models.DefaultJobRetentionDays), data["retentionDays"])

	resp, body = ts.do(t, ts.authRequest("PUT", "/api/v1/retention", map[string]any{"retentionDays": 90}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(90), body["data"].(map[string]any)["retentionDays"])
}

func TestRetention_400_NonPositive(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("PUT", "/api/v1/retention", map[string]any{"retentionDays": 0}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

// ─── /api/v1/admin/keys ─────────────────────────────────────────────────────

func TestCreateKey_201_WithRawKey(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{
		"name":   "ci-key",
		"scopes": []string{"read"},
	}))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["key"]) // raw key shown at creation
	assert.Equal(t, "ci-key", data["name"])
}

func TestListKeys_DoesNotExposeHash(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.authRequest("GET", "/api/v1/admin/keys", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].([]any)
	require.NotEmpty(t, data)

	first := data[0].(map[string]any)
	assert.NotEmpty(t, first["keyPrefix"])
	assert.Empty(t, first["keyHash"])
}

func TestAdminEndpoints_403_WithoutAdminScope(t *testing.T) {
	ts := newTestServer(t)

	limited, err := ts.keys.Create(context.Background(), ts.customerID, "limited", []string{"read", "write"})
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", ts.server.URL+"/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+limited.RawKey)
	resp, body := ts.do(t, req)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])
}

// ─── Auth middleware contract ────────────────────────────────────────────────

func TestAuth_AllProtectedEndpoints_Reject401(t *testing.T) {
	ts := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/jobs"},
		{"GET", "/api/v1/jobs/proj-1/" + uuid.NewString()},
		{"GET", "/api/v1/limits"},
		{"POST", "/api/v1/webhooks"},
		{"GET", "/api/v1/webhooks"},
		{"GET", "/api/v1/retention"},
		{"POST", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			resp, body := ts.do(t, ts.unauthRequest(ep.method, ep.path))
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "INVALID_TOKEN", body["error"].(map[string]any)["code"])
		})
	}
}

func TestAuth_RevokedKeyRejected(t *testing.T) {
	ts := newTestServer(t)

	created, err := ts.keys.Create(context.Background(), ts.customerID, "doomed", []string{"read"})
	require.NoError(t, err)
	require.NoError(t, ts.keys.Revoke(context.Background(), created.Key.ID, ts.customerID))

	req, _ := http.NewRequest("GET", ts.server.URL+"/api/v1/limits", nil)
	req.Header.Set("Authorization", "Bearer "+created.RawKey)
	resp, body := ts.do(t, req)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["error"].(map[string]any)["code"])
}

// ─── Response format contract ───────────────────────────────────────────────

func TestResponseFormat_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, ts.unauthRequest("POST", "/api/v1/jobs"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	errObj := body["error"].(map[string]any)
	assert.NotEmpty(t, errObj["code"])
	assert.NotEmpty(t, errObj["message"])
}
