package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/incident-service/internal/api/http"
	"github.com/spec-kit/incident-service/internal/api/http/handlers"
	"github.com/spec-kit/incident-service/internal/auth"
	"github.com/spec-kit/incident-service/internal/dedup"
	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/service"
)

// failingStore fails every transaction numbered in failOn.
type failingStore struct {
	*repository.MemoryStore
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *failingStore) WithinTx(ctx context.Context, fn func(tx repository.IncidentTx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()
	if fail {
		return errors.New("could not serialize access")
	}
	return s.MemoryStore.WithinTx(ctx, fn)
}

type apiEnv struct {
	app     *fiber.App
	store   *failingStore
	metrics *observability.Metrics
	agent   string
	admin   string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := zap.NewNop()
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), failOn: map[int]bool{}}
	metrics := observability.NewMetrics()
	guard := dedup.NewGuard(dedup.NewMemoryCache(30*time.Second), store, dedup.Options{FailOpen: true, Metrics: metrics})
	svc := service.NewIncidentService(service.IncidentDependencies{
		IncidentRepo: store,
		CounterRepo:  store,
		Guard:        guard,
		Metrics:      metrics,
		Logger:       logger,
	})
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("incident-service", "test", nil, nil),
		Incidents:      handlers.NewIncidentsHandler(svc),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	agent, _, err := tokens.GenerateToken(domain.Operator{ID: "op-1", Name: "Ari", Role: domain.OperatorRoleAgent})
	require.NoError(t, err)
	admin, _, err := tokens.GenerateToken(domain.Operator{ID: "op-2", Name: "Kim", Role: domain.OperatorRoleAdmin})
	require.NoError(t, err)

	return &apiEnv{app: app, store: store, metrics: metrics, agent: agent, admin: admin}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func incidentBody() map[string]any {
	return map[string]any{
		"exchange":     "EXC-NORTH",
		"nodes":        []string{"DSLAM-1"},
		"stakeholders": []string{"noc", "field-ops"},
		"fault_type":   "LINK_DOWN",
		"description":  "uplink down",
	}
}

func batchBody() map[string]any {
	return map[string]any{
		"exchange":     "EXC-SOUTH",
		"stakeholders": []string{"gpon-team"},
		"items": []map[string]any{
			{"node": "OLT-1", "fault_type": "LOS"},
			{"node": "OLT-2", "fault_type": "LOS"},
			{"node": "OLT-3", "fault_type": "LOS"},
		},
	}
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestCreateIncidentRequiresToken(t *testing.T) {
	env := newAPIEnv(t)
	status, body := env.do(t, http.MethodPost, "/incidents", "", incidentBody())
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestCreateIncidentAndReplay(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodPost, "/incidents", env.agent, incidentBody())
	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "IM000001", data["ticket_number"])
	assert.Equal(t, false, data["deduplicated"])

	status, body = env.do(t, http.MethodPost, "/incidents", env.agent, incidentBody())
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "IM000001", data["ticket_number"])
	assert.Equal(t, true, data["deduplicated"])
	assert.Equal(t, 1, env.store.Count())

	status, body = env.do(t, http.MethodGet, "/incidents/IM000001", env.agent, nil)
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "op-1", data["ticket_generator"])
	assert.Equal(t, "In Progress", data["status"])
	assert.NotContains(t, data, "batch_id")
}

func TestCreateIncidentValidationError(t *testing.T) {
	env := newAPIEnv(t)
	req := incidentBody()
	delete(req, "fault_type")

	status, body := env.do(t, http.MethodPost, "/incidents", env.agent, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	assert.Equal(t, int64(1), env.metrics.Snapshot().Errors["/incidents|POST|VALIDATION_FAILED"])
}

func TestCreateIncidentAllocationError(t *testing.T) {
	env := newAPIEnv(t)
	env.store.failOn[1] = true

	status, body := env.do(t, http.MethodPost, "/incidents", env.agent, incidentBody())
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "ALLOCATION_FAILED", errorCode(body))
}

func TestCreateIncidentBatch(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodPost, "/incidents/batch", env.agent, batchBody())
	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, []any{"GIM000001", "GIM000002", "GIM000003"}, data["ticket_numbers"])

	status, body = env.do(t, http.MethodGet, "/incidents/GIM000002", env.agent, nil)
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["batch_index"])
	assert.Equal(t, float64(3), data["batch_size"])
}

func TestCreateIncidentBatchPartialFailure(t *testing.T) {
	env := newAPIEnv(t)
	env.store.failOn[3] = true

	status, body := env.do(t, http.MethodPost, "/incidents/batch", env.agent, batchBody())
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PARTIAL_BATCH_FAILURE", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, []any{"GIM000001", "GIM000002"}, details["committed_ticket_numbers"])
	assert.Equal(t, float64(3), details["failed_index"])
}

func TestGetIncidentNotFound(t *testing.T) {
	env := newAPIEnv(t)
	status, body := env.do(t, http.MethodGet, "/incidents/IM123456", env.agent, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestCountersRequireAdmin(t *testing.T) {
	env := newAPIEnv(t)
	_, _ = env.do(t, http.MethodPost, "/incidents", env.agent, incidentBody())

	status, _ := env.do(t, http.MethodGet, "/counters", env.agent, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := env.do(t, http.MethodGet, "/counters", env.admin, nil)
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "standard", first["series"])
	assert.Equal(t, "IM000001", first["last_issued"])
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])
}

func TestUnknownRoute(t *testing.T) {
	env := newAPIEnv(t)
	status, body := env.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
