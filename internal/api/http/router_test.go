package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-router/internal/api/http"
	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/service"
)

const responderPool = -1000

type testServer struct {
	app      *fiber.App
	tokens   *auth.TokenManager
	sessions *service.SessionStore
}

func newTestServer(t *testing.T, authEnabled bool) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	sessions := service.NewSessionStore(service.SessionStoreDependencies{Logger: logger})
	router := service.NewRouter(service.RouterDependencies{
		Registry:      service.NewTicketRegistry(nil),
		Sessions:      sessions,
		State:         service.NewStateStore(0),
		Dispatcher:    events.NewInMemoryDispatcher(logger),
		Metrics:       metrics,
		Logger:        logger,
		ResponderPool: responderPool,
	})

	hash, err := auth.HashSecret("adapter-secret", 4)
	require.NoError(t, err)
	authCfg := config.AuthConfig{ClientID: "adapter", ClientSecretHash: hash, OperatorID: "ops"}
	tokens := auth.NewTokenManager("test-secret", 5)

	app := httptransport.NewApp("support-router-test", logger, metrics, time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDependencies{
			ServiceName: "support-router",
			Version:     "test",
			Metrics:     metrics,
			Sessions:    sessions,
		}),
		Auth:           handlers.NewAuthHandler(service.NewAuthService(authCfg, tokens, logger)),
		Events:         handlers.NewEventsHandler(router),
		Sessions:       handlers.NewSessionsHandler(router, time.Hour),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, authEnabled),
	})
	return &testServer{app: app, tokens: tokens, sessions: sessions}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

type resultBody struct {
	Outcome    string `json:"outcome"`
	Ticket     string `json:"ticket"`
	Persisted  bool   `json:"persisted"`
	Deliveries []struct {
		Target  int64  `json:"target"`
		Text    string `json:"text"`
		From    string `json:"from"`
		Actions []struct {
			Data string `json:"data"`
		} `json:"actions"`
	} `json:"deliveries"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
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
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) event(t *testing.T, path string, body any) resultBody {
	t.Helper()
	status, env := s.do(t, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, status)
	var res resultBody
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res
}

func TestEventFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, false)

	issued := s.event(t, "/v1/help", map[string]any{"requester": 1})
	require.Equal(t, "ticket_issued", issued.Outcome)
	require.True(t, issued.Persisted)
	require.Len(t, issued.Deliveries, 2)
	assert.Equal(t, int64(responderPool), issued.Deliveries[1].Target)
	require.Len(t, issued.Deliveries[1].Actions, 1)
	action := issued.Deliveries[1].Actions[0].Data

	claimed := s.event(t, "/v1/claim", map[string]any{"ticket": action, "responder": 2})
	assert.Equal(t, "claimed", claimed.Outcome)
	assert.Equal(t, issued.Ticket, claimed.Ticket)

	forwarded := s.event(t, "/v1/messages", map[string]any{"sender": 1, "text": "hello"})
	assert.Equal(t, "forwarded", forwarded.Outcome)
	require.Len(t, forwarded.Deliveries, 1)
	assert.Equal(t, int64(2), forwarded.Deliveries[0].Target)
	assert.Equal(t, "hello", forwarded.Deliveries[0].Text)
	assert.Equal(t, "requester", forwarded.Deliveries[0].From)

	closed := s.event(t, "/v1/end", map[string]any{"identity": 2})
	assert.Equal(t, "closed", closed.Outcome)
	assert.Len(t, closed.Deliveries, 2)

	status, env := s.do(t, http.MethodGet, "/v1/sessions/"+issued.Ticket, "", nil)
	require.Equal(t, http.StatusOK, status)
	var session struct {
		Status       string `json:"status"`
		HasResponder bool   `json:"has_responder"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, string(domain.SessionStatusClosed), session.Status)
	assert.True(t, session.HasResponder)
}

func TestRefusalsAreRegularResults(t *testing.T) {
	s := newTestServer(t, false)

	res := s.event(t, "/v1/claim", map[string]any{"ticket": "NOPE234", "responder": 2})
	assert.Equal(t, "not_found", res.Outcome)
	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, int64(2), res.Deliveries[0].Target)

	res = s.event(t, "/v1/commands", map[string]any{"identity": 5, "command": "/specialist"})
	assert.Equal(t, "mode_changed", res.Outcome)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, false)

	status, env := s.do(t, http.MethodPost, "/v1/help", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = s.do(t, http.MethodPost, "/v1/claim", "", map[string]any{"responder": 2})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = s.do(t, http.MethodGet, "/v1/sessions/MISSING", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, "/v1/sessions/sweep?older_than=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOperatorReplyOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	issued := s.event(t, "/v1/help", map[string]any{"requester": 1})

	res := s.event(t, "/v1/sessions/"+issued.Ticket+"/reply", map[string]any{"text": "hang in there"})
	assert.Equal(t, "forwarded", res.Outcome)
	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, int64(1), res.Deliveries[0].Target)
	assert.Equal(t, "operator", res.Deliveries[0].From)
	assert.Contains(t, res.Deliveries[0].Text, "hang in there")

	res = s.event(t, "/v1/sessions/NOPE234/reply", map[string]any{"text": "hello"})
	assert.Equal(t, "not_found", res.Outcome)
	assert.Empty(t, res.Deliveries)

	status, env := s.do(t, http.MethodPost, "/v1/sessions/"+issued.Ticket+"/reply", "", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestTokenExchangeAndRoles(t *testing.T) {
	s := newTestServer(t, true)

	status, env := s.do(t, http.MethodPost, "/v1/help", "", map[string]any{"requester": 1})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, "/auth/token", "", map[string]any{"client_id": "adapter", "client_secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodPost, "/auth/token", "", map[string]any{"client_id": "adapter", "client_secret": "adapter-secret"})
	require.Equal(t, http.StatusOK, status)
	var tok struct {
		Token   string `json:"token"`
		Subject string `json:"subject"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	assert.Equal(t, string(domain.SubjectTypeAdapter), tok.Subject)

	status, _ = s.do(t, http.MethodPost, "/v1/help", tok.Token, map[string]any{"requester": 1})
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/v1/sessions/sweep", tok.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(t, http.MethodPost, "/v1/sessions/ANYTKT2/reply", tok.Token, map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, status)

	_, opToken, err := s.tokens.GenerateToken("ops", domain.SubjectTypeOperator)
	require.NoError(t, err)
	status, env = s.do(t, http.MethodPost, "/v1/sessions/sweep?older_than=1h", opToken, nil)
	require.Equal(t, http.StatusOK, status)
	var sweep struct {
		Expired int `json:"expired"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sweep))
	assert.Equal(t, 0, sweep.Expired)
}

func TestRequestIDIsEchoedOrAssigned(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(httptransport.RequestIDHeader, "adapter-42")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "adapter-42", resp.Header.Get(httptransport.RequestIDHeader))

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(httptransport.RequestIDHeader))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	s.event(t, "/v1/help", map[string]any{"requester": 1})

	status, _ := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodGet, "/health/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	var body struct {
		Sessions struct {
			Waiting int `json:"waiting"`
		} `json:"sessions"`
		Counters struct {
			Outcomes map[string]int64 `json:"outcomes"`
		} `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.Sessions.Waiting)
	assert.NotEmpty(t, body.Counters.Outcomes)
}
