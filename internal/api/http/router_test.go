package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	wsclient "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/feed"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/session"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testServer struct {
	app *fiber.App
}

func newTestServer(t *testing.T, httpCfg config.HTTPConfig, deps ...handlers.Dependency) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()
	broker := feed.NewLocalBroker()
	service.NewFeedService(dispatcher, broker, logger, metrics).RegisterHandlers()

	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test",
		AccessTokenTTLMinutes: 10,
		BcryptCost:            bcrypt.MinCost,
		AllowAdminSignup:      true,
	}, service.AuthDependencies{UserRepo: store.Users(), Revocations: session.NewMemoryRevocationStore()})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store.Tickets(),
		UserRepo:   store.Users(),
		Dispatcher: dispatcher,
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	RegisterMiddlewares(app, logger, metrics, httpCfg)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk", "test", deps...),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Stream:         handlers.NewStreamHandler(ticketService, broker, logger),
		AuthMiddleware: auth.NewAuthMiddleware(authService, store.Users()),
		RateLimiter:    NewRateLimiter(httpCfg, nil),
		Metrics:        metrics.Handler(),
	})
	return &testServer{app: app}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

func (s *testServer) register(t *testing.T, name, email, role string) (string, string) {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "pw", "role": role,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d %+v", email, status, env.Error)
	}
	var out struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	_ = json.Unmarshal(env.Data, &out)
	return out.ID, out.Token
}

func decodeTicket(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var ticket map[string]any
	if err := json.Unmarshal(env.Data, &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return ticket
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, config.HTTPConfig{})
	_, alice := srv.register(t, "Alice", "alice@example.com", "")
	_, bob := srv.register(t, "Bob", "bob@example.com", "user")
	_, admin := srv.register(t, "Root", "root@example.com", "admin")

	status, env := srv.do(t, http.MethodPost, "/tickets", alice, map[string]string{"title": "VPN", "description": "down"})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %+v", status, env.Error)
	}
	ticket := decodeTicket(t, env)
	id := ticket["id"].(string)
	if ticket["status"] != "open" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	status, env = srv.do(t, http.MethodGet, "/tickets/"+id, bob, nil)
	if status != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("bob view: %d %+v", status, env.Error)
	}

	status, _ = srv.do(t, http.MethodPut, "/tickets/"+id+"/reply", admin, map[string]string{"message": "looking"})
	if status != http.StatusOK {
		t.Fatalf("admin reply: %d", status)
	}

	status, env = srv.do(t, http.MethodGet, "/tickets/"+id, alice, nil)
	if status != http.StatusOK {
		t.Fatalf("alice view: %d", status)
	}
	detail := decodeTicket(t, env)
	messages := detail["messages"].([]any)
	if len(messages) != 1 || messages[0].(map[string]any)["sender_name"] != "Root" {
		t.Fatalf("unexpected messages %+v", messages)
	}
	if detail["owner"].(map[string]any)["email"] != "alice@example.com" {
		t.Fatalf("owner not resolved: %+v", detail["owner"])
	}

	status, env = srv.do(t, http.MethodPut, "/tickets/"+id+"/status", alice, map[string]string{"status": "closed"})
	if status != http.StatusOK || decodeTicket(t, env)["status"] != "closed" {
		t.Fatalf("alice close: %d", status)
	}
	status, env = srv.do(t, http.MethodPut, "/tickets/"+id+"/status", alice, map[string]string{"status": "closed"})
	if status != http.StatusBadRequest || env.Error.Code != "ALREADY_CLOSED" {
		t.Fatalf("double close: %d %+v", status, env.Error)
	}
	status, env = srv.do(t, http.MethodPut, "/tickets/"+id+"/status", alice, map[string]string{"status": "open"})
	if status != http.StatusForbidden {
		t.Fatalf("alice reopen: %d %+v", status, env.Error)
	}
	status, _ = srv.do(t, http.MethodPut, "/tickets/"+id+"/status", admin, map[string]string{"status": "open"})
	if status != http.StatusOK {
		t.Fatalf("admin reopen: %d", status)
	}

	status, env = srv.do(t, http.MethodGet, "/tickets/all", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("list all: %d", status)
	}
	var all []map[string]any
	_ = json.Unmarshal(env.Data, &all)
	if len(all) != 1 || all[0]["owner"].(map[string]any)["name"] != "Alice" {
		t.Fatalf("unexpected list %+v", all)
	}

	status, env = srv.do(t, http.MethodGet, "/tickets/all", alice, nil)
	if status != http.StatusForbidden {
		t.Fatalf("non-admin list all: %d %+v", status, env.Error)
	}

	status, env = srv.do(t, http.MethodGet, "/tickets", bob, nil)
	var bobs []map[string]any
	_ = json.Unmarshal(env.Data, &bobs)
	if status != http.StatusOK || len(bobs) != 0 {
		t.Fatalf("bob list: %d %+v", status, bobs)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, config.HTTPConfig{})
	_, alice := srv.register(t, "Alice", "alice@example.com", "")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no token", http.MethodGet, "/tickets", "", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", http.MethodGet, "/tickets", "junk", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"blank title", http.MethodPost, "/tickets", alice, map[string]string{"title": " ", "description": "d"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad id", http.MethodGet, "/tickets/not-a-uuid", alice, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing ticket", http.MethodGet, "/tickets/6f1d8d0e-1c2b-4c33-9a6a-0a4c2b8e9f10", alice, nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad status", http.MethodPut, "/tickets/6f1d8d0e-1c2b-4c33-9a6a-0a4c2b8e9f10/status", alice, map[string]string{"status": "done"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad status filter", http.MethodGet, "/tickets?status=nope", alice, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad page", http.MethodGet, "/tickets?page=abc", alice, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"wrong password", http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"duplicate email", http.MethodPost, "/auth/register", "", map[string]string{"name": "A", "email": "ALICE@example.com", "password": "x"}, http.StatusConflict, "CONFLICT"},
		{"unknown route", http.MethodGet, "/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown ticket subroute", http.MethodGet, "/tickets/6f1d8d0e-1c2b-4c33-9a6a-0a4c2b8e9f10/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"stream without upgrade", http.MethodGet, "/tickets/6f1d8d0e-1c2b-4c33-9a6a-0a4c2b8e9f10/stream", alice, nil, http.StatusUpgradeRequired, "VALIDATION_FAILED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := srv.do(t, tc.method, tc.path, tc.token, tc.body)
			if status != tc.status {
				t.Fatalf("status = %d, want %d (%+v)", status, tc.status, env.Error)
			}
			if env.Error == nil || env.Error.Code != tc.code {
				t.Fatalf("error = %+v, want code %s", env.Error, tc.code)
			}
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := newTestServer(t, config.HTTPConfig{})
	_, token := srv.register(t, "Alice", "alice@example.com", "")

	if status, _ := srv.do(t, http.MethodGet, "/tickets", token, nil); status != http.StatusOK {
		t.Fatalf("token should work before logout: %d", status)
	}
	if status, _ := srv.do(t, http.MethodPost, "/auth/logout", token, nil); status != http.StatusNoContent {
		t.Fatalf("logout: %d", status)
	}
	status, env := srv.do(t, http.MethodGet, "/tickets", token, nil)
	if status != http.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("revoked token: %d %+v", status, env.Error)
	}
}

func TestRateLimitOnCredentials(t *testing.T) {
	srv := newTestServer(t, config.HTTPConfig{RateLimitMax: 2, RateLimitWindowSec: 60})
	body := map[string]string{"email": "x@example.com", "password": "x"}

	for i := 0; i < 2; i++ {
		if status, _ := srv.do(t, http.MethodPost, "/auth/login", "", body); status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i, status)
		}
	}
	status, env := srv.do(t, http.MethodPost, "/auth/login", "", body)
	if status != http.StatusTooManyRequests || env.Error.Code != "TOO_MANY_REQUESTS" {
		t.Fatalf("expected rate limit, got %d %+v", status, env.Error)
	}
}

func TestHealthEndpoints(t *testing.T) {
	healthy := newTestServer(t, config.HTTPConfig{},
		handlers.Dependency{Name: "postgres"},
		handlers.Dependency{Name: "redis", Ping: func(context.Context) error { return nil }},
	)
	if status, _ := healthy.do(t, http.MethodGet, "/health/live", "", nil); status != http.StatusOK {
		t.Fatalf("live: %d", status)
	}
	if status, _ := healthy.do(t, http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready: %d", status)
	}

	broken := newTestServer(t, config.HTTPConfig{},
		handlers.Dependency{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)
	status, env := broken.do(t, http.MethodGet, "/health/ready", "", nil)
	if status != http.StatusServiceUnavailable || env.Error.Code != "DEPENDENCY_UNAVAILABLE" {
		t.Fatalf("ready with broken dep: %d %+v", status, env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, config.HTTPConfig{})
	srv.do(t, http.MethodGet, "/health/live", "", nil)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(raw, []byte("http_requests_total")) {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}

// listen serves the app on a loopback port and returns its ws:// base URL.
func (s *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func readFrame(t *testing.T, conn *wsclient.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestTicketStreamOverWebsocket(t *testing.T) {
	srv := newTestServer(t, config.HTTPConfig{})
	_, alice := srv.register(t, "Alice", "alice@example.com", "")
	_, bob := srv.register(t, "Bob", "bob@example.com", "")
	_, admin := srv.register(t, "Root", "root@example.com", "admin")

	status, env := srv.do(t, http.MethodPost, "/tickets", alice, map[string]string{"title": "VPN", "description": "down"})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %+v", status, env.Error)
	}
	id := decodeTicket(t, env)["id"].(string)
	base := srv.listen(t)

	_, resp, err := wsclient.DefaultDialer.Dial(base+"/tickets/"+id+"/stream?token="+bob, nil)
	if err == nil {
		t.Fatalf("non-owner should not be upgraded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner handshake: %v %+v", err, resp)
	}
	resp.Body.Close()

	conn, _, err := wsclient.DefaultDialer.Dial(base+"/tickets/"+id+"/stream?token="+alice, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	snapshot := readFrame(t, conn)
	if snapshot["type"] != "snapshot" {
		t.Fatalf("first frame should be the snapshot, got %+v", snapshot)
	}
	if ticket, _ := snapshot["ticket"].(map[string]any); ticket["id"] != id || ticket["status"] != "open" {
		t.Fatalf("unexpected snapshot ticket %+v", snapshot["ticket"])
	}

	status, env = srv.do(t, http.MethodPut, "/tickets/"+id+"/status", admin, map[string]string{"status": "in progress"})
	if status != http.StatusOK {
		t.Fatalf("admin status change: %d %+v", status, env.Error)
	}
	update := readFrame(t, conn)
	if update["type"] != "ticket_status_changed" || update["ticket_id"] != id ||
		update["status"] != "in progress" || update["old_status"] != "open" {
		t.Fatalf("unexpected update %+v", update)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if pong := readFrame(t, conn); pong["type"] != "pong" {
		t.Fatalf("expected pong, got %+v", pong)
	}
}
