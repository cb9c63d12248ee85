package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/punchctl/internal/auth"
	"github.com/danmuck/punchctl/internal/directory"
	"github.com/danmuck/punchctl/internal/testutil/testlog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", ":0", nil, nil, nil)

	rr := serve(s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	if rr := serve(s, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rr.Code)
	}
	s.SetReady(true)
	rr = serve(s, "/ready")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ready"] != true || body["service"] != "p2pd-test" {
		t.Fatalf("unexpected ready body: %#v", body)
	}
	t.Logf("admin/http: GET /ready status=%d", rr.Code)
}

func TestPeersRoute(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", ":0", nil, func(ctx context.Context) ([]directory.Snapshot, error) {
		return []directory.Snapshot{
			{Name: "alice", Addr: "10.0.0.1:4001"},
			{Name: "bob", Addr: "10.0.0.2:4002", AwaitingAck: true, PendingPeer: "alice"},
		}, nil
	}, nil)

	rr := serve(s, "/peers")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Count int                  `json:"count"`
		Peers []directory.Snapshot `json:"peers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 2 || body.Peers[1].PendingPeer != "alice" || !body.Peers[1].AwaitingAck {
		t.Fatalf("unexpected peers body: %+v", body)
	}
}

func TestPeersRouteSourceError(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", ":0", nil, func(ctx context.Context) ([]directory.Snapshot, error) {
		return nil, errors.New("loop stopped")
	}, nil)
	if rr := serve(s, "/peers"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	empty := New("p2pd-test", ":0", nil, func(ctx context.Context) ([]directory.Snapshot, error) {
		return nil, nil
	}, nil)
	rr := serve(empty, "/peers")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"peers":[]`) {
		t.Fatalf("unexpected empty body status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", ":0", nil, nil, nil)
	serve(s, "/health")
	rr := serve(s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "punchctl_http_requests_total") {
		t.Fatalf("metrics output missing http counter")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", ":0", []string{"http://ops.example"}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://ops.example")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://ops.example" {
		t.Fatalf("unexpected allow origin=%q", got)
	}
}

func TestShutdownBeforeListenReturnsCleanly(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", "127.0.0.1:0", nil, nil, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := s.ListenAndServe(); err != nil {
		t.Fatalf("expected nil after shutdown, got %v", err)
	}
}

func TestPeersRouteRequiresToken(t *testing.T) {
	testlog.Start(t)
	s := New("p2pd-test", ":0", nil, func(ctx context.Context) ([]directory.Snapshot, error) {
		return nil, nil
	}, auth.StaticToken{Token: "s3cret"})

	if rr := serve(s, "/peers"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := serve(s, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("expected open health probe, got %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}
