package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ollamad/internal/cluster"
	"ollamad/pkg/types"
)

type mockService struct {
	instances []types.InstanceSnapshot
	status    types.ClusterStatus
	statusOK  bool
	healthy   bool

	routeOut   []byte
	routeErr   error
	routedUser string
	routedBody []byte

	knownPorts map[int]bool
	disabled   map[int]bool
	scaledUp   int
	scaledDown int
	usersReset bool
	users      map[string]int64
}

func (m *mockService) Instances() []types.InstanceSnapshot { return m.instances }
func (m *mockService) Status() (types.ClusterStatus, bool) { return m.status, m.statusOK }
func (m *mockService) SetDisabled(port int, disabled bool) bool {
	if !m.knownPorts[port] {
		return false
	}
	if m.disabled == nil {
		m.disabled = map[int]bool{}
	}
	m.disabled[port] = disabled
	return true
}
func (m *mockService) ScaleUp(count int)   { m.scaledUp += count }
func (m *mockService) ScaleDown(count int) { m.scaledDown += count }
func (m *mockService) Healthy() bool       { return m.healthy }
func (m *mockService) Route(ctx context.Context, user string, body []byte) ([]byte, error) {
	m.routedUser = user
	m.routedBody = append([]byte(nil), body...)
	return m.routeOut, m.routeErr
}
func (m *mockService) UserCounts() map[string]int64 { return m.users }
func (m *mockService) ResetUsers()                  { m.usersReset = true }

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRootRedirectsToDocs(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/", "", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status=%d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/docs/index.html" {
		t.Fatalf("location=%q", loc)
	}
}

func TestInstancesHandler(t *testing.T) {
	svc := &mockService{instances: []types.InstanceSnapshot{
		{Port: 9000, Model: "llama3", Alive: true, LastUsed: time.Now()},
		{Port: 9001, Model: "llama3", Alive: false},
	}}
	w := do(t, NewMux(svc), http.MethodGet, "/instances", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got []types.InstanceSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(got) != 2 || got[0].Port != 9000 {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestDisableEnable(t *testing.T) {
	svc := &mockService{knownPorts: map[int]bool{9000: true}}
	mux := NewMux(svc)

	w := do(t, mux, http.MethodPost, "/instances/9000/disable", "", nil)
	if w.Code != http.StatusOK || !svc.disabled[9000] {
		t.Fatalf("disable: status=%d disabled=%v", w.Code, svc.disabled)
	}
	w = do(t, mux, http.MethodPost, "/instances/9000/enable", "", nil)
	if w.Code != http.StatusOK || svc.disabled[9000] {
		t.Fatalf("enable: status=%d disabled=%v", w.Code, svc.disabled)
	}
	w = do(t, mux, http.MethodPost, "/instances/4242/disable", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown port: status=%d", w.Code)
	}
	w = do(t, mux, http.MethodPost, "/instances/not-a-port/disable", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("bad port: status=%d", w.Code)
	}
}

func TestClusterStatusHandler(t *testing.T) {
	svc := &mockService{statusOK: true, status: types.ClusterStatus{Size: 3, Alive: 2}}
	w := do(t, NewMux(svc), http.MethodGet, "/cluster/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got types.ClusterStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Size != 3 || got.Alive != 2 {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestClusterStatusEmptyPool(t *testing.T) {
	w := do(t, NewMux(&mockService{statusOK: false}), http.MethodGet, "/cluster/status", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestScaleHandler(t *testing.T) {
	svc := &mockService{}
	mux := NewMux(svc)

	w := do(t, mux, http.MethodPost, "/cluster/scale", `{"action":"up"}`, nil)
	if w.Code != http.StatusOK || svc.scaledUp != 1 {
		t.Fatalf("scale up default: status=%d up=%d", w.Code, svc.scaledUp)
	}
	w = do(t, mux, http.MethodPost, "/cluster/scale", `{"action":"down","count":2}`, nil)
	if w.Code != http.StatusOK || svc.scaledDown != 2 {
		t.Fatalf("scale down: status=%d down=%d", w.Code, svc.scaledDown)
	}
	for _, body := range []string{`{bad json`, `{"action":"sideways"}`, `{"action":"up","count":-1}`} {
		w = do(t, mux, http.MethodPost, "/cluster/scale", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d, want 400", body, w.Code)
		}
	}
}

func TestRouteHandler(t *testing.T) {
	svc := &mockService{routeOut: []byte(`{"answer":"42"}`)}
	w := do(t, NewMux(svc), http.MethodPost, "/route", `{"prompt":"hi"}`, map[string]string{"X-User": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"answer":"42"}` {
		t.Fatalf("body=%q", w.Body.String())
	}
	if svc.routedUser != "alice" {
		t.Fatalf("routed user=%q", svc.routedUser)
	}
	if string(svc.routedBody) != `{"prompt":"hi"}` {
		t.Fatalf("routed body=%q", svc.routedBody)
	}
}

func TestRouteDefaultsToAnonymous(t *testing.T) {
	svc := &mockService{routeOut: []byte(`{}`)}
	do(t, NewMux(svc), http.MethodPost, "/route", `{}`, nil)
	if svc.routedUser != "anonymous" {
		t.Fatalf("routed user=%q, want anonymous", svc.routedUser)
	}
}

func TestRouteBadJSON(t *testing.T) {
	svc := &mockService{}
	w := do(t, NewMux(svc), http.MethodPost, "/route", `{nope`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if svc.routedBody != nil {
		t.Fatalf("malformed body reached the dispatcher")
	}
}

func TestRouteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{cluster.ErrNoEligibleWorker(), http.StatusServiceUnavailable},
		{cluster.ErrUpstream(9000, 500, nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &mockService{routeErr: tc.err}
		w := do(t, NewMux(svc), http.MethodPost, "/route", `{}`, nil)
		if w.Code != tc.want {
			t.Fatalf("err %v: status=%d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestRouteUpstreamErrorNamesPort(t *testing.T) {
	svc := &mockService{routeErr: cluster.ErrUpstream(9000, 500, nil)}
	w := do(t, NewMux(svc), http.MethodPost, "/route", `{}`, nil)
	if !strings.Contains(w.Body.String(), "9000") {
		t.Fatalf("error body does not name the port: %s", w.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	w := do(t, NewMux(&mockService{healthy: true}), http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Cluster healthy") {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	w = do(t, NewMux(&mockService{healthy: false}), http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestUsersResetHandler(t *testing.T) {
	svc := &mockService{}
	w := do(t, NewMux(svc), http.MethodPost, "/users/reset", "", nil)
	if w.Code != http.StatusOK || !svc.usersReset {
		t.Fatalf("status=%d reset=%v", w.Code, svc.usersReset)
	}
}
