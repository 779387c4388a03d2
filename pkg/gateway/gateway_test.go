package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-network/noah/internal/testutil"
	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/audit"
	"github.com/noah-network/noah/pkg/auth"
	"github.com/noah-network/noah/pkg/credential"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	fake   *testutil.FakeAPI
	creds  *credential.MemoryStore
	server *Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	f := &fixture{
		fake:  testutil.NewFakeAPI(t),
		creds: credential.NewMemoryStore(credential.Credential{Token: token}),
	}
	client := api.New(f.fake.URL, api.WithCredentialStore(f.creds))
	session := auth.NewSession(client, f.creds)
	registry := inventory.NewRegistry(client, inventory.WithAuditLogger(audit.NewMemoryLogger()))
	f.server = New(client, session, registry, Options{RateLimit: 1000, Burst: 1000})
	return f
}

func (f *fixture) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRootRedirectsToLogin(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		path     string
		wantCode int
		wantLoc  string
	}{
		{"gated without session", "", "/dashboard/router/list", http.StatusFound, "/login"},
		{"dashboard without session", "", "/dashboard", http.StatusFound, "/login"},
		{"login with session", "tok", "/login", http.StatusFound, "/dashboard"},
		{"register with session", "tok", "/register", http.StatusFound, "/dashboard"},
		{"login without session", "", "/login", http.StatusOK, ""},
		{"section root", "tok", "/dashboard/olt/card", http.StatusFound, "/dashboard/olt/card/list"},
		{"static screen", "tok", "/dashboard/odc/list", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.token)
			w := f.do(http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantLoc, w.Header().Get("Location"))
		})
	}
}

func TestDashboardSections(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	sections := body["sections"].([]any)
	assert.Len(t, sections, len(inventory.Entities()))
	first := sections[0].(map[string]any)
	assert.Equal(t, inventory.Router, first["entity"])
	assert.Equal(t, "/dashboard/router/list", first["path"])
}

func TestListScreen_CachedUntilMutation(t *testing.T) {
	f := newFixture(t, "tok")
	f.fake.On(http.MethodGet, "/master/router", http.StatusOK, testutil.Page([]map[string]any{
		{"uuid": "r-1", "code": "R1"},
		{"uuid": "r-2", "code": "R2"},
	}, 1, 10, 2))
	f.fake.On(http.MethodPost, "/master/router/create", http.StatusOK, testutil.OK(map[string]any{"uuid": "r-3"}))

	w := f.do(http.MethodGet, "/dashboard/router/list?search=R", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))

	body := decode(t, w)
	state := body["state"].(map[string]any)
	assert.Len(t, state["items"], 2)
	assert.Equal(t, "R", f.fake.Calls()[0].Query().Get("search"))

	w = f.do(http.MethodGet, "/dashboard/router/list?search=R", "")
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	assert.Len(t, f.fake.Calls(), 1)

	w = f.do(http.MethodPost, "/api/inventory/router", `{"code":" R3 "}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 0, f.server.Cache().Len())
	assert.Equal(t, "R3", f.fake.Calls()[1].DecodeBody(t)["code"])

	w = f.do(http.MethodGet, "/dashboard/router/list?search=R", "")
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))
	assert.Len(t, f.fake.Calls(), 3)
}

func TestListScreen_BadPage(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodGet, "/dashboard/olt/list?page=two", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "page")
}

func TestDetailScreen(t *testing.T) {
	f := newFixture(t, "tok")
	f.fake.On(http.MethodGet, "/master/router/r-1", http.StatusOK, testutil.OK(map[string]any{"uuid": "r-1", "code": "R1"}))

	w := f.do(http.MethodGet, "/dashboard/router/detail/r-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "r-1", body["params"].(map[string]any)["uuid"])
	current := body["state"].(map[string]any)["current"].(map[string]any)
	assert.Equal(t, "R1", current["code"])
}

func TestDetailScreen_NotFound(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodGet, "/dashboard/olt/detail/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditScreenListsFields(t *testing.T) {
	f := newFixture(t, "tok")
	f.fake.On(http.MethodGet, "/master/bandwith/b-1", http.StatusOK, testutil.OK(map[string]any{"uuid": "b-1"}))

	w := f.do(http.MethodGet, "/dashboard/bandwith/edit/b-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["fields"])
}

func TestAuthExpired_RedirectsLaterRequests(t *testing.T) {
	f := newFixture(t, "tok")
	f.fake.On(http.MethodGet, "/master/olt", http.StatusUnauthorized, testutil.Fail("token expired"))

	w := f.do(http.MethodGet, "/dashboard/olt/list", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?expired=1", w.Header().Get("Location"))

	cred, _ := f.creds.Load(context.Background())
	assert.False(t, cred.Present())

	w = f.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, "/login?expired=1", w.Header().Get("Location"))

	w = f.do(http.MethodGet, "/login?expired=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["notice"], "expired")

	w = f.do(http.MethodGet, "/api/session", "")
	body := decode(t, w)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, true, body["expired"])
}

func TestLogin(t *testing.T) {
	f := newFixture(t, "")
	f.fake.On(http.MethodPost, auth.LoginPath, http.StatusOK, testutil.OK(map[string]any{"access_token": "fresh"}))

	w := f.do(http.MethodPost, "/api/login", `{"user":"admin","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"redirect":"/dashboard"}`, w.Body.String())

	w = f.do(http.MethodGet, "/login", "")
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestLogin_Rejected(t *testing.T) {
	f := newFixture(t, "")
	f.fake.On(http.MethodPost, auth.LoginPath, http.StatusUnauthorized, testutil.Fail("wrong password"))

	w := f.do(http.MethodPost, "/api/login", `{"user":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"wrong password"}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/session", "")
	assert.Equal(t, false, decode(t, w)["expired"])
}

func TestLogin_InvalidBody(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(http.MethodPost, "/api/login", `{"user":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestLogoutRoute(t *testing.T) {
	f := newFixture(t, "tok")

	// the fake has no logout route; the server failure is ignored
	w := f.do(http.MethodGet, "/logout", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?logout=ok", w.Header().Get("Location"))

	cred, _ := f.creds.Load(context.Background())
	assert.False(t, cred.Present())
	assert.Equal(t, []string{"POST /user/logout"}, f.fake.Keys())
}

func TestLogoutLocalAPI(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodPost, "/api/logout?local=true", "")
	assert.JSONEq(t, `{"redirect":"/login?logout=ok"}`, w.Body.String())
	assert.Empty(t, f.fake.Calls())
}

func TestInventoryAPI_RequiresAuth(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(http.MethodDelete, "/api/inventory/router/r-1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/login", decode(t, w)["redirect"])
	assert.Empty(t, f.fake.Calls())
}

func TestInventoryAPI_UnknownEntity(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodGet, "/api/inventory/switch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInventoryAPI_Unsupported(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodDelete, "/api/inventory/packet-profile/p-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Empty(t, f.fake.Calls())
}

func TestInventoryAPI_UpdateAndDelete(t *testing.T) {
	f := newFixture(t, "tok")
	f.fake.On(http.MethodPost, "/master/olt/update/o-1", http.StatusOK, testutil.OK(nil))
	f.fake.On(http.MethodDelete, "/master/olt/delete/o-1", http.StatusOK, testutil.OK(nil))

	w := f.do(http.MethodPut, "/api/inventory/olts/o-1", `{"name":"core"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodDelete, "/api/inventory/olt/o-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"POST /master/olt/update/o-1", "DELETE /master/olt/delete/o-1"}, f.fake.Keys())
}

func TestInventoryAPI_DeleteManyEmpty(t *testing.T) {
	f := newFixture(t, "tok")
	w := f.do(http.MethodPost, "/api/inventory/router/delete", `{"uuids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.fake.Calls())
}

func TestInventoryAPI_Sync(t *testing.T) {
	f := newFixture(t, "tok")
	f.fake.On(http.MethodPost, "/master/router/sync", http.StatusOK, testutil.OK(map[string]any{"synced": 3}))

	w := f.do(http.MethodPost, "/api/inventory/router/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["can_sync"])
	assert.Equal(t, float64(3), body["data"].(map[string]any)["synced"])
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, "")
	f.server.limiter = NewIPRateLimiter(1, 2)
	f.server.engine = f.server.routes()

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(http.MethodGet, "/login", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, f.server.limiter.Len())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{util.ErrInvalidID, http.StatusBadRequest},
		{util.NewNotFoundError("olt", "x"), http.StatusNotFound},
		{util.NewUnsupportedError("olt", "sync"), http.StatusMethodNotAllowed},
		{&inventory.ExhaustedError{}, http.StatusNotImplemented},
		{&api.HTTPError{Status: http.StatusUnauthorized}, http.StatusUnauthorized},
		{&api.HTTPError{Status: http.StatusUnprocessableEntity}, http.StatusUnprocessableEntity},
		{&api.HTTPError{Status: http.StatusInternalServerError}, http.StatusBadGateway},
		{&api.NetworkError{Err: errors.New("refused")}, http.StatusBadGateway},
		{&api.NetworkError{Err: errors.New("slow"), Timeout: true}, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
