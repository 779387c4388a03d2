package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-network/noah/internal/testutil"
	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/audit"
	"github.com/noah-network/noah/pkg/auth"
	"github.com/noah-network/noah/pkg/credential"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/settings"
	"github.com/noah-network/noah/pkg/util"
)

func newTestApp(t *testing.T) (*App, *testutil.FakeAPI, *credential.MemoryStore) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() {
		util.SetLogOutput(os.Stderr)
		util.SetTextFormat()
	})
	fake := testutil.NewFakeAPI(t)
	creds := credential.NewMemoryStore(credential.Credential{Token: "tok"})
	client := api.New(fake.URL, api.WithCredentialStore(creds))
	a := &App{
		in:           strings.NewReader(""),
		settingsPath: filepath.Join(t.TempDir(), "settings.json"),
		settings:     &settings.Settings{},
		client:       client,
		creds:        creds,
		session:      auth.NewSession(client, creds),
		registry:     inventory.NewRegistry(client, inventory.WithAuditLogger(audit.NewMemoryLogger())),
	}
	return a, fake, creds
}

func run(a *App, args ...string) (string, error) {
	cmd := newRootCmd(a)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

var routers = []map[string]any{
	{"uuid": "r-1", "code": "core-1", "ip_address": "10.0.0.1", "password": "hunter2"},
	{"uuid": "r-2", "code": "edge-1", "ip_address": "10.0.0.2", "password": "hunter2"},
}

func TestVersion(t *testing.T) {
	a, _, _ := newTestApp(t)
	out, err := run(a, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "noah dev build")
}

func TestRouterList_Table(t *testing.T) {
	a, fake, _ := newTestApp(t)
	fake.On(http.MethodGet, "/master/router", http.StatusOK, testutil.Page(routers, 1, 10, 2))

	out, err := run(a, "router", "list", "--search", "core")
	require.NoError(t, err)

	assert.Contains(t, out, "UUID")
	assert.Contains(t, out, "IP_ADDRESS")
	assert.Contains(t, out, "core-1")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "Page 1/1, 2 of 2 records")

	q := fake.Calls()[0].Query()
	assert.Equal(t, "core", q.Get("search"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "10", q.Get("limit"))
}

func TestRouterList_JSONAndPageSizeSetting(t *testing.T) {
	a, fake, _ := newTestApp(t)
	a.settings.PageSize = 25
	fake.On(http.MethodGet, "/master/router", http.StatusOK, testutil.Page(routers, 1, 25, 2))

	out, err := run(a, "routers", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"items"`)
	assert.Contains(t, out, `"hunter2"`)
	assert.Equal(t, "25", fake.Calls()[0].Query().Get("limit"))
}

func TestOLTCardList_DetailWithDefaultOLT(t *testing.T) {
	a, fake, _ := newTestApp(t)
	a.settings.DefaultOLT = "olt-9"
	fake.On(http.MethodGet, "/master/olt-card/list-detail", http.StatusOK,
		testutil.Page([]map[string]any{{"uuid": "c-1", "slot_number": 3}}, 1, 10, 1))

	out, err := run(a, "olt-card", "list", "--detail")
	require.NoError(t, err)
	assert.Contains(t, out, "c-1")
	assert.Equal(t, []string{"GET /master/olt-card/list-detail"}, fake.Keys())
	assert.Equal(t, "olt-9", fake.Calls()[0].Query().Get("olt_uuid"))
}

func TestCreate_SanitizesKeyValues(t *testing.T) {
	a, fake, _ := newTestApp(t)
	fake.On(http.MethodPost, "/master/olt-card/create", http.StatusOK, testutil.OK(map[string]any{"uuid": "c-7"}))

	out, err := run(a, "olt-card", "create", "olt_uuid=olt-1", "slot_number= 4 ", "code= A ")
	require.NoError(t, err)
	assert.Contains(t, out, "c-7")

	body := fake.Calls()[0].DecodeBody(t)
	assert.Equal(t, float64(4), body["slot_number"])
	assert.Equal(t, "A", body["code"])
}

func TestCreate_InvalidArgument(t *testing.T) {
	a, fake, _ := newTestApp(t)
	_, err := run(a, "router", "create", "code")
	assert.Error(t, err)
	assert.Empty(t, fake.Calls())
}

func TestDeleteMany_CommaSeparated(t *testing.T) {
	a, fake, _ := newTestApp(t)
	fake.On(http.MethodDelete, "/master/router/deletes", http.StatusOK, testutil.OK(nil))

	out, err := run(a, "router", "delete-many", "r-1,r-2", "r-3")
	require.NoError(t, err)
	assert.Contains(t, out, "(3)")
	assert.Equal(t, []any{"r-1", "r-2", "r-3"}, fake.Calls()[0].DecodeBody(t)["uuids"])
}

func TestShow_NotFound(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := run(a, "olt", "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSync_Unavailable(t *testing.T) {
	a, _, _ := newTestApp(t)
	out, err := run(a, "router", "sync")
	require.Error(t, err)
	assert.Contains(t, out, "Sync is not available")
}

func TestEntityCommands_FollowCapabilities(t *testing.T) {
	a, _, _ := newTestApp(t)
	names := func(e *inventory.Entity) []string {
		var out []string
		for _, c := range newEntityCmd(a, e).Commands() {
			out = append(out, c.Name())
		}
		return out
	}

	for _, e := range inventory.Entities() {
		switch e.Name {
		case inventory.PacketProfile:
			assert.Equal(t, []string{"list"}, names(e))
		case inventory.OLTCard:
			assert.Contains(t, names(e), "sync-olt")
			assert.NotContains(t, names(e), "sync")
		case inventory.Router:
			assert.Contains(t, names(e), "sync")
			assert.Contains(t, names(e), "delete-many")
		}
	}
}

func TestLogin_ReadsPasswordFromStdin(t *testing.T) {
	a, fake, creds := newTestApp(t)
	require.NoError(t, creds.Clear(context.Background()))
	a.in = strings.NewReader("secret\n")
	fake.On(http.MethodPost, auth.LoginPath, http.StatusOK, testutil.OK(map[string]any{"access_token": "abc"}))

	out, err := run(a, "login", "--user", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")

	cred, _ := creds.Load(context.Background())
	assert.Equal(t, "abc", cred.Token)
	assert.Equal(t, "secret", fake.Calls()[0].DecodeBody(t)["password"])

	saved, err := settings.LoadFrom(a.settingsPath)
	require.NoError(t, err)
	assert.Equal(t, "admin", saved.LastUser)
}

func TestLogin_Rejected(t *testing.T) {
	a, fake, _ := newTestApp(t)
	a.in = strings.NewReader("wrong\n")
	fake.On(http.MethodPost, auth.LoginPath, http.StatusOK, testutil.Fail("invalid credentials"))

	_, err := run(a, "login", "--user", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestLogout(t *testing.T) {
	a, fake, creds := newTestApp(t)

	out, err := run(a, "logout", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.Empty(t, fake.Calls())

	cred, _ := creds.Load(context.Background())
	assert.False(t, cred.Present())
}

func TestStatus(t *testing.T) {
	a, _, _ := newTestApp(t)
	out, err := run(a, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"authenticated": true`)
}

func TestSettingsPathFlag_KeepsHomeUntouched(t *testing.T) {
	a, fake, _ := newTestApp(t)
	a.in = strings.NewReader("secret\n")
	fake.On(http.MethodPost, auth.LoginPath, http.StatusOK, testutil.OK(map[string]any{"access_token": "abc"}))

	_, err := run(a, "settings", "set", "page_size", "40")
	require.NoError(t, err)
	_, err = run(a, "login", "--user", "admin")
	require.NoError(t, err)

	saved, err := settings.LoadFrom(a.settingsPath)
	require.NoError(t, err)
	assert.Equal(t, 40, saved.PageSize)
	assert.Equal(t, "admin", saved.LastUser)

	_, err = os.Stat(filepath.Join(os.Getenv("HOME"), ".noah"))
	assert.True(t, os.IsNotExist(err), "nothing may be written under $HOME")
}

func TestSettingsPathFlag_Explicit(t *testing.T) {
	a, _, _ := newTestApp(t)
	other := filepath.Join(t.TempDir(), "other.json")

	_, err := run(a, "--settings", other, "settings", "set", "default_olt", "olt-3")
	require.NoError(t, err)

	saved, err := settings.LoadFrom(other)
	require.NoError(t, err)
	assert.Equal(t, "olt-3", saved.DefaultOLT)
}

func TestLogFormatFlag(t *testing.T) {
	a, _, _ := newTestApp(t)

	_, err := run(a, "--log-format", "json", "status")
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, util.Logger.Formatter)

	_, err = run(a, "--log-format", "yaml", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}

func TestSettings_SetGet(t *testing.T) {
	a, _, _ := newTestApp(t)

	_, err := run(a, "settings", "set", "page_size", "40")
	require.NoError(t, err)
	out, err := run(a, "settings", "get", "page_size")
	require.NoError(t, err)
	assert.Equal(t, "40\n", out)

	_, err = run(a, "settings", "set", "output_format", "xml")
	assert.Error(t, err)
	_, err = run(a, "settings", "set", "color", "on")
	assert.Error(t, err)
}

func TestAuditList(t *testing.T) {
	a, _, _ := newTestApp(t)
	mem := audit.NewMemoryLogger()
	audit.SetDefaultLogger(mem)
	t.Cleanup(func() { audit.SetDefaultLogger(nil) })

	require.NoError(t, mem.Log(audit.NewEvent("admin", inventory.Router, audit.OpCreate).WithRecords("r-1").WithSuccess()))
	require.NoError(t, mem.Log(audit.NewEvent("admin", inventory.OLT, audit.OpDelete).WithRecords("o-1").WithSuccess()))

	out, err := run(a, "audit", "list", "--entity", inventory.Router)
	require.NoError(t, err)
	assert.Contains(t, out, "r-1")
	assert.NotContains(t, out, "o-1")
}

func TestShell_SharesStoreAcrossCommands(t *testing.T) {
	a, fake, _ := newTestApp(t)
	fake.On(http.MethodGet, "/master/router", http.StatusOK, testutil.Page(routers, 1, 10, 2))
	a.in = strings.NewReader("use router\nlist\nstate\nexit\nbogus\nquit\n")

	out, err := run(a, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "noah:router> ")
	assert.Contains(t, out, "Items:    2")
	assert.Contains(t, out, "Unknown command: bogus")
	assert.Len(t, fake.Calls(), 1)
}

func TestListColumns(t *testing.T) {
	routerEntity := inventory.Entities()[0]
	cols := listColumns(routerEntity, []inventory.Record{
		{"uuid": "r-1", "code": "x", "password": "p", "brand": "b"},
	})
	assert.Equal(t, []string{"uuid", "code", "brand"}, cols)

	var pp *inventory.Entity
	for _, e := range inventory.Entities() {
		if e.Name == inventory.PacketProfile {
			pp = e
		}
	}
	cols = listColumns(pp, []inventory.Record{{"name": "gold", "id": float64(3), "rate": "10M"}})
	assert.Equal(t, []string{"id", "name", "rate"}, cols)
}
