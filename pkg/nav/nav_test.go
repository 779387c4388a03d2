package nav

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/util"
)

func TestRoutes_DashboardAllGated(t *testing.T) {
	for _, r := range Routes() {
		if r.Path == DashboardPath || len(r.Path) > len(DashboardPath) && r.Path[:len(DashboardPath)+1] == DashboardPath+"/" {
			assert.True(t, r.RequiresAuth, "%s must require auth", r.Path)
		}
	}
}

func TestRoutes_EveryEntityHasScreens(t *testing.T) {
	for _, e := range inventory.Entities() {
		for _, screen := range []Screen{ScreenList, ScreenCreate, ScreenDetail, ScreenEdit} {
			_, ok := EntityPath(e.Name, screen, "x")
			assert.True(t, ok, "%s has no %s screen", e.Name, screen)
		}
	}
}

func TestRoutes_UniqueNamesAndPaths(t *testing.T) {
	names := map[string]bool{}
	paths := map[string]bool{}
	for _, r := range Routes() {
		assert.False(t, names[r.Name], "duplicate name %s", r.Name)
		assert.False(t, paths[r.Path], "duplicate path %s", r.Path)
		names[r.Name] = true
		paths[r.Path] = true
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		path   string
		name   string
		params Params
	}{
		{"/login", "login", Params{}},
		{"/login?logout=ok", "login", Params{}},
		{"/dashboard/", "dashboard", Params{}},
		{"/dashboard/router/list", "router-list", Params{}},
		{"/dashboard/router/detail/r-1", "router-detail", Params{"uuid": "r-1"}},
		{"/dashboard/olt/card/edit/c-9", "olt-card-edit", Params{"uuid": "c-9"}},
		{"/dashboard/olt/pon-port/create", "olt-pon-port-create", Params{}},
		{"/dashboard/odp/detail", "odp-detail", Params{}},
		{"/dashboard/groupprofile", "group-profile", Params{}},
		{"/", "root", Params{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, params, ok := Match(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.name, r.Name)
			assert.Equal(t, tt.params, params)
		})
	}

	for _, miss := range []string{"/dashboard/odc/create", "/dashboard/router/detail", "/nope", "/dashboard/olt/card/detail/a/b"} {
		_, _, ok := Match(miss)
		assert.False(t, ok, miss)
	}
}

func TestGuard(t *testing.T) {
	list, _ := ByName("router-list")
	login, _ := ByName("login")
	register, _ := ByName("register")
	logout, _ := ByName("logout")

	assert.Equal(t, LoginPath, Guard(list, false))
	assert.Equal(t, "", Guard(list, true))
	assert.Equal(t, "", Guard(login, false))
	assert.Equal(t, DashboardPath, Guard(login, true))
	assert.Equal(t, DashboardPath, Guard(register, true))
	assert.Equal(t, "", Guard(logout, true))
	assert.Equal(t, "", Guard(logout, false))
}

func TestResolve(t *testing.T) {
	_, _, to, err := Resolve("/dashboard/olt/detail/o-1", false)
	require.NoError(t, err)
	assert.Equal(t, LoginPath, to)

	r, params, to, err := Resolve("/dashboard/olt/detail/o-1", true)
	require.NoError(t, err)
	assert.Equal(t, "", to)
	assert.Equal(t, inventory.OLT, r.Entity)
	assert.Equal(t, ScreenDetail, r.Screen)
	assert.Equal(t, "o-1", params["uuid"])

	_, _, to, _ = Resolve("/dashboard/bandwith", true)
	assert.Equal(t, "/dashboard/bandwith/list", to)

	_, _, to, _ = Resolve("/dashboard/bandwith", false)
	assert.Equal(t, LoginPath, to, "guard wins over section redirect")

	_, _, to, _ = Resolve("/", false)
	assert.Equal(t, LoginPath, to)

	_, _, _, err = Resolve("/missing", true)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestLogoutRedirect(t *testing.T) {
	assert.Equal(t, "/login?logout=ok", LogoutRedirect(false))
	assert.Equal(t, "/login?logout=err", LogoutRedirect(true))
}

func TestEntityPath(t *testing.T) {
	p, ok := EntityPath(inventory.OLTPonPort, ScreenEdit, "p-1")
	require.True(t, ok)
	assert.Equal(t, "/dashboard/olt/pon-port/edit/p-1", p)

	p, ok = EntityPath(inventory.PacketProfile, ScreenList, "")
	require.True(t, ok)
	assert.Equal(t, "/dashboard/packetprofile/list", p)

	_, ok = EntityPath("odp", ScreenList, "")
	assert.False(t, ok)
}
