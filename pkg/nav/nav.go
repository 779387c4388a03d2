// Package nav is the dashboard's navigation surface: the route table, the
// auth guard and the logout redirect rules.
package nav

import (
	"fmt"
	"strings"

	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/util"
)

// Well-known paths
const (
	RootPath      = "/"
	LoginPath     = "/login"
	RegisterPath  = "/register"
	LogoutPath    = "/logout"
	DashboardPath = "/dashboard"
)

// Screen is the kind of page a route renders
type Screen string

const (
	ScreenLogin     Screen = "login"
	ScreenRegister  Screen = "register"
	ScreenLogout    Screen = "logout"
	ScreenDashboard Screen = "dashboard"
	ScreenList      Screen = "list"
	ScreenCreate    Screen = "create"
	ScreenDetail    Screen = "detail"
	ScreenEdit      Screen = "edit"
)

// Route is one entry of the route table
type Route struct {
	Name         string
	Path         string // segments starting with ':' bind parameters
	Title        string
	Screen       Screen
	Entity       string // inventory entity, "" for static screens
	RequiresAuth bool
	GuestOnly    bool
	Redirect     string // unconditional redirect target
}

// Params are the bound path parameters of a matched route
type Params map[string]string

type section struct {
	path    string // under /dashboard
	name    string
	title   string
	entity  string
	screens []Screen
	byID    bool // detail and edit take :uuid
}

var full = []Screen{ScreenList, ScreenCreate, ScreenDetail, ScreenEdit}

var sections = []section{
	{"router", "router", "Router", inventory.Router, full, true},
	{"odp", "odp", "ODP", "", full, false},
	{"odc", "odc", "ODC", "", []Screen{ScreenList}, false},
	{"olt", "olt", "OLT", inventory.OLT, full, true},
	{"olt/card", "olt-card", "OLT Card", inventory.OLTCard, full, true},
	{"olt/pon-port", "olt-pon-port", "OLT PON Port", inventory.OLTPonPort, full, true},
	{"bandwith", "bandwith", "Bandwith", inventory.Bandwidth, full, true},
	{"packetprofile", "packet-profile", "Packet Profile", inventory.PacketProfile, full, true},
	{"groupprofile", "group-profile", "Group Profile", inventory.GroupProfile, full, true},
}

var table = buildRoutes()

func buildRoutes() []Route {
	routes := []Route{
		{Name: "root", Path: RootPath, Redirect: LoginPath},
		{Name: "login", Path: LoginPath, Title: "Login", Screen: ScreenLogin, GuestOnly: true},
		{Name: "register", Path: RegisterPath, Title: "Register", Screen: ScreenRegister, GuestOnly: true},
		{Name: "logout", Path: LogoutPath, Screen: ScreenLogout},
		{Name: "dashboard", Path: DashboardPath, Title: "Dashboard", Screen: ScreenDashboard, RequiresAuth: true},
	}

	for _, s := range sections {
		base := DashboardPath + "/" + s.path
		routes = append(routes, Route{
			Name:         s.name,
			Path:         base,
			Entity:       s.entity,
			RequiresAuth: true,
			Redirect:     base + "/list",
		})
		for _, screen := range s.screens {
			path := base + "/" + string(screen)
			if s.byID && (screen == ScreenDetail || screen == ScreenEdit) {
				path += "/:uuid"
			}
			routes = append(routes, Route{
				Name:         s.name + "-" + string(screen),
				Path:         path,
				Title:        screenTitle(screen, s.title),
				Screen:       screen,
				Entity:       s.entity,
				RequiresAuth: true,
			})
		}
	}
	return routes
}

func screenTitle(screen Screen, title string) string {
	return util.CapitalizeFirst(string(screen)) + " " + title
}

// Routes returns a copy of the route table
func Routes() []Route {
	return append([]Route(nil), table...)
}

// ByName returns the route with the given name
func ByName(name string) (Route, bool) {
	for _, r := range table {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// Match finds the route for path. The query string and a trailing slash
// are ignored.
func Match(path string) (Route, Params, bool) {
	path, _, _ = strings.Cut(path, "?")
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	segs := splitPath(path)

	for _, r := range table {
		pattern := splitPath(r.Path)
		if len(pattern) != len(segs) {
			continue
		}
		params := Params{}
		ok := true
		for i, p := range pattern {
			if strings.HasPrefix(p, ":") {
				if segs[i] == "" {
					ok = false
					break
				}
				params[p[1:]] = segs[i]
				continue
			}
			if p != segs[i] {
				ok = false
				break
			}
		}
		if ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Guard applies the auth rules: a gated route without a session goes to
// the login screen, a guest-only route with a session goes to the
// dashboard. It returns "" when navigation may proceed.
func Guard(r Route, authenticated bool) string {
	if r.RequiresAuth && !authenticated {
		return LoginPath
	}
	if r.GuestOnly && authenticated {
		return DashboardPath
	}
	return ""
}

// Resolve matches path and applies the guard, then any unconditional
// redirect. A non-empty redirect means the route must not be rendered.
func Resolve(path string, authenticated bool) (Route, Params, string, error) {
	r, params, ok := Match(path)
	if !ok {
		return Route{}, nil, "", fmt.Errorf("no route for %s: %w", path, util.ErrNotFound)
	}
	if to := Guard(r, authenticated); to != "" {
		return r, params, to, nil
	}
	if r.Redirect != "" {
		return r, params, r.Redirect, nil
	}
	return r, params, "", nil
}

// LogoutRedirect is where /logout lands: logout=ok after a normal logout,
// logout=err when it failed and only local clearing was attempted.
func LogoutRedirect(failed bool) string {
	if failed {
		return LoginPath + "?logout=err"
	}
	return LoginPath + "?logout=ok"
}

// EntityPath returns the dashboard path of an entity screen, with id bound
// for detail and edit.
func EntityPath(entity string, screen Screen, id string) (string, bool) {
	for _, r := range table {
		if r.Entity != entity || r.Screen != screen {
			continue
		}
		return strings.Replace(r.Path, ":uuid", id, 1), true
	}
	return "", false
}
