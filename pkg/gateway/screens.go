package gateway

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/nav"
	"github.com/noah-network/noah/pkg/util"
)

// Screen is the JSON payload of a rendered route
type Screen struct {
	Screen   nav.Screen       `json:"screen"`
	Title    string           `json:"title,omitempty"`
	Path     string           `json:"path"`
	Entity   string           `json:"entity,omitempty"`
	Params   nav.Params       `json:"params,omitempty"`
	State    *inventory.State `json:"state,omitempty"`
	Sections []Section        `json:"sections,omitempty"`
	Fields   []string         `json:"fields,omitempty"`
	Notice   string           `json:"notice,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Section is one dashboard menu entry
type Section struct {
	Entity       string   `json:"entity"`
	Title        string   `json:"title"`
	Path         string   `json:"path"`
	Capabilities []string `json:"capabilities"`
}

// list filters that are not passed through to the API
var reservedQuery = map[string]bool{"page": true, "limit": true, "detail": true}

func (s *Server) screen(route nav.Route) gin.HandlerFunc {
	switch route.Screen {
	case nav.ScreenLogin, nav.ScreenRegister:
		return s.authScreen(route)
	case nav.ScreenLogout:
		return s.logout
	case nav.ScreenDashboard:
		return s.dashboard(route)
	}
	if route.Entity == "" {
		return func(c *gin.Context) {
			c.JSON(http.StatusOK, newScreen(route, c))
		}
	}
	switch route.Screen {
	case nav.ScreenList:
		return s.listScreen(route)
	case nav.ScreenCreate:
		return s.createScreen(route)
	default:
		return s.recordScreen(route)
	}
}

func newScreen(route nav.Route, c *gin.Context) Screen {
	sc := Screen{
		Screen: route.Screen,
		Title:  route.Title,
		Path:   c.Request.URL.Path,
		Entity: route.Entity,
	}
	if len(c.Params) > 0 {
		sc.Params = nav.Params{}
		for _, p := range c.Params {
			sc.Params[p.Key] = p.Value
		}
	}
	return sc
}

func (s *Server) authScreen(route nav.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := newScreen(route, c)
		switch {
		case c.Query("expired") != "":
			sc.Notice = "session expired, please log in again"
		case c.Query("logout") == "ok":
			sc.Notice = "logged out"
		case c.Query("logout") == "err":
			sc.Notice = "logout failed on the server, local session cleared"
		}
		sc.Error = s.session.Err()
		c.JSON(http.StatusOK, sc)
	}
}

// logout performs the server logout and lands on the login screen
func (s *Server) logout(c *gin.Context) {
	err := s.session.LogoutServer(c.Request.Context())
	if err != nil {
		util.Warnf("logout: %v", err)
	}
	s.cache.Invalidate()
	c.Redirect(http.StatusFound, nav.LogoutRedirect(err != nil))
}

func (s *Server) dashboard(route nav.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := newScreen(route, c)
		for _, st := range s.registry.Stores() {
			e := st.Entity()
			path, ok := nav.EntityPath(e.Name, nav.ScreenList, "")
			if !ok {
				continue
			}
			sc.Sections = append(sc.Sections, Section{
				Entity:       e.Name,
				Title:        e.Title,
				Path:         path,
				Capabilities: e.CapabilityNames(),
			})
		}
		c.JSON(http.StatusOK, sc)
	}
}

func (s *Server) listScreen(route nav.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := s.registry.Store(route.Entity)
		if err != nil {
			s.screenError(c, route, err)
			return
		}

		q, err := listQuery(c)
		if err != nil {
			s.screenError(c, route, err)
			return
		}

		detail, _ := strconv.ParseBool(c.Query("detail"))
		if detail && store.Entity().Supports(inventory.CanListDetail) {
			_, err = store.FetchListDetail(c.Request.Context(), q)
		} else {
			_, err = store.FetchList(c.Request.Context(), q)
		}
		if err != nil {
			s.screenError(c, route, err)
			return
		}

		sc := newScreen(route, c)
		st := store.Snapshot()
		sc.State = &st
		c.JSON(http.StatusOK, sc)
	}
}

func (s *Server) createScreen(route nav.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := s.registry.Store(route.Entity)
		if err != nil {
			s.screenError(c, route, err)
			return
		}
		sc := newScreen(route, c)
		sc.Fields = formFields(store.Entity().Sanitizer)
		c.JSON(http.StatusOK, sc)
	}
}

func (s *Server) recordScreen(route nav.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := s.registry.Store(route.Entity)
		if err != nil {
			s.screenError(c, route, err)
			return
		}
		hints := inventory.Hints{
			OltUUID:     c.Query("olt_uuid"),
			OltCardUUID: c.Query("olt_card_uuid"),
		}
		if _, err := store.GetOne(c.Request.Context(), c.Param("uuid"), hints); err != nil {
			s.screenError(c, route, err)
			return
		}

		sc := newScreen(route, c)
		st := store.Snapshot()
		sc.State = &st
		if route.Screen == nav.ScreenEdit {
			sc.Fields = formFields(store.Entity().Sanitizer)
		}
		c.JSON(http.StatusOK, sc)
	}
}

// screenError redirects to the login screen when the session expired and
// renders the error into the screen otherwise
func (s *Server) screenError(c *gin.Context, route nav.Route, err error) {
	if errors.Is(err, util.ErrAuthExpired) {
		c.Redirect(http.StatusFound, s.loginRedirect())
		return
	}
	sc := newScreen(route, c)
	sc.Error = api.Message(err, "request failed")
	c.JSON(statusOf(err), sc)
}

func listQuery(c *gin.Context) (inventory.ListQuery, error) {
	var q inventory.ListQuery
	var err error
	if v := c.Query("page"); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil {
			return q, util.NewValidationError("page must be a number")
		}
	}
	if v := c.Query("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return q, util.NewValidationError("limit must be a number")
		}
	}
	for k, v := range c.Request.URL.Query() {
		if reservedQuery[k] || len(v) == 0 {
			continue
		}
		if q.Filters == nil {
			q.Filters = map[string]string{}
		}
		q.Filters[k] = v[0]
	}
	return q, nil
}

// formFields lists the fields an entity's sanitizer knows about
func formFields(sz inventory.Sanitizer) []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]string{sz.Strings, sz.Numbers, sz.NullableNumbers} {
		for _, f := range group {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

// statusOf maps an operation error to the gateway's HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, util.ErrAuthExpired), errors.Is(err, util.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, util.ErrUnsupported):
		return http.StatusMethodNotAllowed
	case errors.Is(err, util.ErrInvalidID), errors.Is(err, util.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrSyncUnavailable), errors.Is(err, inventory.ErrExhausted):
		return http.StatusNotImplemented
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, util.ErrNetwork):
		return http.StatusBadGateway
	}
	if status, ok := api.StatusCode(err); ok {
		if status >= 400 && status < 500 {
			return status
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
