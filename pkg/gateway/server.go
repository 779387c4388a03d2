// Package gateway serves the dashboard's navigation surface over HTTP.
//
// Every route of the nav table is registered on a gin engine behind the
// auth guard. Screens are JSON payloads built from the entity stores;
// mutations live under /api and invalidate the cached list screens.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/auth"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/nav"
	"github.com/noah-network/noah/pkg/util"
)

// Defaults for Options left zero
const (
	DefaultRateLimit       = 10
	DefaultBurst           = 5
	DefaultCacheTTL        = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Options tunes the middleware
type Options struct {
	RateLimit float64
	Burst     int
	CacheTTL  time.Duration
}

// Server is the dashboard backend. It owns no state of its own besides the
// screen cache; records live in the registry and the token in the
// credential store behind the session.
type Server struct {
	client   *api.Client
	session  *auth.Session
	registry *inventory.Registry
	cache    *ScreenCache
	limiter  *IPRateLimiter
	engine   *gin.Engine

	expired atomic.Bool
}

// New wires the routes and subscribes to the client's AuthExpired events
func New(client *api.Client, session *auth.Session, registry *inventory.Registry, opts Options) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	s := &Server{
		client:   client,
		session:  session,
		registry: registry,
		cache:    NewScreenCache(opts.CacheTTL),
		limiter:  NewIPRateLimiter(rate.Limit(opts.RateLimit), opts.Burst),
	}
	client.OnAuthExpired(s.onAuthExpired)
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Cache returns the list-screen cache
func (s *Server) Cache() *ScreenCache {
	return s.cache
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		util.WithField("addr", addr).Info("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	util.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(), RateLimit(s.limiter))

	for _, route := range nav.Routes() {
		handlers := []gin.HandlerFunc{s.guard(route)}
		if route.Screen == nav.ScreenList && route.Entity != "" {
			handlers = append(handlers, s.cache.Middleware())
		}
		handlers = append(handlers, s.screen(route))
		r.GET(route.Path, handlers...)
	}

	a := r.Group("/api")
	{
		a.GET("/session", s.getSession)
		a.POST("/login", s.postLogin)
		a.POST("/logout", s.postLogout)

		inv := a.Group("/inventory", s.requireAuth)
		inv.GET("/:entity", s.getState)
		inv.POST("/:entity", s.createRecord)
		inv.PUT("/:entity/:uuid", s.updateRecord)
		inv.DELETE("/:entity/:uuid", s.deleteRecord)
		inv.POST("/:entity/delete", s.deleteRecords)
		inv.POST("/:entity/sync", s.syncEntity)
		inv.POST("/:entity/sync-parent/:uuid", s.syncParent)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no route for " + c.Request.URL.Path})
	})
	return r
}

// onAuthExpired runs on the goroutine that received the 401. The client
// has already cleared the credential; later requests hit the guard.
func (s *Server) onAuthExpired(ev api.AuthExpired) {
	if ev.Path == auth.LoginPath {
		return
	}
	s.expired.Store(true)
	s.cache.Invalidate()
	util.WithRequest(ev.Method, ev.Path).Warn("session expired, redirecting to login")
}

func (s *Server) authenticated(c *gin.Context) bool {
	return s.session.IsAuthenticated(c.Request.Context())
}

func (s *Server) loginRedirect() string {
	if s.expired.Load() {
		return nav.LoginPath + "?expired=1"
	}
	return nav.LoginPath
}

// guard applies nav.Guard, then the route's unconditional redirect
func (s *Server) guard(route nav.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		to := nav.Guard(route, s.authenticated(c))
		if to == "" {
			to = route.Redirect
		}
		if to == nav.LoginPath {
			to = s.loginRedirect()
		}
		if to != "" {
			c.Redirect(http.StatusFound, to)
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAuth answers unauthenticated API calls with 401 and the login path
func (s *Server) requireAuth(c *gin.Context) {
	if !s.authenticated(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":    util.ErrNotAuthenticated.Error(),
			"redirect": s.loginRedirect(),
		})
		return
	}
	c.Next()
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)

		c.Next()

		util.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"client_ip":  c.ClientIP(),
			"request_id": id,
		}).Info("gateway request")
	}
}
