package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/auth"
	"github.com/noah-network/noah/pkg/inventory"
	"github.com/noah-network/noah/pkg/nav"
	"github.com/noah-network/noah/pkg/util"
)

type loginBody struct {
	User     string `json:"user" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type idsBody struct {
	UUIDs []string `json:"uuids"`
}

type syncBody struct {
	UUID string `json:"uuid"`
}

// GET /api/session
func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": s.authenticated(c),
		"expired":       s.expired.Load(),
		"loading":       s.session.Loading(),
		"error":         s.session.Err(),
	})
}

// POST /api/login
func (s *Server) postLogin(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := s.session.Login(c.Request.Context(), body.User, body.Password); err != nil {
		status := http.StatusUnauthorized
		if !auth.IsLoginRejected(err) {
			status = statusOf(err)
		}
		c.JSON(status, gin.H{"error": s.session.Err()})
		return
	}
	s.expired.Store(false)
	s.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"redirect": nav.DashboardPath})
}

// POST /api/logout[?local=true]
func (s *Server) postLogout(c *gin.Context) {
	ctx := c.Request.Context()
	var err error
	if local, _ := strconv.ParseBool(c.Query("local")); local {
		err = s.session.LogoutLocal(ctx)
	} else {
		err = s.session.LogoutServer(ctx)
	}
	s.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"redirect": nav.LogoutRedirect(err != nil)})
}

// GET /api/inventory/:entity
func (s *Server) getState(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, store.Snapshot())
}

// POST /api/inventory/:entity
func (s *Server) createRecord(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var payload inventory.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rec, err := store.Create(c.Request.Context(), payload)
	if err != nil {
		s.apiError(c, err)
		return
	}
	s.cache.Invalidate()
	c.JSON(http.StatusCreated, gin.H{"data": rec})
}

// PUT /api/inventory/:entity/:uuid
func (s *Server) updateRecord(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var payload inventory.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := store.Update(c.Request.Context(), c.Param("uuid"), payload); err != nil {
		s.apiError(c, err)
		return
	}
	s.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"data": store.Current()})
}

// DELETE /api/inventory/:entity/:uuid
func (s *Server) deleteRecord(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	if err := store.Remove(c.Request.Context(), c.Param("uuid")); err != nil {
		s.apiError(c, err)
		return
	}
	s.cache.Invalidate()
	c.Status(http.StatusNoContent)
}

// POST /api/inventory/:entity/delete
func (s *Server) deleteRecords(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var body idsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := store.RemoveMany(c.Request.Context(), body.UUIDs); err != nil {
		s.apiError(c, err)
		return
	}
	s.cache.Invalidate()
	c.Status(http.StatusNoContent)
}

// POST /api/inventory/:entity/sync
func (s *Server) syncEntity(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var body syncBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	res, err := store.Sync(c.Request.Context(), body.UUID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	s.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"data": res, "can_sync": store.CanSync()})
}

// POST /api/inventory/:entity/sync-parent/:uuid
func (s *Server) syncParent(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	res, err := store.SyncParent(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		s.apiError(c, err)
		return
	}
	s.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) store(c *gin.Context) (*inventory.Store, bool) {
	store, err := s.registry.Store(c.Param("entity"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return store, true
}

// apiError answers with the mapped status; an expired session also
// carries the login redirect
func (s *Server) apiError(c *gin.Context, err error) {
	body := gin.H{"error": api.Message(err, "request failed")}
	if errors.Is(err, util.ErrAuthExpired) {
		body["redirect"] = s.loginRedirect()
	}
	c.JSON(statusOf(err), body)
}
