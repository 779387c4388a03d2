package gateway

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ScreenCache holds rendered list screens until they expire or a mutation
// invalidates them
type ScreenCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewScreenCache creates a cache whose entries live for ttl
func NewScreenCache(ttl time.Duration) *ScreenCache {
	return &ScreenCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Invalidate drops every cached screen
func (s *ScreenCache) Invalidate() {
	s.store.Flush()
}

// Len returns the number of cached screens
func (s *ScreenCache) Len() int {
	return s.store.ItemCount()
}

// Middleware serves GET requests from the cache keyed by request URI and
// caches 2xx answers. The X-Cache header reports hit or miss.
func (s *ScreenCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if resp, found := s.store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "hit")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		c.Writer.Header().Set("X-Cache", "miss")
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if blw.Status() >= 200 && blw.Status() < 300 {
			headers := blw.Header().Clone()
			headers.Del("X-Cache")
			s.store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: headers,
				body:    blw.body.Bytes(),
			}, s.ttl)
		}
	}
}
