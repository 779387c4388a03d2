// Package testutil provides a programmable fake of the inventory API.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// Call is one request received by the fake
type Call struct {
	Method   string
	Path     string
	RawQuery string
	Body     []byte
	Header   http.Header
}

// Key returns "METHOD /path", the form used to register routes
func (c Call) Key() string {
	return c.Method + " " + c.Path
}

// Query parses the raw query string
func (c Call) Query() url.Values {
	v, _ := url.ParseQuery(c.RawQuery)
	return v
}

// DecodeBody unmarshals the request body into a map
func (c Call) DecodeBody(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	if len(c.Body) == 0 {
		return m
	}
	if err := json.Unmarshal(c.Body, &m); err != nil {
		t.Fatalf("decoding body of %s: %v", c.Key(), err)
	}
	return m
}

// Responder computes a status and body for a request
type Responder func(r *http.Request, body []byte) (int, any)

// FakeAPI is an httptest server answering registered routes. Unregistered
// routes answer 404 with a standard envelope.
type FakeAPI struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]Responder
	calls  []Call
}

// NewFakeAPI starts a fake server closed at test cleanup
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{routes: make(map[string]Responder)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// On answers method+path with a fixed status and body. path may carry a
// query string to match only that exact query.
func (f *FakeAPI) On(method, path string, status int, body any) {
	f.OnFunc(method, path, func(*http.Request, []byte) (int, any) {
		return status, body
	})
}

// OnFunc answers method+path with fn
func (f *FakeAPI) OnFunc(method, path string, fn Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

// Calls returns the requests received so far, in order
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Keys returns "METHOD /path" for every request received, in order
func (f *FakeAPI) Keys() []string {
	calls := f.Calls()
	keys := make([]string, len(calls))
	for i, c := range calls {
		keys[i] = c.Key()
	}
	return keys
}

// ResetCalls forgets recorded requests but keeps routes
func (f *FakeAPI) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, Call{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Body:     body,
		Header:   r.Header.Clone(),
	})
	fn, ok := f.routes[r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery]
	if !ok {
		fn, ok = f.routes[r.Method+" "+r.URL.Path]
	}
	f.mu.Unlock()

	status, payload := http.StatusNotFound, any(Fail("route not found"))
	if ok {
		status, payload = fn(r, body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch p := payload.(type) {
	case nil:
	case []byte:
		w.Write(p)
	case string:
		io.WriteString(w, p)
	default:
		json.NewEncoder(w).Encode(p)
	}
}

// OK wraps data in a success envelope
func OK(data any) map[string]any {
	return map[string]any{"status": true, "message": "success", "data": data}
}

// Fail builds an error envelope
func Fail(message string) map[string]any {
	return map[string]any{"status": false, "message": message, "data": nil}
}

// Page builds a list envelope with pagination meta
func Page(items []map[string]any, page, perPage, total int) map[string]any {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return map[string]any{
		"status":  true,
		"message": "success",
		"data":    items,
		"meta": map[string]any{
			"pagination": map[string]any{
				"per_page":     perPage,
				"count":        len(items),
				"current_page": page,
				"total":        total,
				"total_pages":  totalPages,
			},
		},
	}
}
