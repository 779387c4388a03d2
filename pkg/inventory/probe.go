package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/util"
)

// ErrExhausted is returned when every candidate was skipped
var ErrExhausted = errors.New("all endpoint candidates exhausted")

// Skip sets used by the stores
var (
	ReadSkip       = []int{http.StatusNotFound, http.StatusMethodNotAllowed}
	SyncSkip       = []int{http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusInternalServerError}
	SyncParentSkip = []int{http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusInternalServerError}
)

// Doer sends one API request. *api.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, opts api.Options) (*api.Response, error)
}

// Candidate is one endpoint the prober may try
type Candidate struct {
	Method string
	Path   string
	Params url.Values
	Body   any
}

func (c Candidate) String() string {
	s := c.Method + " " + c.Path
	if len(c.Params) > 0 {
		s += "?" + c.Params.Encode()
	}
	return s
}

// AcceptFunc inspects a 2xx payload. Returning false moves on to the next
// candidate as if the endpoint did not apply.
type AcceptFunc func(payload json.RawMessage) (json.RawMessage, bool)

// Prober tries candidates strictly in order. A status in Skip moves on to
// the next candidate; any other error aborts the probe.
type Prober struct {
	Client Doer
	Skip   []int
	Accept AcceptFunc
}

// ProbeResult is the first usable answer
type ProbeResult struct {
	Candidate Candidate
	Response  *api.Response
	Payload   json.RawMessage
}

// ExhaustedError lists what was tried. It matches ErrExhausted.
type ExhaustedError struct {
	Tried []Candidate
	Last  error // last skipped error, nil when only payloads were rejected
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("%v after %d candidates", ErrExhausted, len(e.Tried))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Run probes candidates and returns the first accepted result
func (p *Prober) Run(ctx context.Context, candidates []Candidate) (*ProbeResult, error) {
	exhausted := &ExhaustedError{}
	for _, c := range candidates {
		exhausted.Tried = append(exhausted.Tried, c)

		resp, err := p.Client.Do(ctx, c.Method, c.Path, api.Options{Params: c.Params, Body: c.Body})
		if err != nil {
			if status, ok := api.StatusCode(err); ok && p.skips(status) {
				util.WithRequest(c.Method, c.Path).Debugf("probe: %d, trying next candidate", status)
				exhausted.Last = err
				continue
			}
			return nil, err
		}

		payload := resp.Payload()
		if p.Accept != nil {
			accepted, ok := p.Accept(payload)
			if !ok {
				util.WithRequest(c.Method, c.Path).Debug("probe: payload not usable, trying next candidate")
				continue
			}
			payload = accepted
		}
		return &ProbeResult{Candidate: c, Response: resp, Payload: payload}, nil
	}
	return nil, exhausted
}

func (p *Prober) skips(status int) bool {
	for _, s := range p.Skip {
		if s == status {
			return true
		}
	}
	return false
}

// acceptRecord takes an object payload as is and searches an array payload
// for the record whose id matches.
func acceptRecord(id string) AcceptFunc {
	return func(payload json.RawMessage) (json.RawMessage, bool) {
		if payload == nil {
			return nil, false
		}
		switch payload[0] {
		case '{':
			return payload, true
		case '[':
			var items []Record
			if err := json.Unmarshal(payload, &items); err != nil {
				return nil, false
			}
			if i := indexOf(items, id); i >= 0 {
				b, err := json.Marshal(items[i])
				if err != nil {
					return nil, false
				}
				return b, true
			}
		}
		return nil, false
	}
}
