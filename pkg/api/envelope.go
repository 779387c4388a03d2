package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Envelope is the server's response wrapper: {status, message, data, meta?}
type Envelope struct {
	Status  json.RawMessage `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// OK interprets the envelope status, which servers send as a boolean,
// a number or a string.
func (e Envelope) OK() bool {
	raw := bytes.TrimSpace(e.Status)
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.ToLower(strings.TrimSpace(s))
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
		return s == "success" || s == "ok"
	}
	return false
}

// Response is a decoded server answer
type Response struct {
	Status   int
	Envelope Envelope
	Raw      []byte

	enveloped bool
}

// Payload returns the envelope's data, or the whole body when the server
// did not wrap its answer. A null or absent payload returns nil.
func (r *Response) Payload() json.RawMessage {
	var p json.RawMessage
	if r.enveloped {
		p = r.Envelope.Data
	} else {
		p = r.Raw
	}
	p = bytes.TrimSpace(p)
	if len(p) == 0 || string(p) == "null" {
		return nil
	}
	return p
}

func decodeResponse(status int, body []byte) *Response {
	resp := &Response{Status: status, Raw: body}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return resp
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return resp
	}
	_, hasData := probe["data"]
	_, hasStatus := probe["status"]
	_, hasMessage := probe["message"]
	if !hasData && !hasStatus && !hasMessage {
		return resp
	}

	resp.enveloped = true
	// a non-string message (field error maps) leaves Message empty but
	// still decodes the other fields
	_ = json.Unmarshal(trimmed, &resp.Envelope)
	return resp
}
