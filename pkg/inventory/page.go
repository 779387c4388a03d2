package inventory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-network/noah/pkg/api"
)

// Default page geometry before the first successful list
const (
	DefaultPerPage = 10
	DefaultPage    = 1
)

// Pagination is the server's page metadata
type Pagination struct {
	PerPage     int `json:"per_page"`
	Count       int `json:"count"`
	CurrentPage int `json:"current_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

// UnmarshalJSON accepts numbers sent as JSON strings
func (p *Pagination) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := map[string]*int{
		"per_page":     &p.PerPage,
		"count":        &p.Count,
		"current_page": &p.CurrentPage,
		"total":        &p.Total,
		"total_pages":  &p.TotalPages,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("pagination %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Consistent reports whether the metadata describes a page of n items:
// count equals n and total_pages equals ceil(total/per_page).
func (p Pagination) Consistent(n int) bool {
	if p.Count != n {
		return false
	}
	if p.PerPage <= 0 {
		return p.TotalPages == 0
	}
	return p.TotalPages == (p.Total+p.PerPage-1)/p.PerPage
}

// Meta wraps pagination the way the API does
type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// DefaultMeta is the meta a store holds before its first list
func DefaultMeta() Meta {
	return Meta{Pagination: Pagination{
		PerPage:     DefaultPerPage,
		CurrentPage: DefaultPage,
	}}
}

// Page is one list response
type Page struct {
	Items []Record `json:"items"`
	Meta  Meta     `json:"meta"`

	// HasMeta is false when the server sent no meta; stores then keep
	// their previous meta.
	HasMeta bool `json:"-"`
}

func decodePage(resp *api.Response) (*Page, error) {
	page := &Page{Items: []Record{}}

	if payload := resp.Payload(); payload != nil {
		if err := json.Unmarshal(payload, &page.Items); err != nil {
			return nil, fmt.Errorf("decoding list payload: %w", err)
		}
		if page.Items == nil {
			page.Items = []Record{}
		}
	}

	if meta := resp.Envelope.Meta; len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &page.Meta); err != nil {
			return nil, fmt.Errorf("decoding list meta: %w", err)
		}
		page.HasMeta = true
	}
	return page, nil
}

func decodeRecord(payload json.RawMessage) (Record, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return r, nil
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
