// Package audit records inventory mutations as JSON-lines events.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one attempted mutation against the inventory API
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Entity    string        `json:"entity"`
	Operation string        `json:"operation"`
	RecordIDs []string      `json:"record_ids,omitempty"`
	Fields    []string      `json:"fields,omitempty"` // payload keys submitted
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	ClientIP  string        `json:"client_ip,omitempty"`
	Source    string        `json:"source,omitempty"` // cli, shell or gateway
}

// Operation names used by the entity stores
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpDeleteMany = "delete-many"
	OpSync       = "sync"
	OpSyncParent = "sync-parent"
	OpLogin      = "login"
	OpLogout     = "logout"
)

// Filter defines criteria for querying audit events
type Filter struct {
	Entity      string
	User        string
	Operation   string
	RecordID    string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, entity, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Entity:    entity,
		Operation: operation,
	}
}

// WithRecords sets the affected record ids
func (e *Event) WithRecords(ids ...string) *Event {
	e.RecordIDs = append([]string(nil), ids...)
	return e
}

// WithFields sets the submitted payload keys
func (e *Event) WithFields(fields []string) *Event {
	e.Fields = fields
	return e
}

// WithSource tags where the mutation came from
func (e *Event) WithSource(source string) *Event {
	e.Source = source
	return e
}

// WithClientIP sets the remote address for gateway requests
func (e *Event) WithClientIP(ip string) *Event {
	e.ClientIP = ip
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithResult marks success or failure from err
func (e *Event) WithResult(err error) *Event {
	if err != nil {
		return e.WithError(err)
	}
	return e.WithSuccess()
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func (e *Event) hasRecord(id string) bool {
	for _, r := range e.RecordIDs {
		if r == id {
			return true
		}
	}
	return false
}
