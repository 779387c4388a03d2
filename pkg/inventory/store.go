package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/audit"
	"github.com/noah-network/noah/pkg/util"
)

// ListQuery selects one page of a list. Zero Page and Limit use the
// first page and the entity's default limit; empty filters are dropped.
type ListQuery struct {
	Page    int
	Limit   int
	Filters map[string]string
}

func (q ListQuery) values(defaultLimit int) url.Values {
	page, limit := q.Page, q.Limit
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	v := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	for k, f := range q.Filters {
		if f = strings.TrimSpace(f); f != "" {
			v.Set(k, f)
		}
	}
	return v
}

// Busy reports which operation kinds are in flight
type Busy struct {
	LoadingList bool `json:"loading_list"`
	LoadingOne  bool `json:"loading_one"`
	Saving      bool `json:"saving"`
	Removing    bool `json:"removing"`
}

// Any reports whether any operation is in flight
func (b Busy) Any() bool {
	return b.LoadingList || b.LoadingOne || b.Saving || b.Removing
}

type opKind int

const (
	opList opKind = iota
	opOne
	opSave
	opRemove
	numOpKinds
)

// State is a point-in-time copy of a store
type State struct {
	Entity  string   `json:"entity"`
	Items   []Record `json:"items"`
	Meta    Meta     `json:"meta"`
	Current Record   `json:"current"`
	Busy    Busy     `json:"busy"`
	Error   string   `json:"error,omitempty"`
	CanSync bool     `json:"can_sync"`
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithAuditLogger sends mutation events to l instead of the default logger
func WithAuditLogger(l audit.Logger) StoreOption {
	return func(s *Store) {
		s.auditor = l
	}
}

// WithActor sets the user and source recorded on audit events
func WithActor(user, source string) StoreOption {
	return func(s *Store) {
		s.user = user
		s.source = source
	}
}

// Store caches one entity's list, current record and operation status.
//
// Operations block until the server answers. Concurrent calls are not
// coalesced or queued; the last response to arrive wins. The mutex only
// guards field access.
type Store struct {
	entity  *Entity
	client  Doer
	auditor audit.Logger
	user    string
	source  string

	mu           sync.Mutex
	items        []Record
	meta         Meta
	current      Record
	inflight     [numOpKinds]int
	errMsg       string
	syncDisabled bool
}

// NewStore creates an empty store for e
func NewStore(e *Entity, client Doer, opts ...StoreOption) *Store {
	s := &Store{
		entity: e,
		client: client,
		items:  []Record{},
		meta:   DefaultMeta(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entity returns the store's entity definition
func (s *Store) Entity() *Entity {
	return s.entity
}

// Items returns a copy of the cached list in server order
func (s *Store) Items() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.items)
}

// Current returns a copy of the current record, nil when none
func (s *Store) Current() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Meta returns the pagination of the last successful list
func (s *Store) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Busy returns the in-flight flags
func (s *Store) Busy() Busy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}

func (s *Store) busyLocked() Busy {
	return Busy{
		LoadingList: s.inflight[opList] > 0,
		LoadingOne:  s.inflight[opOne] > 0,
		Saving:      s.inflight[opSave] > 0,
		Removing:    s.inflight[opRemove] > 0,
	}
}

// Err returns the message of the last failed operation, "" when the most
// recent operation has not failed.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// CanSync is false for entities without sync and, for the rest of the
// session, once every sync endpoint has been exhausted.
func (s *Store) CanSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entity.Supports(CanSync) && !s.syncDisabled
}

// Snapshot returns a copy of the whole store
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Entity:  s.entity.Name,
		Items:   cloneRecords(s.items),
		Meta:    s.meta,
		Current: s.current.Clone(),
		Busy:    s.busyLocked(),
		Error:   s.errMsg,
		CanSync: s.entity.Supports(CanSync) && !s.syncDisabled,
	}
}

// FetchList loads one page and replaces the cached list and meta with it
func (s *Store) FetchList(ctx context.Context, q ListQuery) (*Page, error) {
	done := s.begin(opList)
	defer done()

	resp, err := s.client.Do(ctx, http.MethodGet, s.entity.Base, api.Options{
		Params: q.values(s.entity.DefaultLimit),
	})
	if err != nil {
		return nil, s.fail(err, "failed to load "+s.entity.Title)
	}
	page, err := decodePage(resp)
	if err != nil {
		return nil, s.fail(err, "failed to load "+s.entity.Title)
	}

	s.applyPage(page)
	return page, nil
}

// FetchListDetail loads one page from the entity's joined detail list,
// trying each detail-list endpoint in order.
func (s *Store) FetchListDetail(ctx context.Context, q ListQuery) (*Page, error) {
	if err := s.require(CanListDetail, "list-detail"); err != nil {
		return nil, err
	}
	done := s.begin(opList)
	defer done()

	params := q.values(s.entity.DefaultLimit)
	candidates := make([]Candidate, len(s.entity.ListDetail))
	for i, p := range s.entity.ListDetail {
		candidates[i] = Candidate{Method: http.MethodGet, Path: p, Params: params}
	}

	prober := &Prober{Client: s.client, Skip: ReadSkip}
	res, err := prober.Run(ctx, candidates)
	if err != nil {
		return nil, s.fail(err, "failed to load "+s.entity.Title+" details")
	}
	page, err := decodePage(res.Response)
	if err != nil {
		return nil, s.fail(err, "failed to load "+s.entity.Title+" details")
	}

	s.applyPage(page)
	return page, nil
}

func (s *Store) applyPage(page *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = cloneRecords(page.Items)
	if page.HasMeta {
		s.meta = page.Meta
	}
}

// GetOne resolves a record through the entity's read endpoints, then the
// cached list, and makes it current.
func (s *Store) GetOne(ctx context.Context, id string, hints Hints) (Record, error) {
	if err := s.require(CanRead, "read"); err != nil {
		return nil, err
	}
	done := s.begin(opOne)
	defer done()

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, s.fail(fmt.Errorf("%s: %w", s.entity.Name, util.ErrInvalidID), "")
	}

	prober := &Prober{Client: s.client, Skip: ReadSkip, Accept: acceptRecord(id)}
	res, err := prober.Run(ctx, s.entity.Read(id, hints))

	var rec Record
	switch {
	case err == nil:
		if rec, err = decodeRecord(res.Payload); err != nil {
			return nil, s.fail(err, "failed to load "+s.entity.Title)
		}
	case errors.Is(err, ErrExhausted):
		s.mu.Lock()
		if i := indexOf(s.items, id); i >= 0 {
			rec = s.items[i].Clone()
		}
		s.mu.Unlock()
		if rec == nil {
			return nil, s.fail(util.NewNotFoundError(s.entity.Name, id), "")
		}
		s.log().Debugf("%s resolved from cached list", id)
	default:
		return nil, s.fail(err, "failed to load "+s.entity.Title)
	}

	s.mu.Lock()
	s.current = rec.Clone()
	s.mu.Unlock()
	return rec, nil
}

// Create submits a sanitized payload. A returned record is prepended to
// the cached list unless an item with the same id is already there. The
// record may be nil when the server returns none.
func (s *Store) Create(ctx context.Context, payload Record) (Record, error) {
	if err := s.require(CanCreate, "create"); err != nil {
		return nil, err
	}
	done := s.begin(opSave)
	defer done()

	body := s.entity.Sanitizer.Sanitize(payload)
	start := time.Now()
	resp, err := s.client.Do(ctx, http.MethodPost, s.entity.Base+"/create", api.Options{Body: body})
	if err != nil {
		s.audit(audit.OpCreate, nil, body, start, err)
		return nil, s.fail(err, "failed to create "+s.entity.Title)
	}

	var created Record
	if p := resp.Payload(); p != nil && p[0] == '{' {
		if created, err = decodeRecord(p); err != nil {
			s.audit(audit.OpCreate, nil, body, start, err)
			return nil, s.fail(err, "failed to create "+s.entity.Title)
		}
	}
	s.audit(audit.OpCreate, idsOf(created), body, start, nil)

	if created != nil {
		s.mu.Lock()
		if indexOf(s.items, created.ID()) < 0 {
			s.items = append([]Record{created.Clone()}, s.items...)
		}
		s.mu.Unlock()
	}
	return created, nil
}

// Update submits a sanitized payload with the entity's update verb and
// merges it over the cached copies. The server's record is not re-read, so
// fields the server derives on write show up only after the next list.
func (s *Store) Update(ctx context.Context, id string, payload Record) error {
	if err := s.require(CanUpdate, "update"); err != nil {
		return err
	}
	done := s.begin(opSave)
	defer done()

	id = strings.TrimSpace(id)
	if id == "" {
		return s.fail(fmt.Errorf("%s: %w", s.entity.Name, util.ErrInvalidID), "")
	}

	body := s.entity.Sanitizer.Sanitize(payload)
	path := s.entity.Base + "/update/" + url.PathEscape(id)
	start := time.Now()

	var err error
	switch s.entity.Update {
	case UpdatePost:
		_, err = s.client.Do(ctx, http.MethodPost, path, api.Options{Body: body})
	case UpdatePutFallbackPost:
		_, err = s.client.Do(ctx, http.MethodPut, path, api.Options{Body: body})
		if status, ok := api.StatusCode(err); ok && status == http.StatusMethodNotAllowed {
			s.log().Debug("PUT not allowed, retrying update as POST")
			_, err = s.client.Do(ctx, http.MethodPost, path, api.Options{Body: body})
		}
	default:
		_, err = s.client.Do(ctx, http.MethodPut, path, api.Options{Body: body})
	}
	s.audit(audit.OpUpdate, []string{id}, body, start, err)
	if err != nil {
		return s.fail(err, "failed to update "+s.entity.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.items, id); i >= 0 {
		merged := s.items[i].Merge(body)
		merged["uuid"] = id
		s.items[i] = merged
	}
	if s.current != nil && s.current.ID() == id {
		s.current = s.current.Merge(body)
	}
	return nil
}

// Remove deletes one record and drops it from the cache once the server
// confirms.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.require(CanDelete, "delete"); err != nil {
		return err
	}
	done := s.begin(opRemove)
	defer done()

	id = strings.TrimSpace(id)
	if id == "" {
		return s.fail(fmt.Errorf("%s: %w", s.entity.Name, util.ErrInvalidID), "")
	}

	start := time.Now()
	_, err := s.client.Do(ctx, http.MethodDelete, s.entity.Base+"/delete/"+url.PathEscape(id), api.Options{})
	s.audit(audit.OpDelete, []string{id}, nil, start, err)
	if err != nil {
		return s.fail(err, "failed to delete "+s.entity.Title)
	}

	s.drop(map[string]bool{id: true})
	return nil
}

// RemoveMany deletes ids in one bulk request. The call is all or nothing
// from the store's point of view.
func (s *Store) RemoveMany(ctx context.Context, ids []string) error {
	if err := s.require(CanDeleteMany, "delete-many"); err != nil {
		return err
	}
	done := s.begin(opRemove)
	defer done()

	set := make(map[string]bool, len(ids))
	uuids := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !set[id] {
			set[id] = true
			uuids = append(uuids, id)
		}
	}
	if len(uuids) == 0 {
		return s.fail(fmt.Errorf("%s: no ids given: %w", s.entity.Name, util.ErrInvalidID), "")
	}

	start := time.Now()
	_, err := s.client.Do(ctx, http.MethodDelete, s.entity.Base+"/deletes", api.Options{
		Body: map[string]any{"uuids": uuids},
	})
	s.audit(audit.OpDeleteMany, uuids, nil, start, err)
	if err != nil {
		return s.fail(err, "failed to delete "+s.entity.Title+" records")
	}

	s.drop(set)
	return nil
}

func (s *Store) drop(ids map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]Record, 0, len(s.items))
	for _, it := range s.items {
		if !ids[it.ID()] {
			kept = append(kept, it)
		}
	}
	s.items = kept
	if s.current != nil && ids[s.current.ID()] {
		s.current = nil
	}
}

// Sync asks the server to synchronize the entity, optionally for one
// record. When every endpoint is skipped, sync is disabled for the rest of
// the session and Sync returns (nil, nil); later calls return (nil, nil)
// without a request.
func (s *Store) Sync(ctx context.Context, hint string) (Record, error) {
	if err := s.require(CanSync, "sync"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	disabled := s.syncDisabled
	if disabled {
		s.errMsg = ""
	}
	s.mu.Unlock()
	if disabled {
		return nil, nil
	}

	done := s.begin(opSave)
	defer done()

	hint = strings.TrimSpace(hint)
	var ids []string
	if hint != "" {
		ids = []string{hint}
	}

	start := time.Now()
	prober := &Prober{Client: s.client, Skip: SyncSkip}
	res, err := prober.Run(ctx, s.entity.Sync(hint))
	if errors.Is(err, ErrExhausted) {
		s.mu.Lock()
		s.syncDisabled = true
		s.mu.Unlock()
		s.audit(audit.OpSync, ids, nil, start, err)
		s.log().Warn("no sync endpoint available, sync disabled for this session")
		return nil, nil
	}
	s.audit(audit.OpSync, ids, nil, start, err)
	if err != nil {
		return nil, s.fail(err, "failed to sync "+s.entity.Title)
	}
	return syncResult(res.Payload), nil
}

// SyncParent synchronizes the entity's records under a parent resource
// (OLT cards under an OLT). Unlike Sync it never disables itself;
// exhaustion fails with ErrSyncUnavailable.
func (s *Store) SyncParent(ctx context.Context, parent string) (Record, error) {
	if err := s.require(CanSyncParent, "sync-parent"); err != nil {
		return nil, err
	}
	done := s.begin(opSave)
	defer done()

	parent = strings.TrimSpace(parent)
	if parent == "" {
		return nil, s.fail(fmt.Errorf("%s: parent: %w", s.entity.Name, util.ErrInvalidID), "")
	}

	start := time.Now()
	prober := &Prober{Client: s.client, Skip: SyncParentSkip}
	res, err := prober.Run(ctx, s.entity.SyncParent(parent))
	if errors.Is(err, ErrExhausted) {
		err = fmt.Errorf("%w: %w", util.ErrSyncUnavailable, err)
	}
	s.audit(audit.OpSyncParent, []string{parent}, nil, start, err)
	if err != nil {
		return nil, s.fail(err, "failed to sync "+s.entity.Title)
	}
	return syncResult(res.Payload), nil
}

func syncResult(payload json.RawMessage) Record {
	if payload == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return Record(m)
	}
	return Record{"data": v}
}

func (s *Store) require(c Capability, op string) error {
	if s.entity.Supports(c) {
		return nil
	}
	return util.NewUnsupportedError(s.entity.Name, op)
}

// begin marks an operation kind busy and clears the last error. The
// returned func marks it idle again.
func (s *Store) begin(kind opKind) func() {
	s.mu.Lock()
	s.inflight[kind]++
	s.errMsg = ""
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inflight[kind]--
		s.mu.Unlock()
	}
}

// fail records a readable message for err and returns err unchanged
func (s *Store) fail(err error, fallback string) error {
	msg := api.Message(err, fallback)
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	s.log().Debugf("operation failed: %v", err)
	return err
}

func (s *Store) audit(op string, ids []string, body Record, start time.Time, err error) {
	ev := audit.NewEvent(s.user, s.entity.Name, op).
		WithRecords(ids...).
		WithSource(s.source).
		WithDuration(time.Since(start)).
		WithResult(err)
	if body != nil {
		ev.WithFields(body.Keys())
	}

	var logErr error
	if s.auditor != nil {
		logErr = s.auditor.Log(ev)
	} else {
		logErr = audit.Log(ev)
	}
	if logErr != nil {
		s.log().Warnf("audit: %v", logErr)
	}
}

func (s *Store) log() *logrus.Entry {
	return util.WithEntity(s.entity.Name)
}

func idsOf(r Record) []string {
	if id := r.ID(); id != "" {
		return []string{id}
	}
	return nil
}
