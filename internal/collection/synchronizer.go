// Package collection keeps an ordered in-memory copy of a remote resource
// list consistent with the server across create, update and delete.
package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"domu/internal/api"
	"domu/internal/core"
	"domu/internal/log"
)

var (
	// ErrNotConfirmed is returned by Remove when the user declines.
	ErrNotConfirmed = errors.New("deletion not confirmed")
	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("collection closed")
)

// Requester performs API calls. *api.Client implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any, expect ...int) (int, error)
}

// Resource names a REST collection endpoint.
type Resource struct {
	Name string
	Path string
}

var (
	Expenses   = Resource{Name: "expenses", Path: "expenses/"}
	Categories = Resource{Name: "categories", Path: "categories/"}
)

func (r Resource) item(id int64) string {
	return r.Path + strconv.FormatInt(id, 10) + "/"
}

// Confirmer asks the user to approve an irreversible operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm approves without asking, for non-interactive callers that
// already obtained consent.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

type ChangeKind int

const (
	Replaced ChangeKind = iota
	Created
	Updated
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "replaced"
	}
}

// Change describes one applied mutation. Items is a copy of the collection
// after it.
type Change[T core.Record] struct {
	Resource string
	Kind     ChangeKind
	ID       int64
	Record   T
	Items    []T
}

// Synchronizer owns the local collection of one resource. T is the record
// type, F the field set sent on create and update.
//
// Operations are serialized: a mutation holds the collection until its
// response has been applied, so responses apply in request order.
type Synchronizer[T core.Record, F any] struct {
	resource Resource
	client   Requester
	logger   *log.Logger

	op sync.Mutex

	mu     sync.RWMutex
	items  []T
	closed bool

	subsMu sync.Mutex
	subs   map[int]func(Change[T])
	nextID int
}

func New[T core.Record, F any](client Requester, resource Resource, logger *log.Logger) *Synchronizer[T, F] {
	if logger == nil {
		logger = log.Discard()
	}
	return &Synchronizer[T, F]{
		resource: resource,
		client:   client,
		logger:   logger.WithComponent(log.ComponentCollection).With(log.FieldResource, resource.Name),
		subs:     make(map[int]func(Change[T])),
	}
}

type envelope[T any] struct {
	Results *[]T `json:"results"`
}

// FetchAll replaces the local collection with the server listing. Both a
// bare JSON list and a paginated {"results": [...]} envelope are accepted;
// only the first page is used.
func (s *Synchronizer[T, F]) FetchAll(ctx context.Context) ([]T, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.op.Unlock()

	var raw json.RawMessage
	if _, err := s.client.Do(ctx, http.MethodGet, s.resource.Path, nil, &raw, http.StatusOK); err != nil {
		s.fail(ctx, log.OpFetch, 0, err)
		return nil, err
	}
	items, err := decodeListing[T](raw)
	if err != nil {
		err = malformed(http.MethodGet, s.resource.Path, http.StatusOK, err)
		s.fail(ctx, log.OpFetch, 0, err)
		return nil, err
	}

	if !s.apply(Change[T]{Kind: Replaced}, func([]T) []T { return items }) {
		return items, nil
	}
	s.logger.DebugContext(ctx, "Collection fetched", log.FieldOperation, log.OpFetch, log.FieldCount, len(items))
	return slices.Clone(items), nil
}

func decodeListing[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty listing")
	}

	var items []T
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
	case '{':
		var env envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if env.Results == nil {
			return nil, errors.New("envelope without results")
		}
		items = *env.Results
	default:
		return nil, errors.New("listing is neither a list nor an envelope")
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Create sends fields to the server and prepends the returned record. On
// failure the collection is left unchanged.
func (s *Synchronizer[T, F]) Create(ctx context.Context, fields F) (T, error) {
	var created T
	if err := s.begin(); err != nil {
		return created, err
	}
	defer s.op.Unlock()

	status, err := s.client.Do(ctx, http.MethodPost, s.resource.Path, fields, &created, http.StatusCreated, http.StatusOK)
	if err == nil && created.RecordID() == 0 {
		err = malformed(http.MethodPost, s.resource.Path, status, errors.New("created record has no id"))
	}
	if err != nil {
		s.fail(ctx, log.OpCreate, 0, err)
		var zero T
		return zero, err
	}

	id := created.RecordID()
	s.apply(Change[T]{Kind: Created, ID: id, Record: created}, func(items []T) []T {
		items = slices.DeleteFunc(items, func(r T) bool { return r.RecordID() == id })
		return append([]T{created}, items...)
	})
	s.logger.InfoContext(ctx, "Record created", log.NewFields().WithOperation(log.OpCreate).WithRecord(s.resource.Name, id).ToSlice()...)
	return created, nil
}

// Update replaces record id with fields on the server and swaps the
// returned record into the same position locally. A record missing from
// the local collection is not added.
func (s *Synchronizer[T, F]) Update(ctx context.Context, id int64, fields F) (T, error) {
	var updated T
	if err := s.begin(); err != nil {
		return updated, err
	}
	defer s.op.Unlock()

	status, err := s.client.Do(ctx, http.MethodPut, s.resource.item(id), fields, &updated, http.StatusOK)
	if err == nil && updated.RecordID() != id {
		err = malformed(http.MethodPut, s.resource.item(id), status,
			fmt.Errorf("updated record has id %d, want %d", updated.RecordID(), id))
	}
	if err != nil {
		s.fail(ctx, log.OpUpdate, id, err)
		var zero T
		return zero, err
	}

	s.apply(Change[T]{Kind: Updated, ID: id, Record: updated}, func(items []T) []T {
		if i := slices.IndexFunc(items, func(r T) bool { return r.RecordID() == id }); i >= 0 {
			items[i] = updated
		}
		return items
	})
	s.logger.InfoContext(ctx, "Record updated", log.NewFields().WithOperation(log.OpUpdate).WithRecord(s.resource.Name, id).ToSlice()...)
	return updated, nil
}

// Remove deletes record id after confirm approves. Only a 204 response
// drops the local record; any other outcome leaves it in place.
func (s *Synchronizer[T, F]) Remove(ctx context.Context, id int64, confirm Confirmer) error {
	if confirm == nil {
		return ErrNotConfirmed
	}
	ok, err := confirm.Confirm(ctx, fmt.Sprintf("Delete %s %d? This cannot be undone.", singular(s.resource.Name), id))
	if err != nil {
		return fmt.Errorf("confirm deletion: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}

	if err := s.begin(); err != nil {
		return err
	}
	defer s.op.Unlock()

	if _, err := s.client.Do(ctx, http.MethodDelete, s.resource.item(id), nil, nil, http.StatusNoContent); err != nil {
		s.fail(ctx, log.OpDelete, id, err)
		return err
	}

	s.apply(Change[T]{Kind: Removed, ID: id}, func(items []T) []T {
		return slices.DeleteFunc(items, func(r T) bool { return r.RecordID() == id })
	})
	s.logger.InfoContext(ctx, "Record deleted", log.NewFields().WithOperation(log.OpDelete).WithRecord(s.resource.Name, id).ToSlice()...)
	return nil
}

// Items returns a copy of the local collection.
func (s *Synchronizer[T, F]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Synchronizer[T, F]) Get(id int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.items {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

func (s *Synchronizer[T, F]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Subscribe registers fn for every applied change.
func (s *Synchronizer[T, F]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Close detaches the synchronizer: results of requests still in flight
// are discarded and later operations fail with ErrClosed.
func (s *Synchronizer[T, F]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subsMu.Lock()
	clear(s.subs)
	s.subsMu.Unlock()
}

func (s *Synchronizer[T, F]) begin() error {
	s.op.Lock()
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		s.op.Unlock()
		return ErrClosed
	}
	return nil
}

// apply runs mutate on the collection unless the synchronizer was closed
// meanwhile, and notifies subscribers. It reports whether it applied.
func (s *Synchronizer[T, F]) apply(change Change[T], mutate func([]T) []T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Discarding late result of closed collection", log.FieldOperation, change.Kind.String())
		return false
	}
	s.items = mutate(s.items)
	change.Resource = s.resource.Name
	change.Items = slices.Clone(s.items)
	s.mu.Unlock()

	s.subsMu.Lock()
	subs := make([]func(Change[T]), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
	return true
}

func (s *Synchronizer[T, F]) fail(ctx context.Context, op string, id int64, err error) {
	fields := log.NewFields().WithOperation(op).WithRecord(s.resource.Name, id).WithError(err)
	fields[log.FieldErrorKind] = string(api.KindOf(err))
	s.logger.WarnContext(ctx, "Collection operation failed", fields.ToSlice()...)
}

// malformed reports a 2xx response whose body cannot be applied.
func malformed(method, path string, status int, err error) error {
	return &api.Error{
		Kind:    api.KindRequestFailed,
		Op:      strings.ToLower(method) + " " + path,
		Status:  status,
		Payload: api.Payload{Kind: api.PayloadFreeform, Text: "malformed server response"},
		Err:     err,
	}
}

func singular(name string) string {
	switch name {
	case "categories":
		return "category"
	case "expenses":
		return "expense"
	}
	return name
}
