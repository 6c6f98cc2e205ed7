// Package form drives a single draft from user input to a create or update
// call, with local validation before anything reaches the server.
package form

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"domu/internal/api"
	"domu/internal/core"
	"domu/internal/log"
)

// ErrBusy is returned by Submit while a previous submission is in flight.
var ErrBusy = errors.New("submission already in progress")

// ValidationError is a local, pre-network problem with one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type Phase int

const (
	Editing Phase = iota
	Submitting
	Success
	Failed
)

func (p Phase) String() string {
	switch p {
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "editing"
	}
}

// Mode selects create or update. The zero Mode creates.
type Mode struct {
	ID int64
}

func CreateMode() Mode { return Mode{} }

func EditMode(id int64) Mode { return Mode{ID: id} }

func (m Mode) IsEdit() bool { return m.ID != 0 }

func (m Mode) String() string {
	if m.IsEdit() {
		return fmt.Sprintf("edit(%d)", m.ID)
	}
	return "create"
}

// Draft is a snapshot of the form.
type Draft struct {
	Mode   Mode
	Values map[string]string
	Phase  Phase
	Err    string
}

// Binding maps between form values, the field set sent to the server and
// the record the server returns.
type Binding[T core.Record, F any] interface {
	// Blank returns the initial values of a create draft.
	Blank() map[string]string
	// Values renders rec for an edit draft.
	Values(rec T) map[string]string
	// Parse validates values and builds the field set. Problems are
	// reported as *ValidationError.
	Parse(values map[string]string) (F, error)
}

// Store is where a submission goes. *collection.Synchronizer implements it.
type Store[T core.Record, F any] interface {
	Create(ctx context.Context, fields F) (T, error)
	Update(ctx context.Context, id int64, fields F) (T, error)
}

type Controller[T core.Record, F any] struct {
	store   Store[T, F]
	binding Binding[T, F]
	logger  *log.Logger

	mu     sync.Mutex
	mode   Mode
	values map[string]string
	phase  Phase
	err    string

	observer func(Draft)
}

// New returns a controller holding a blank create draft.
func New[T core.Record, F any](store Store[T, F], binding Binding[T, F], logger *log.Logger) *Controller[T, F] {
	if logger == nil {
		logger = log.Discard()
	}
	return &Controller[T, F]{
		store:   store,
		binding: binding,
		logger:  logger.WithComponent(log.ComponentForm),
		values:  binding.Blank(),
	}
}

// Edit switches the draft to updating rec, discarding current input.
func (c *Controller[T, F]) Edit(rec T) {
	c.mu.Lock()
	c.mode = EditMode(rec.RecordID())
	c.values = c.binding.Values(rec)
	c.phase = Editing
	c.err = ""
	c.mu.Unlock()
	c.emit()
}

// Set changes one field of the draft.
func (c *Controller[T, F]) Set(field, value string) {
	c.mu.Lock()
	c.values[field] = value
	c.mu.Unlock()
}

// SetAll copies values into the draft.
func (c *Controller[T, F]) SetAll(values map[string]string) {
	c.mu.Lock()
	maps.Copy(c.values, values)
	c.mu.Unlock()
}

// OnChange registers fn to observe every phase transition.
func (c *Controller[T, F]) OnChange(fn func(Draft)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *Controller[T, F]) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller[T, F]) snapshot() Draft {
	return Draft{Mode: c.mode, Values: maps.Clone(c.values), Phase: c.phase, Err: c.err}
}

// Submit validates the draft and, when valid, sends it with exactly one
// create or update call. Validation failures never reach the server. On
// success the draft resets; on failure the input is retained together with
// a user-facing message. Submissions are never retried.
func (c *Controller[T, F]) Submit(ctx context.Context) (T, error) {
	var zero T

	c.mu.Lock()
	if c.phase == Submitting {
		c.mu.Unlock()
		return zero, ErrBusy
	}
	fields, err := c.binding.Parse(maps.Clone(c.values))
	if err != nil {
		c.err = err.Error()
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "Draft rejected locally", log.FieldOperation, log.OpValidate, log.FieldError, err)
		c.emit()
		return zero, err
	}
	mode := c.mode
	c.phase = Submitting
	c.err = ""
	c.mu.Unlock()
	c.emit()

	var rec T
	if mode.IsEdit() {
		rec, err = c.store.Update(ctx, mode.ID, fields)
	} else {
		rec, err = c.store.Create(ctx, fields)
	}

	if err != nil {
		c.transition(Failed, func() { c.err = failureMessage(err) })
		c.logger.WarnContext(ctx, "Submission failed", log.FieldOperation, mode.String(), log.FieldError, err)
		return zero, err
	}

	c.transition(Success, func() {
		if mode.IsEdit() {
			c.values = c.binding.Values(rec)
		} else {
			c.values = c.binding.Blank()
		}
	})
	return rec, nil
}

// transition applies settle in the terminal phase, then lands back in
// Editing. Observers see both steps.
func (c *Controller[T, F]) transition(terminal Phase, settle func()) {
	c.mu.Lock()
	settle()
	c.phase = terminal
	c.mu.Unlock()
	c.emit()

	c.mu.Lock()
	c.phase = Editing
	c.mu.Unlock()
	c.emit()
}

func (c *Controller[T, F]) emit() {
	c.mu.Lock()
	fn := c.observer
	d := c.snapshot()
	c.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

func failureMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return api.MsgRequestFailed
}
