// Package app wires the session, the access guard, the collections and the
// read-only aggregates around one API client.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"domu/internal/amqp"
	"domu/internal/api"
	"domu/internal/cache"
	"domu/internal/collection"
	"domu/internal/core"
	"domu/internal/form"
	"domu/internal/guard"
	"domu/internal/log"
	"domu/internal/session"
	"domu/internal/sheets"
	"domu/internal/summary"
)

// ErrEventsDisabled is returned by Watch when no event bus is configured.
var ErrEventsDisabled = errors.New("change events are not configured")

const publishTimeout = 5 * time.Second

// EventBus carries change events between domu instances. *amqp.Client
// implements it.
type EventBus interface {
	PublishChange(ctx context.Context, ev *amqp.ChangeEvent) error
	Consume(ctx context.Context, handler func(*amqp.ChangeEvent) error) error
}

type (
	ExpenseCollection  = collection.Synchronizer[core.Expense, core.ExpenseFields]
	CategoryCollection = collection.Synchronizer[core.Category, core.CategoryFields]
)

// Options configure New. Credentials is required; everything else has a
// usable zero value.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	SummaryTTL  time.Duration
	Credentials session.CredentialStore
	Exporter    sheets.Exporter
	Events      EventBus
	Logger      *log.Logger
	// Transport replaces the default HTTP transport.
	Transport http.RoundTripper
}

type App struct {
	Client     *api.Client
	Session    *session.Manager
	Guard      *guard.Guard
	Expenses   *ExpenseCollection
	Categories *CategoryCollection
	Summary    *summary.Service
	Janitor    *cache.Janitor

	exporter  sheets.Exporter
	events    EventBus
	publisher *publisher
	logger    *log.Logger
	unsubs    []func()
}

// credentialRef lets the API client read the credential of a session
// manager that is built after it.
type credentialRef struct {
	session atomic.Pointer[session.Manager]
}

func (r *credentialRef) Credential() string {
	if m := r.session.Load(); m != nil {
		return m.Credential()
	}
	return ""
}

// New builds the application and rehydrates the session from the
// credential store.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	clientOpts := []api.Option{api.WithLogger(logger)}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, api.WithTimeout(opts.Timeout))
	}
	if opts.Transport != nil {
		clientOpts = append(clientOpts, api.WithTransport(opts.Transport))
	}

	ref := &credentialRef{}
	client, err := api.NewClient(opts.BaseURL, ref, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	sess, err := session.New(ctx, opts.Credentials, client, logger)
	if err != nil {
		return nil, err
	}
	ref.session.Store(sess)
	client.OnAuthExpired(sess.Expire)

	a := &App{
		Client:     client,
		Session:    sess,
		Guard:      guard.New(sess, logger),
		Expenses:   collection.New[core.Expense, core.ExpenseFields](client, collection.Expenses, logger),
		Categories: collection.New[core.Category, core.CategoryFields](client, collection.Categories, logger),
		Summary:    summary.New(client, opts.SummaryTTL, logger),
		Janitor:    cache.NewJanitor(logger),
		exporter:   opts.Exporter,
		events:     opts.Events,
		logger:     logger.WithComponent(log.ComponentApp),
	}
	a.Summary.Register(a.Janitor)
	if a.events != nil {
		a.publisher = newPublisher(a.events, a.logger)
	}

	a.unsubs = append(a.unsubs,
		a.Expenses.Subscribe(func(c collection.Change[core.Expense]) {
			a.onChange(c.Resource, c.Kind, c.ID)
		}),
		a.Categories.Subscribe(func(c collection.Change[core.Category]) {
			a.onChange(c.Resource, c.Kind, c.ID)
		}),
		sess.Subscribe(func(st session.State) {
			if !st.Authenticated && !st.Pending {
				a.Summary.Invalidate()
			}
		}),
	)
	return a, nil
}

// onChange reacts to a local mutation: aggregates become stale and other
// instances are told about it in the background. Listings are not
// announced.
func (a *App) onChange(resource string, kind collection.ChangeKind, id int64) {
	if kind == collection.Replaced {
		return
	}
	a.Summary.Invalidate()
	if a.publisher != nil {
		a.publisher.enqueue(amqp.NewChangeEvent(resource, kind.String(), id))
	}
}

// Authorize evaluates target against the guard. On denial the error tells
// the user to log in.
func (a *App) Authorize(target string) error {
	d := a.Guard.Evaluate(target)
	if d.Allow {
		return nil
	}
	msg := "not logged in: run \"domu login\" first"
	if last := a.Session.Snapshot().LastError; last != "" {
		msg = last + ": run \"domu login\" again"
	}
	return errors.New(msg)
}

// ExpenseForm returns a form controller submitting to the expense
// collection.
func (a *App) ExpenseForm() *form.Controller[core.Expense, core.ExpenseFields] {
	return form.New[core.Expense, core.ExpenseFields](a.Expenses, form.ExpenseBinding{}, a.logger)
}

// CategoryForm returns a form controller submitting to the category
// collection.
func (a *App) CategoryForm() *form.Controller[core.Category, core.CategoryFields] {
	return form.New[core.Category, core.CategoryFields](a.Categories, form.CategoryBinding{}, a.logger)
}

// Close detaches observers, discards late results and waits briefly for
// queued change events to be published. It does not close the credential
// store or the event bus, which the caller owns.
func (a *App) Close() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.Guard.Close()
	a.Expenses.Close()
	a.Categories.Close()
	if a.publisher != nil {
		a.publisher.close(drainTimeout)
	}
}
