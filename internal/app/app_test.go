package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domu/internal/amqp"
	"domu/internal/api"
	"domu/internal/collection"
	"domu/internal/core"
	"domu/internal/sheets/memory"
	"domu/internal/storage"
)

const (
	expensesBody   = `[{"id":1,"description":"Water","amount":"30.00","date":"2025-01-10","category":null},{"id":2,"description":"Lift","amount":"800.00","date":"2025-01-12","category":4},{"id":5,"description":"Old","amount":"1.00","date":"2025-01-01","category":99}]`
	categoriesBody = `[{"id":4,"name":"Maintenance"}]`
	homeBody       = `{"summary_period_label":"January 2025","current_month_total":"831.00","previous_month_total":null,"top_category_current_month":null,"recent_expenses":[]}`
	seriesBody     = `{"labels":["Maintenance","uncategorized"],"totals":["800.00","31.00"]}`
)

type fakeAPI struct {
	homeHits atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/token-auth/" {
		var req struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "ana" && req.Password == "secret" {
			_, _ = io.WriteString(w, `{"token":"abc"}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"non_field_errors":["Unable to log in with provided credentials."]}`)
		return
	}
	if r.Header.Get("Authorization") != "Token abc" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Invalid token."}`)
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /api/expenses/":
		_, _ = io.WriteString(w, expensesBody)
	case "GET /api/categories/":
		_, _ = io.WriteString(w, categoriesBody)
	case "GET /api/homepage-summary/":
		f.homeHits.Add(1)
		_, _ = io.WriteString(w, homeBody)
	case "GET /api/expenses/summary/":
		_, _ = io.WriteString(w, seriesBody)
	case "POST /api/expenses/":
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":7,"description":"Soap","amount":"4.50","date":"2025-02-01","category":4}`)
	case "DELETE /api/expenses/1/":
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

type fakeBus struct {
	mu        sync.Mutex
	published []*amqp.ChangeEvent
	inbound   []*amqp.ChangeEvent
}

func (b *fakeBus) PublishChange(_ context.Context, ev *amqp.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
	return nil
}

func (b *fakeBus) Consume(_ context.Context, handler func(*amqp.ChangeEvent) error) error {
	for _, ev := range b.inbound {
		if err := handler(ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBus) Published() []*amqp.ChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*amqp.ChangeEvent(nil), b.published...)
}

type fixture struct {
	app      *App
	api      *fakeAPI
	store    *storage.MemoryStore
	exporter *memory.Store
	bus      *fakeBus
}

func newFixture(t *testing.T, token string, withBus bool) *fixture {
	t.Helper()
	f := &fixture{
		api:      &fakeAPI{},
		store:    storage.NewMemoryStore(token),
		exporter: memory.New(),
	}
	srv := httptest.NewServer(f.api)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL:     srv.URL + "/api",
		Timeout:     5 * time.Second,
		SummaryTTL:  time.Minute,
		Credentials: f.store,
		Exporter:    f.exporter,
	}
	if withBus {
		f.bus = &fakeBus{}
		opts.Events = f.bus
	}

	a, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	f.app = a
	return f
}

func TestNew_RequiresCredentialStore(t *testing.T) {
	_, err := New(context.Background(), Options{BaseURL: "http://localhost/api"})
	assert.ErrorContains(t, err, "credential store is required")
}

func TestLoginUnlocksProtectedViews(t *testing.T) {
	f := newFixture(t, "", false)

	err := f.app.Authorize("/categories")
	assert.ErrorContains(t, err, "not logged in")

	assert.False(t, f.app.Session.Login(context.Background(), "ana", "wrong"))
	assert.ErrorContains(t, f.app.Authorize("/categories"), "Unable to log in")

	require.True(t, f.app.Session.Login(context.Background(), "ana", "secret"))
	assert.NoError(t, f.app.Authorize("/categories"))
	assert.Equal(t, "/categories", f.app.Guard.ResumeTarget())

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", stored)
}

func TestExpiredCredentialEndsSession(t *testing.T) {
	f := newFixture(t, "stale", false)
	require.NoError(t, f.app.Authorize("/expenses"))

	_, err := f.app.ListExpenses(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.MsgSessionExpired, api.UserMessage(err))

	assert.False(t, f.app.Session.IsAuthenticated())
	_, err = f.store.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoCredential)
	assert.ErrorContains(t, f.app.Authorize("/expenses"), api.MsgSessionExpired)
}

func TestLoadDashboard(t *testing.T) {
	f := newFixture(t, "abc", false)

	d, err := f.app.LoadDashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "January 2025", d.Home.PeriodLabel)
	require.Len(t, d.Series, 2)
	assert.Equal(t, "Maintenance", d.Series[0].Name)
	assert.Equal(t, int64(80000), d.Series[0].Total.Cents)

	require.Len(t, d.Expenses, 3)
	assert.Equal(t, core.Uncategorized, d.Expenses[0].CategoryName)
	assert.Equal(t, "Maintenance", d.Expenses[1].CategoryName)
	assert.Equal(t, core.Uncategorized, d.Expenses[2].CategoryName, "dangling reference")
	assert.Len(t, d.Categories, 1)
}

func TestMutationsPublishAndInvalidate(t *testing.T) {
	f := newFixture(t, "abc", true)
	ctx := context.Background()

	_, err := f.app.Summary.Home(ctx)
	require.NoError(t, err)
	_, err = f.app.Summary.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.api.homeHits.Load(), "second read is cached")

	_, err = f.app.Expenses.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.bus.Published(), "listings are not announced")

	fc := f.app.ExpenseForm()
	fc.SetAll(map[string]string{
		"description": "Soap",
		"amount":      "4.50",
		"date":        "2025-02-01",
		"category":    "4",
	})
	created, err := fc.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, int64(7), f.app.Expenses.Items()[0].ID)

	require.NoError(t, f.app.Expenses.Remove(ctx, 1, collection.AlwaysConfirm))

	require.Eventually(t, func() bool { return len(f.bus.Published()) == 2 }, time.Second, 10*time.Millisecond)
	events := f.bus.Published()
	assert.Equal(t, "expenses.created", events[0].RoutingKey())
	assert.Equal(t, int64(7), events[0].ID)
	assert.Equal(t, "expenses.removed", events[1].RoutingKey())

	_, err = f.app.Summary.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.api.homeHits.Load(), "mutation invalidated the cache")
}

type stalledBus struct {
	fakeBus
	release chan struct{}
}

func (b *stalledBus) PublishChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	<-b.release
	return b.fakeBus.PublishChange(ctx, ev)
}

func TestSlowBrokerDoesNotStallMutations(t *testing.T) {
	bus := &stalledBus{release: make(chan struct{})}
	srv := httptest.NewServer(&fakeAPI{})
	t.Cleanup(srv.Close)
	a, err := New(context.Background(), Options{
		BaseURL:     srv.URL + "/api",
		Credentials: storage.NewMemoryStore("abc"),
		Events:      bus,
	})
	require.NoError(t, err)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		fields := core.ExpenseFields{Description: "Soap"}
		if _, err := a.Expenses.Create(ctx, fields); err != nil {
			done <- err
			return
		}
		_, err := a.Expenses.Create(ctx, fields)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mutations blocked on the event bus")
	}
	assert.Empty(t, bus.Published())

	close(bus.release)
	a.Close()
	assert.Len(t, bus.Published(), 2, "queued events are sent on close")
}

func TestExport(t *testing.T) {
	f := newFixture(t, "abc", false)

	ref, n, err := f.app.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "mem:1:A1:E4", ref)

	rows := f.exporter.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, int64(5), rows[0].ID, "rows are sorted by date")
	assert.Equal(t, "Maintenance", rows[2].Category)
}

func TestWatch(t *testing.T) {
	f := newFixture(t, "abc", false)
	err := f.app.Watch(context.Background(), 0, nil)
	assert.ErrorIs(t, err, ErrEventsDisabled)

	f = newFixture(t, "abc", true)
	f.bus.inbound = []*amqp.ChangeEvent{
		amqp.NewChangeEvent("categories", "created", 4),
		amqp.NewChangeEvent("invoices", "created", 1),
	}

	var seen []string
	err = f.app.Watch(context.Background(), 0, func(ev *amqp.ChangeEvent) {
		seen = append(seen, ev.RoutingKey())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"categories.created"}, seen)
	assert.Equal(t, 1, f.app.Categories.Len(), "collection refreshed")
	assert.Empty(t, f.bus.Published(), "refreshes are not re-announced")
}
