package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domu/internal/api"
	"domu/internal/storage"
)

type fakeAuth struct {
	token string
	err   error
}

func (f fakeAuth) Login(context.Context, string, string) (string, error) { return f.token, f.err }

type failingStore struct{ *storage.MemoryStore }

func (failingStore) Save(context.Context, string) error { return errors.New("disk full") }

func newManager(t *testing.T, store CredentialStore, auth Authenticator) *Manager {
	t.Helper()
	m, err := New(context.Background(), store, auth, nil)
	require.NoError(t, err)
	return m
}

func TestRehydration(t *testing.T) {
	m := newManager(t, storage.NewMemoryStore("persisted"), fakeAuth{})
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "persisted", m.Credential())

	empty := newManager(t, storage.NewMemoryStore(""), fakeAuth{})
	assert.False(t, empty.IsAuthenticated())
}

func TestLoginSuccessPersistsCredential(t *testing.T) {
	store := storage.NewMemoryStore("")
	m := newManager(t, store, fakeAuth{token: "tok"})

	assert.True(t, m.Login(context.Background(), "ana", "pw"))

	st := m.Snapshot()
	assert.True(t, st.Authenticated)
	assert.False(t, st.Pending)
	assert.Empty(t, st.LastError)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", stored)
}

func TestLoginRejectedAgainstAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"non_field_errors":["invalid"]}`)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore("old-token")
	var m *Manager
	client, err := api.NewClient(srv.URL+"/api", credentialFunc(func() string { return m.Credential() }))
	require.NoError(t, err)
	m = newManager(t, store, client)

	ok := m.Login(context.Background(), "ana", "wrong")

	assert.False(t, ok)
	st := m.Snapshot()
	assert.False(t, st.Authenticated)
	assert.False(t, st.Pending)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, "invalid", st.LastError)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoCredential, "a failed login clears the stored credential")
}

func TestLoginFallbackMessages(t *testing.T) {
	unstructured := newManager(t, storage.NewMemoryStore(""), fakeAuth{err: &api.Error{Kind: api.KindAuthRejected, Status: 500, Payload: api.DecodePayload([]byte("<html>"))}})
	assert.False(t, unstructured.Login(context.Background(), "ana", "pw"))
	assert.Equal(t, api.MsgInvalidCredentials, unstructured.Snapshot().LastError)

	offline := newManager(t, storage.NewMemoryStore(""), fakeAuth{err: &api.Error{Kind: api.KindAuthRejected, Payload: api.Payload{Kind: api.PayloadNetworkFailure}}})
	assert.False(t, offline.Login(context.Background(), "ana", "pw"))
	assert.Equal(t, api.MsgNetworkFailure, offline.Snapshot().LastError)
	assert.False(t, offline.IsAuthenticated())
}

func TestLoginStoreFailure(t *testing.T) {
	m := newManager(t, failingStore{storage.NewMemoryStore("")}, fakeAuth{token: "tok"})
	assert.False(t, m.Login(context.Background(), "ana", "pw"))
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, msgStoreFailure, m.Snapshot().LastError)
}

func TestLogout(t *testing.T) {
	store := storage.NewMemoryStore("")
	m := newManager(t, store, fakeAuth{token: "tok"})
	require.True(t, m.Login(context.Background(), "ana", "pw"))

	m.Logout()

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, State{}, m.Snapshot())
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoCredential)
}

func TestExpire(t *testing.T) {
	m := newManager(t, storage.NewMemoryStore("tok"), fakeAuth{})

	m.Expire("tok")

	st := m.Snapshot()
	assert.False(t, st.Authenticated)
	assert.Equal(t, api.MsgSessionExpired, st.LastError)

	var calls int
	m.Subscribe(func(State) { calls++ })
	m.Expire("tok")
	assert.Zero(t, calls, "expiring an inactive session is a no-op")
}

func TestExpireIgnoresSupersededCredential(t *testing.T) {
	store := storage.NewMemoryStore("old")
	m := newManager(t, store, fakeAuth{token: "fresh"})
	require.True(t, m.Login(context.Background(), "ana", "pw"))

	var calls int
	m.Subscribe(func(State) { calls++ })
	m.Expire("old")

	assert.Zero(t, calls)
	assert.True(t, m.IsAuthenticated())
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored)
}

func TestLateRejectionAfterLoginKeepsSession(t *testing.T) {
	held := make(chan struct{})
	arrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token-auth/":
			_, _ = io.WriteString(w, `{"token":"fresh"}`)
		default:
			if r.Header.Get("Authorization") == "Token fresh" {
				_, _ = io.WriteString(w, `[]`)
				return
			}
			close(arrived)
			<-held
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Invalid token."}`)
		}
	}))
	defer srv.Close()

	store := storage.NewMemoryStore("old")
	var m *Manager
	client, err := api.NewClient(srv.URL+"/api", credentialFunc(func() string { return m.Credential() }))
	require.NoError(t, err)
	m = newManager(t, store, client)
	client.OnAuthExpired(m.Expire)

	done := make(chan error, 1)
	go func() {
		_, err := client.Do(context.Background(), http.MethodGet, "expenses/", nil, nil, http.StatusOK)
		done <- err
	}()
	<-arrived

	require.True(t, m.Login(context.Background(), "ana", "pw"))
	close(held)
	err = <-done
	assert.Equal(t, api.KindAuthExpired, api.KindOf(err))

	st := m.Snapshot()
	assert.True(t, st.Authenticated)
	assert.Empty(t, st.LastError)
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored)

	_, err = client.Do(context.Background(), http.MethodGet, "expenses/", nil, nil, http.StatusOK)
	assert.NoError(t, err)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	m := newManager(t, storage.NewMemoryStore(""), fakeAuth{token: "tok"})

	var mu sync.Mutex
	var seen []State
	unsubscribe := m.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.True(t, m.Login(context.Background(), "ana", "pw"))
	m.Logout()
	unsubscribe()
	m.Logout()

	require.Len(t, seen, 3)
	assert.Equal(t, State{Pending: true}, seen[0])
	assert.Equal(t, State{Authenticated: true}, seen[1])
	assert.Equal(t, State{}, seen[2])
}

type credentialFunc func() string

func (f credentialFunc) Credential() string { return f() }
