// Package session owns the authentication state of the client: it is the
// only writer of the credential store and the source every authorized
// request reads its credential from.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"domu/internal/api"
	"domu/internal/log"
	"domu/internal/storage"
)

// CredentialStore is the durable holder of the credential.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Authenticator exchanges user credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// State is a snapshot of the session handed to subscribers. The
// credential itself is deliberately not part of it.
type State struct {
	Authenticated bool
	Pending       bool
	LastError     string
}

const msgStoreFailure = "unable to save the session locally"

type Manager struct {
	store  CredentialStore
	auth   Authenticator
	logger *log.Logger

	// writeMu orders store writes with the token change they persist.
	writeMu sync.Mutex

	mu        sync.RWMutex
	token     string
	pending   bool
	lastError string

	subsMu sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// New builds a manager and rehydrates it from store: a stored credential
// makes the session authenticated without a login.
func New(ctx context.Context, store CredentialStore, auth Authenticator, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Discard()
	}
	m := &Manager{
		store:  store,
		auth:   auth,
		logger: logger.WithComponent(log.ComponentSession),
		subs:   make(map[int]func(State)),
	}

	token, err := store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNoCredential):
	case err != nil:
		return nil, fmt.Errorf("rehydrate session: %w", err)
	default:
		m.token = token
		m.logger.DebugContext(ctx, "Session rehydrated from credential store")
	}
	return m, nil
}

// Login authenticates against the API. On success the credential is
// persisted and true is returned; on any failure the stored credential is
// cleared, LastError describes the problem and false is returned.
func (m *Manager) Login(ctx context.Context, username, password string) bool {
	m.mu.Lock()
	m.pending = true
	m.lastError = ""
	m.mu.Unlock()
	m.notify()

	token, err := m.auth.Login(ctx, username, password)

	m.writeMu.Lock()
	message := ""
	if err != nil {
		message = api.UserMessage(err)
	} else if saveErr := m.store.Save(ctx, token); saveErr != nil {
		err = saveErr
		message = msgStoreFailure
	}

	fields := log.NewFields().WithOperation(log.OpLogin)
	fields[log.FieldUsername] = username

	if err != nil {
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.WarnContext(ctx, "Failed to clear credential after login failure", log.FieldError, clearErr)
		}
		m.mu.Lock()
		m.token = ""
		m.pending = false
		m.lastError = message
		m.mu.Unlock()
		m.writeMu.Unlock()
		m.logger.WarnContext(ctx, "Login failed", fields.WithError(err).ToSlice()...)
		m.notify()
		return false
	}

	m.mu.Lock()
	m.token = token
	m.pending = false
	m.lastError = ""
	m.mu.Unlock()
	m.writeMu.Unlock()
	m.logger.InfoContext(ctx, "Login succeeded", fields.ToSlice()...)
	m.notify()
	return true
}

// Logout drops the session locally. It needs no network call and always
// succeeds; a failure to clear durable storage is only logged.
func (m *Manager) Logout() {
	m.writeMu.Lock()
	m.reset("", log.OpLogout)
	m.writeMu.Unlock()
	m.notify()
}

// Expire invalidates the session after the server rejected token. A
// rejection of any credential other than the current one is ignored: it
// belongs to a request sent before the latest login or logout.
func (m *Manager) Expire(token string) {
	m.writeMu.Lock()
	m.mu.RLock()
	current := m.token != "" && m.token == token
	m.mu.RUnlock()
	if !current {
		m.writeMu.Unlock()
		m.logger.Debug("Ignoring rejection of a superseded credential", log.FieldOperation, log.OpExpire)
		return
	}
	m.reset(api.MsgSessionExpired, log.OpExpire)
	m.writeMu.Unlock()
	m.notify()
}

// reset clears the session; callers hold writeMu and notify afterwards.
func (m *Manager) reset(lastError, op string) {
	ctx := context.Background()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "Failed to clear credential store", log.FieldOperation, op, log.FieldError, err)
	}
	m.mu.Lock()
	m.token = ""
	m.pending = false
	m.lastError = lastError
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "Session cleared", log.FieldOperation, op)
}

// Credential returns the current bearer token, or "" when logged out.
func (m *Manager) Credential() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) IsAuthenticated() bool {
	return m.Credential() != ""
}

func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Authenticated: m.token != "",
		Pending:       m.pending,
		LastError:     m.lastError,
	}
}

// Subscribe registers fn to be called with the new state after every
// change. The returned function unregisters it.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Manager) notify() {
	state := m.Snapshot()
	m.subsMu.Lock()
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
