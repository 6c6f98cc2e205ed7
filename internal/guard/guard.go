// Package guard decides whether a protected view may be entered.
package guard

import (
	"sync"

	"domu/internal/log"
	"domu/internal/session"
)

const (
	LoginPath     = "/login"
	DefaultResume = "/expenses"
)

type Status int

const (
	Unknown Status = iota
	Allowed
	Denied
)

func (s Status) String() string {
	switch s {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision is the outcome of an evaluation. When Allow is false, Redirect
// is where to send the user and Resume is the target they asked for.
type Decision struct {
	Allow    bool
	Redirect string
	Resume   string
}

// SessionView is the part of the session manager the guard depends on.
type SessionView interface {
	IsAuthenticated() bool
	Subscribe(fn func(session.State)) (unsubscribe func())
}

type Guard struct {
	session SessionView
	logger  *log.Logger

	mu          sync.Mutex
	status      Status
	current     string
	resume      string
	unsubscribe func()
}

// New builds a guard in the Unknown state. It follows authentication
// changes of sess until Close is called.
func New(sess SessionView, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Discard()
	}
	g := &Guard{
		session: sess,
		logger:  logger.WithComponent(log.ComponentGuard),
	}
	g.unsubscribe = sess.Subscribe(g.onSessionChange)
	return g
}

// Evaluate decides whether target may be entered and records it as the
// current navigation.
func (g *Guard) Evaluate(target string) Decision {
	authenticated := g.session.IsAuthenticated()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = target
	return g.decide(authenticated)
}

func (g *Guard) decide(authenticated bool) Decision {
	if authenticated {
		g.status = Allowed
		return Decision{Allow: true}
	}
	g.status = Denied
	if g.current != "" && g.current != LoginPath {
		g.resume = g.current
	}
	g.logger.Debug("Access denied", log.FieldTarget, g.current)
	return Decision{Redirect: LoginPath, Resume: g.resume}
}

func (g *Guard) onSessionChange(st session.State) {
	if st.Pending {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == "" {
		return
	}
	g.decide(st.Authenticated)
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// ResumeTarget returns where navigation should continue after a
// successful login and forgets it. Without a retained location it
// returns DefaultResume.
func (g *Guard) ResumeTarget() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	target := g.resume
	g.resume = ""
	if target == "" {
		return DefaultResume
	}
	return target
}

// Close stops following the session.
func (g *Guard) Close() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
