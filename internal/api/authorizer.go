package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// CredentialSource exposes the current session credential. An empty
// string means there is none.
type CredentialSource interface {
	Credential() string
}

type credentialKey struct{}

// WithCredential pins the credential requests made with ctx carry in place
// of the source's current one. An empty token sends them without any.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey{}, token)
}

// Authorizer attaches "Authorization: Token <credential>" to requests aimed
// at the API base, and to nothing else.
type Authorizer struct {
	base   *url.URL
	source CredentialSource
	next   http.RoundTripper
}

// NewAuthorizer builds an authorizer for baseURL. next defaults to
// http.DefaultTransport.
func NewAuthorizer(baseURL string, source CredentialSource, next http.RoundTripper) (*Authorizer, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &Authorizer{base: base, source: source, next: next}, nil
}

// Authorize returns req with the credential attached when a credential
// exists and req targets the API base. The input request is never modified.
func (a *Authorizer) Authorize(req *http.Request) *http.Request {
	if !a.targetsAPI(req.URL) {
		return req
	}
	token := a.credential(req)
	if token == "" {
		return req
	}
	authorized := req.Clone(req.Context())
	authorized.Header.Set("Authorization", "Token "+token)
	return authorized
}

func (a *Authorizer) credential(req *http.Request) string {
	if token, ok := req.Context().Value(credentialKey{}).(string); ok {
		return token
	}
	if a.source == nil {
		return ""
	}
	return a.source.Credential()
}

func (a *Authorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	return a.next.RoundTrip(a.Authorize(req))
}

// targetsAPI reports whether u lies under the API base: same scheme and
// host, and a path equal to or below the base path on a segment boundary.
func (a *Authorizer) targetsAPI(u *url.URL) bool {
	if u == nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, a.base.Scheme) || !strings.EqualFold(u.Host, a.base.Host) {
		return false
	}
	basePath := strings.TrimRight(a.base.Path, "/")
	if basePath == "" {
		return true
	}
	return u.Path == basePath || strings.HasPrefix(u.Path, basePath+"/")
}
