package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodePayloadAndMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind PayloadKind
		want     string
	}{
		{
			name:     "field keyed lists keep server order",
			body:     `{"name": ["category with this name already exists."], "amount": ["A valid number is required.", "Too big."]}`,
			wantKind: PayloadStructured,
			want:     "name: category with this name already exists.; amount: A valid number is required., Too big.",
		},
		{
			name:     "field keyed strings",
			body:     `{"detail": "Not found."}`,
			wantKind: PayloadStructured,
			want:     "detail: Not found.",
		},
		{
			name:     "nested values are rendered",
			body:     `{"category": {"pk": 3}}`,
			wantKind: PayloadStructured,
			want:     `category: {"pk": 3}`,
		},
		{
			name:     "json string",
			body:     `"server exploded"`,
			wantKind: PayloadFreeform,
			want:     "server exploded",
		},
		{
			name:     "html body",
			body:     "<h1>Bad Gateway</h1>",
			wantKind: PayloadFreeform,
			want:     "<h1>Bad Gateway</h1>",
		},
		{
			name:     "empty body",
			body:     "  ",
			wantKind: PayloadNone,
			want:     "fallback",
		},
		{
			name:     "empty object",
			body:     "{}",
			wantKind: PayloadStructured,
			want:     "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DecodePayload([]byte(tt.body))
			assert.Equal(t, tt.wantKind, p.Kind)
			assert.Equal(t, tt.want, p.Message("fallback"))
		})
	}
}

func TestNetworkFailurePayloadMessage(t *testing.T) {
	p := Payload{Kind: PayloadNetworkFailure}
	assert.Equal(t, MsgNetworkFailure, p.Message("ignored"))
}

func TestErrorMessage(t *testing.T) {
	rejected := &Error{Kind: KindAuthRejected, Status: 400, Payload: DecodePayload([]byte(`{"non_field_errors":["Unable to log in with provided credentials."]}`))}
	assert.Equal(t, "Unable to log in with provided credentials.", rejected.Message())

	unstructured := &Error{Kind: KindAuthRejected, Status: 500, Payload: DecodePayload([]byte("oops"))}
	assert.Equal(t, MsgInvalidCredentials, unstructured.Message())

	offline := &Error{Kind: KindAuthRejected, Payload: Payload{Kind: PayloadNetworkFailure}, Err: errors.New("dial tcp")}
	assert.Equal(t, MsgNetworkFailure, offline.Message())

	expired := &Error{Kind: KindAuthExpired, Status: 401}
	assert.Equal(t, MsgSessionExpired, expired.Message())

	unexpected := &Error{Kind: KindUnexpectedStatus, Status: 200}
	assert.Equal(t, "unexpected status 200 received", unexpected.Message())

	failed := &Error{Kind: KindRequestFailed, Status: 500}
	assert.Equal(t, MsgRequestFailed, failed.Message())
}

func TestKindOfAndUserMessage(t *testing.T) {
	err := fmt.Errorf("create expense: %w", &Error{Kind: KindAuthExpired, Op: "post expenses/", Status: 403})
	assert.Equal(t, KindAuthExpired, KindOf(err))
	assert.Equal(t, MsgSessionExpired, UserMessage(err))

	plain := errors.New("boom")
	assert.Equal(t, Kind(""), KindOf(plain))
	assert.Equal(t, "boom", UserMessage(plain))
	assert.Equal(t, "", UserMessage(nil))
}
