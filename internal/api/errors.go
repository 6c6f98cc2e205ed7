package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed API operation.
type Kind string

const (
	// KindAuthRejected: the server refused the login credentials.
	KindAuthRejected Kind = "auth_rejected"
	// KindAuthExpired: an authorized request was rejected with 401/403.
	KindAuthExpired Kind = "auth_expired"
	// KindRequestFailed: any other non-success response or a transport failure.
	KindRequestFailed Kind = "request_failed"
	// KindUnexpectedStatus: a 2xx outside the expected success set.
	KindUnexpectedStatus Kind = "unexpected_status"
)

// User-facing fallback messages.
const (
	MsgInvalidCredentials = "invalid username or password"
	MsgSessionExpired     = "session expired, please log in again"
	MsgNetworkFailure     = "unable to reach the server, try again later"
	MsgRequestFailed      = "request failed, check the data and try again"
)

// PayloadKind tags the shape of an error body.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadStructured
	PayloadFreeform
	PayloadNetworkFailure
)

// FieldError is one entry of a field-keyed validation body, e.g.
// {"amount": ["A valid number is required."]}.
type FieldError struct {
	Field    string
	Messages []string
}

// Payload is the decoded error body of a failed response.
type Payload struct {
	Kind   PayloadKind
	Fields []FieldError // PayloadStructured, in server order
	Text   string       // PayloadFreeform
}

// Message flattens the payload into one display string. Structured bodies
// become "field: msg; other: a, b"; freeform bodies are returned as-is.
// fallback is used when the payload carries nothing displayable.
func (p Payload) Message(fallback string) string {
	switch p.Kind {
	case PayloadStructured:
		parts := make([]string, 0, len(p.Fields))
		for _, f := range p.Fields {
			parts = append(parts, f.Field+": "+strings.Join(f.Messages, ", "))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	case PayloadFreeform:
		if strings.TrimSpace(p.Text) != "" {
			return p.Text
		}
	case PayloadNetworkFailure:
		return MsgNetworkFailure
	}
	return fallback
}

// Field returns the messages reported for name.
func (p Payload) Field(name string) []string {
	for _, f := range p.Fields {
		if f.Field == name {
			return f.Messages
		}
	}
	return nil
}

// DecodePayload interprets an error body. JSON objects become structured
// payloads (key order preserved), anything else is freeform text.
func DecodePayload(body []byte) Payload {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Payload{Kind: PayloadNone}
	}
	if body[0] == '{' {
		if fields, err := decodeFields(body); err == nil {
			return Payload{Kind: PayloadStructured, Fields: fields}
		}
	}
	if body[0] == '"' {
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return Payload{Kind: PayloadFreeform, Text: s}
		}
	}
	return Payload{Kind: PayloadFreeform, Text: string(body)}
}

func decodeFields(body []byte) ([]FieldError, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil { // {
		return nil, err
	}
	var fields []FieldError
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, FieldError{Field: key, Messages: flattenValue(raw)})
	}
	return fields, nil
}

func flattenValue(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, flattenValue(item)...)
		}
		return out
	}
	return []string{string(raw)}
}

// Error is returned by every failed API operation.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Payload Payload
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if msg := e.Payload.Message(""); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the human-readable text shown to the user.
func (e *Error) Message() string {
	switch e.Kind {
	case KindAuthRejected:
		if msgs := e.Payload.Field("non_field_errors"); len(msgs) > 0 {
			return msgs[0]
		}
		if e.Payload.Kind == PayloadNetworkFailure {
			return MsgNetworkFailure
		}
		return MsgInvalidCredentials
	case KindAuthExpired:
		return MsgSessionExpired
	case KindUnexpectedStatus:
		return fmt.Sprintf("unexpected status %d received", e.Status)
	default:
		return e.Payload.Message(MsgRequestFailed)
	}
}

// KindOf returns the kind of an *Error in err's chain, or "".
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// UserMessage returns the display text for any error produced by this
// package, falling back to err.Error() for foreign errors.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}
