package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeEvent announces that a record of a collection changed, so other
// running surfaces can refresh. It carries no record data; receivers fetch
// what they need from the API.
type ChangeEvent struct {
	Resource  string    `json:"resource"`
	Kind      string    `json:"kind"`
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeEvent creates an event stamped with the current time.
func NewChangeEvent(resource, kind string, id int64) *ChangeEvent {
	return &ChangeEvent{
		Resource:  resource,
		Kind:      kind,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey is "<resource>.<kind>", e.g. "expenses.created".
func (e *ChangeEvent) RoutingKey() string {
	return e.Resource + "." + e.Kind
}

// ToJSON converts the event to JSON bytes
func (e *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes an event and checks it names a resource.
func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Resource == "" || e.Kind == "" {
		return nil, fmt.Errorf("change event without resource or kind")
	}
	return &e, nil
}
