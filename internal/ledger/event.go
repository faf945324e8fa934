package ledger

// Attribute is a key/value attached to an event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is an observable record emitted by an invocation.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

func NewEvent(typ string) Event {
	return Event{Type: typ}
}

// Add returns a copy of e with the attribute appended.
func (e Event) Add(key, value string) Event {
	attrs := make([]Attribute, len(e.Attributes), len(e.Attributes)+1)
	copy(attrs, e.Attributes)
	e.Attributes = append(attrs, Attribute{Key: key, Value: value})
	return e
}

// Attr returns the first value for key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Namespaced returns a copy of e with prefix prepended to its type.
func (e Event) Namespaced(prefix string) Event {
	e.Type = prefix + e.Type
	return e
}
