package runner

// EventType represents the type of event emitted during a conversation.
type EventType int

const (
	// EventTypeReady indicates the prompt is evaluated; Content holds it.
	EventTypeReady EventType = iota
	// EventTypeHeard indicates the framed user turn about to be evaluated.
	EventTypeHeard
	// EventTypeContent indicates a generated piece.
	EventTypeContent
	// EventTypeTurnDone indicates the model's turn ended.
	EventTypeTurnDone
	// EventTypeCompacted indicates a context overflow was handled.
	EventTypeCompacted
	// EventTypeCacheSaved indicates the session cache was written.
	EventTypeCacheSaved
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventTypeReady:
		return "ready"
	case EventTypeHeard:
		return "heard"
	case EventTypeContent:
		return "content"
	case EventTypeTurnDone:
		return "turn_done"
	case EventTypeCompacted:
		return "compacted"
	case EventTypeCacheSaved:
		return "cache_saved"
	default:
		return "unknown"
	}
}

// Event is emitted synchronously from the dialogue goroutine.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	NPast   int       `json:"n_past"`
	Reply   *Reply    `json:"reply,omitempty"`
}

// EventHandler receives events. It must not block for long; generation
// waits for it.
type EventHandler func(Event)
