package host

// Event represents a host lifecycle event.
// Minimal and stable: name + slot and optional fields via key/values.
type Event struct {
	Name   string
	Slot   string
	Fields map[string]any
}

// EventPublisher receives events from the host. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
