package sse

// Event types written in the "event:" field.
const (
	EventConnected = "connected"
	EventOrder     = "order"
	EventStatus    = "status"
)

// Topics published by the engine.
const (
	TopicEngine       = "engine"
	TopicOrdersPrefix = "orders:"
)

// OrdersTopic returns the topic fills for symbol are published on.
func OrdersTopic(symbol string) string { return TopicOrdersPrefix + symbol }

// frame is one encoded event.
type frame struct {
	event string
	data  []byte
}

// ConnectedEvent is the first event every client receives.
type ConnectedEvent struct {
	ClientID string `json:"client_id"`
	Pattern  string `json:"pattern"`
}
