package engine

// Message carries one unit of payload between two stages. It is a value
// type; ownership passes to the consumer on Dequeue.
type Message struct {
	payload any
	seq     uint64
}

// NewMessage wraps payload in a Message.
func NewMessage(payload any) Message {
	return Message{payload: payload}
}

// Payload returns the wrapped value.
func (m Message) Payload() any { return m.payload }

// Seq returns the message's position in the pipe it was last enqueued to,
// starting at 1. It is zero for messages that were never enqueued.
func (m Message) Seq() uint64 { return m.seq }

// PayloadAs returns the payload asserted to T.
func PayloadAs[T any](m Message) (T, bool) {
	v, ok := m.payload.(T)
	return v, ok
}
