package core

import "sync"

// History is the ordered, concurrency safe conversation log of one agent.
// Readers always receive copies.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory returns a history seeded with msgs.
func NewHistory(msgs ...Message) *History {
	h := &History{}
	h.messages = append(h.messages, msgs...)

	return h
}

// Append adds messages at the end.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
}

// Replace swaps the whole content for a copy of msgs.
func (h *History) Replace(msgs []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append([]Message(nil), msgs...)
}

// Messages returns a snapshot of the history.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)

	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.messages)
}

// Last returns the most recent message.
func (h *History) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.messages) == 0 {
		return Message{}, false
	}

	return h.messages[len(h.messages)-1], true
}

// Clone returns an independent copy.
func (h *History) Clone() *History {
	return NewHistory(h.Messages()...)
}
