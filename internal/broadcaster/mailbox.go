package broadcaster

import "sync"

// mailbox is an unbounded FIFO queue. push never blocks the publisher.
type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		signal: make(chan struct{}, 1),
	}
}

func (m *mailbox) push(message Message) {
	m.mu.Lock()
	m.queue = append(m.queue, message)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return Message{}, false
	}

	message := m.queue[0]
	m.queue[0] = Message{}
	m.queue = m.queue[1:]

	if len(m.queue) == 0 {
		m.queue = nil
	}

	return message, true
}

func (m *mailbox) ready() <-chan struct{} {
	return m.signal
}
