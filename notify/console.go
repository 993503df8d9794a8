package notify

import (
	"context"
	"sync"

	"task-manager/logging"
)

// Outbox is the console mail backend: messages are logged and kept in memory.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Send(_ context.Context, m Message) error {
	o.mu.Lock()
	o.messages = append(o.messages, m)
	o.mu.Unlock()
	logging.Logger.Infof("Event ID: CONSOLE_EMAIL, Description: To: %s | Subject: %s | %s", m.To, m.Subject, m.Body)
	return nil
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Last returns the most recent message, if any.
func (o *Outbox) Last() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		return Message{}, false
	}
	return o.messages[len(o.messages)-1], true
}
