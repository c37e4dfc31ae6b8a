// Package mailer delivers account e-mails such as verification links.
package mailer

import (
	"context"
	"sync"

	"teamdesk/internal/logging"
)

type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	// Token is the raw verification token embedded in Body.
	Token string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Log writes messages to a logger instead of sending them. It is the
// default for local workspaces without an outgoing mail relay.
type Log struct {
	Logger logging.Logger
}

func (l Log) Send(_ context.Context, msg Message) error {
	log := l.Logger
	if log == nil {
		log = logging.Nop()
	}
	log.Infow("outgoing mail", "from", msg.From, "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

// Recorder keeps sent messages in memory. Fail, when set, is returned by Send.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Fail     error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) SetFail(err error) {
	r.mu.Lock()
	r.Fail = err
	r.mu.Unlock()
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent message sent to addr.
func (r *Recorder) Last(addr string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].To == addr {
			return r.messages[i], true
		}
	}
	return Message{}, false
}
