package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"teamdesk/internal/domain"
)

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each record as JSON to Subject. The action is appended
// as a final token so subscribers can filter with wildcards.
type NATSSink struct {
	Conn    Publisher
	Subject string
}

func (s NATSSink) Name() string { return "nats" }

func (s NATSSink) Deliver(_ context.Context, rec domain.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	return s.Conn.Publish(s.Subject+"."+string(rec.Action), data)
}

// DialNATS connects to url and returns a sink plus a close func that drains the connection.
func DialNATS(url, subject string) (NATSSink, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("teamdesk-audit"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return NATSSink{}, nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NATSSink{Conn: nc, Subject: subject}, func() { _ = nc.Drain() }, nil
}
