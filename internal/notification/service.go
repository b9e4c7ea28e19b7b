// Package notification publishes sync lifecycle events to NATS JetStream so
// other services (and the frontend push path) can react without polling. The
// publisher is optional: a nil *Service silently drops events, which keeps
// local development free of a broker requirement.
package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	streamName       = "SYNC_EVENTS"
	subjectCompleted = "sync.completed"
	subjectFailed    = "sync.failed"
)

// Event is the payload published for every finished sync run.
type Event struct {
	UserID   string    `json:"user_id"`
	Provider string    `json:"provider"`
	JobID    string    `json:"job_id"`
	Synced   int       `json:"synced"`
	Added    int       `json:"added"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type Service struct {
	js nats.JetStreamContext
}

// NewService connects to NATS and ensures the stream exists. An empty URL
// returns (nil, nil): callers treat a nil service as disabled.
func NewService(url string) (*Service, error) {
	if url == "" {
		return nil, nil
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"sync.>"},
		MaxAge:   24 * time.Hour,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	log.Printf("[Notification] connected to nats at %s", url)
	return &Service{js: js}, nil
}

// SyncCompleted publishes a success event. Fire and forget.
func (s *Service) SyncCompleted(event Event) {
	s.publish(subjectCompleted, event)
}

// SyncFailed publishes a terminal failure event. Fire and forget.
func (s *Service) SyncFailed(event Event) {
	s.publish(subjectFailed, event)
}

func (s *Service) publish(subject string, event Event) {
	if s == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Notification] failed to encode event: %v", err)
		return
	}
	// MsgId makes redeliveries of the same job result idempotent
	_, err = s.js.Publish(subject, payload, nats.MsgId(event.JobID+":"+subject))
	if err != nil {
		log.Printf("[Notification] failed to publish %s: %v", subject, err)
	}
}
