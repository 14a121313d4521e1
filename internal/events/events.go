// Package events publishes queue integration events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"healthqueue/internal/models"
)

const (
	TypeCheckedIn     = "queue.checked_in"
	TypeStatusChanged = "queue.status_changed"
)

type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurredAt"`
	EntryID        string    `json:"entryId"`
	Department     string    `json:"department"`
	QueueNumber    int64     `json:"queueNumber"`
	RegistrationID string    `json:"registrationId"`
	Status         string    `json:"status"`
	DoctorName     string    `json:"doctor,omitempty"`
	DoctorID       string    `json:"doctorId,omitempty"`
}

// NewEvent describes an entry after a mutation. Phone numbers and names
// stay out of the payload.
func NewEvent(eventType string, entry models.QueueEntry, doctorID string) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		OccurredAt:     entry.UpdatedAt,
		EntryID:        entry.EntryID,
		Department:     entry.Department,
		QueueNumber:    entry.QueueNumber,
		RegistrationID: entry.RegistrationID,
		Status:         entry.Status,
		DoctorName:     entry.DoctorName,
		DoctorID:       doctorID,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() {}

type NATS struct {
	conn   *nats.Conn
	prefix string
}

func ConnectNATS(url, subjectPrefix string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("healthqueue"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, prefix: subjectPrefix}, nil
}

func (n *NATS) Subject(eventType string) string {
	if n.prefix == "" {
		return eventType
	}
	return n.prefix + "." + eventType
}

func (n *NATS) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (n *NATS) Close() {
	_ = n.conn.Drain()
}
