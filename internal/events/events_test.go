package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthqueue/internal/models"
)

func TestNewEventOmitsContactDetails(t *testing.T) {
	entry := models.QueueEntry{
		EntryID:        "e-1",
		Name:           "Asha Rao",
		PhoneNumber:    "9990001111",
		Department:     "Cardiology",
		QueueNumber:    1,
		RegistrationID: "REG-2025-001",
		Status:         models.StatusWaiting,
		UpdatedAt:      time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	event := NewEvent(TypeCheckedIn, entry, "")

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "9990001111")
	assert.NotContains(t, string(data), "Asha")
	assert.Equal(t, "REG-2025-001", event.RegistrationID)
	assert.NotEmpty(t, event.ID)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "healthqueue.queue.checked_in", (&NATS{prefix: "healthqueue"}).Subject(TypeCheckedIn))
	assert.Equal(t, "queue.status_changed", (&NATS{}).Subject(TypeStatusChanged))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	p.Close()
}

func TestNATSPublish(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL is required for nats tests")
	}
	pub, err := ConnectNATS(url, "healthqueue_test")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	subscription, err := sub.ChanSubscribe("healthqueue_test.>", msgs)
	require.NoError(t, err)
	defer func() { _ = subscription.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	require.NoError(t, pub.Publish(context.Background(), Event{ID: "1", Type: TypeStatusChanged, Status: models.StatusCalled}))

	select {
	case msg := <-msgs:
		assert.Equal(t, "healthqueue_test.queue.status_changed", msg.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, models.StatusCalled, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
