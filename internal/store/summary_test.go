package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthqueue/internal/models"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }
	ptr := func(t time.Time) *time.Time { return &t }

	entries := []models.QueueEntry{
		{Department: "Cardiology", Status: models.StatusWaiting, CheckInTime: at(9, 0)},
		{Department: "Cardiology", Status: models.StatusCalled, CheckInTime: at(9, 0), CalledAt: ptr(at(9, 10))},
		{Department: "Cardiology", Status: models.StatusCompleted, CheckInTime: at(8, 0),
			CalledAt: ptr(at(8, 30)), ConsultationStartedAt: ptr(at(8, 20)), CompletedAt: ptr(at(8, 50))},
		{Department: "Cardiology", Status: models.StatusCompleted, CheckInTime: now.AddDate(0, 0, -1),
			CalledAt: ptr(now.AddDate(0, 0, -1).Add(time.Hour))},
		{Department: "ENT", Status: models.StatusInConsultation, CheckInTime: at(10, 0), ConsultationStartedAt: ptr(at(10, 30))},
	}

	stats := Summarize(entries, now)
	require.Len(t, stats.Departments, 2)

	cardio := stats.Departments[0]
	assert.Equal(t, "Cardiology", cardio.Department)
	assert.Equal(t, 2, cardio.Active)
	assert.Equal(t, 1, cardio.Waiting)
	assert.Equal(t, 1, cardio.Called)
	assert.Equal(t, 1, cardio.CompletedToday)
	assert.InDelta(t, 15.0, cardio.AverageWaitMinutes, 0.001)

	ent := stats.Departments[1]
	assert.Equal(t, "ENT", ent.Department)
	assert.Equal(t, 1, ent.InConsultation)
	assert.InDelta(t, 30.0, ent.AverageWaitMinutes, 0.001)

	assert.Equal(t, 3, stats.Totals.Active)
	assert.Equal(t, 1, stats.Totals.CompletedToday)
	assert.InDelta(t, 20.0, stats.Totals.AverageWaitMinutes, 0.001)
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(nil, time.Now())
	assert.Empty(t, stats.Departments)
	assert.Zero(t, stats.Totals.AverageWaitMinutes)
}
