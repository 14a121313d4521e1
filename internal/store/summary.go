package store

import (
	"sort"
	"time"

	"healthqueue/internal/models"
)

type DepartmentStats struct {
	Department         string  `json:"department,omitempty"`
	Active             int     `json:"active"`
	Waiting            int     `json:"waiting"`
	Called             int     `json:"called"`
	InConsultation     int     `json:"inConsultation"`
	CompletedToday     int     `json:"completedToday"`
	AverageWaitMinutes float64 `json:"averageWaitMinutes"`
}

type QueueStats struct {
	Departments []DepartmentStats `json:"departments"`
	Totals      DepartmentStats   `json:"totals"`
}

type waitAccumulator struct {
	total time.Duration
	count int
}

func (w *waitAccumulator) add(d time.Duration) {
	w.total += d
	w.count++
}

func (w waitAccumulator) minutes() float64 {
	if w.count == 0 {
		return 0
	}
	return (w.total / time.Duration(w.count)).Minutes()
}

// Summarize aggregates entries per department. Waits are measured from
// check-in to the first of calledAt or consultationStartedAt and only
// entries checked in on now's calendar day contribute to waits and
// completions.
func Summarize(entries []models.QueueEntry, now time.Time) QueueStats {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	byDept := map[string]*DepartmentStats{}
	waits := map[string]*waitAccumulator{}
	var totals DepartmentStats
	var totalWait waitAccumulator

	for _, entry := range entries {
		stats, ok := byDept[entry.Department]
		if !ok {
			stats = &DepartmentStats{Department: entry.Department}
			byDept[entry.Department] = stats
			waits[entry.Department] = &waitAccumulator{}
		}

		switch entry.Status {
		case models.StatusWaiting:
			stats.Waiting++
			totals.Waiting++
		case models.StatusCalled:
			stats.Called++
			totals.Called++
		case models.StatusInConsultation:
			stats.InConsultation++
			totals.InConsultation++
		}
		if entry.Active() {
			stats.Active++
			totals.Active++
		}

		if entry.CheckInTime.Before(startOfDay) {
			continue
		}
		if entry.Status == models.StatusCompleted {
			stats.CompletedToday++
			totals.CompletedToday++
		}
		if seen := firstSeen(entry); seen != nil && !seen.Before(entry.CheckInTime) {
			wait := seen.Sub(entry.CheckInTime)
			waits[entry.Department].add(wait)
			totalWait.add(wait)
		}
	}

	out := QueueStats{Departments: make([]DepartmentStats, 0, len(byDept))}
	for dept, stats := range byDept {
		stats.AverageWaitMinutes = waits[dept].minutes()
		out.Departments = append(out.Departments, *stats)
	}
	sort.Slice(out.Departments, func(i, j int) bool {
		return out.Departments[i].Department < out.Departments[j].Department
	})
	totals.AverageWaitMinutes = totalWait.minutes()
	out.Totals = totals
	return out
}

func firstSeen(entry models.QueueEntry) *time.Time {
	switch {
	case entry.CalledAt != nil && entry.ConsultationStartedAt != nil:
		if entry.CalledAt.Before(*entry.ConsultationStartedAt) {
			return entry.CalledAt
		}
		return entry.ConsultationStartedAt
	case entry.CalledAt != nil:
		return entry.CalledAt
	default:
		return entry.ConsultationStartedAt
	}
}
