package store

import "healthqueue/internal/models"

var statusOrder = map[string]int{
	models.StatusWaiting:        0,
	models.StatusCalled:         1,
	models.StatusInConsultation: 2,
	models.StatusCompleted:      3,
}

func ValidStatus(status string) bool {
	_, ok := statusOrder[status]
	return ok
}

// ValidTransition allows any strictly forward move, including skips such as
// waiting -> completed. Staying put or moving back is rejected.
func ValidTransition(fromStatus, toStatus string) bool {
	from, ok := statusOrder[fromStatus]
	if !ok {
		return false
	}
	to, ok := statusOrder[toStatus]
	if !ok {
		return false
	}
	return to > from
}
