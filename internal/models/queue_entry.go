package models

import "time"

type QueueEntry struct {
	EntryID               string     `json:"id"`
	PatientID             string     `json:"patientId"`
	Name                  string     `json:"name"`
	Age                   *int       `json:"age,omitempty"`
	Gender                string     `json:"gender,omitempty"`
	PhoneNumber           string     `json:"phoneNumber"`
	Department            string     `json:"department"`
	DoctorName            string     `json:"doctor,omitempty"`
	CheckInTime           time.Time  `json:"checkInTime"`
	QueueNumber           int64      `json:"queueNumber"`
	RegistrationID        string     `json:"registrationId"`
	Status                string     `json:"status"`
	EstimatedWaitMinutes  int        `json:"estimatedWaitTime"`
	CalledAt              *time.Time `json:"calledAt,omitempty"`
	ConsultationStartedAt *time.Time `json:"consultationStartedAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

const (
	StatusWaiting        = "waiting"
	StatusCalled         = "called"
	StatusInConsultation = "in-consultation"
	StatusCompleted      = "completed"
)

func (e QueueEntry) Active() bool {
	return e.Status != StatusCompleted
}
