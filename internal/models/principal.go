package models

import "time"

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

const (
	DoctorAvailable = "available"
	DoctorBusy      = "busy"
	DoctorOffline   = "offline"
)

// Principal is the public view of a patient or doctor. The login code hash
// never leaves the store.
type Principal struct {
	ID                         string    `json:"id"`
	Role                       string    `json:"role"`
	Name                       string    `json:"name"`
	PhoneNumber                string    `json:"phoneNumber"`
	Age                        *int      `json:"age,omitempty"`
	Gender                     string    `json:"gender,omitempty"`
	Department                 string    `json:"department,omitempty"`
	Status                     string    `json:"status,omitempty"`
	CurrentPatient             string    `json:"currentPatient,omitempty"`
	AverageConsultationMinutes int       `json:"averageConsultationTime,omitempty"`
	CreatedAt                  time.Time `json:"createdAt"`
}

type DoctorListing struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Status     string `json:"status"`
}

func ValidRole(role string) bool {
	return role == RolePatient || role == RoleDoctor
}

const DefaultConsultationMinutes = 15

func (p Principal) Listing() DoctorListing {
	return DoctorListing{ID: p.ID, Name: p.Name, Department: p.Department, Status: p.Status}
}
