package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"healthqueue/internal/models"
)

type patientDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	Name          string             `bson:"name"`
	PhoneNumber   string             `bson:"phoneNumber"`
	LoginCodeHash string             `bson:"loginCodeHash"`
	Age           *int               `bson:"age,omitempty"`
	Gender        string             `bson:"gender,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

func (d patientDocument) principal() models.Principal {
	return models.Principal{
		ID:          d.ID.Hex(),
		Role:        models.RolePatient,
		Name:        d.Name,
		PhoneNumber: d.PhoneNumber,
		Age:         d.Age,
		Gender:      d.Gender,
		CreatedAt:   d.CreatedAt,
	}
}

type doctorDocument struct {
	ID                         primitive.ObjectID  `bson:"_id"`
	Name                       string              `bson:"name"`
	PhoneNumber                string              `bson:"phoneNumber"`
	LoginCodeHash              string              `bson:"loginCodeHash"`
	Department                 string              `bson:"department,omitempty"`
	Status                     string              `bson:"status"`
	CurrentPatient             *primitive.ObjectID `bson:"currentPatient,omitempty"`
	AverageConsultationMinutes int                 `bson:"averageConsultationTime"`
	CreatedAt                  time.Time           `bson:"createdAt"`
}

func (d doctorDocument) principal() models.Principal {
	p := models.Principal{
		ID:                         d.ID.Hex(),
		Role:                       models.RoleDoctor,
		Name:                       d.Name,
		PhoneNumber:                d.PhoneNumber,
		Department:                 d.Department,
		Status:                     d.Status,
		AverageConsultationMinutes: d.AverageConsultationMinutes,
		CreatedAt:                  d.CreatedAt,
	}
	if d.CurrentPatient != nil {
		p.CurrentPatient = d.CurrentPatient.Hex()
	}
	return p
}

// entryDocument carries an Active flag so the one-active-entry-per-phone
// index can use an equality partial filter.
type entryDocument struct {
	ID                    primitive.ObjectID `bson:"_id"`
	PatientID             primitive.ObjectID `bson:"patientId"`
	Name                  string             `bson:"name"`
	Age                   *int               `bson:"age,omitempty"`
	Gender                string             `bson:"gender,omitempty"`
	PhoneNumber           string             `bson:"phoneNumber"`
	Department            string             `bson:"department"`
	DoctorName            string             `bson:"doctorName,omitempty"`
	CheckInTime           time.Time          `bson:"checkInTime"`
	QueueNumber           int64              `bson:"queueNumber"`
	RegistrationID        string             `bson:"registrationId"`
	Status                string             `bson:"status"`
	Active                bool               `bson:"active"`
	EstimatedWaitMinutes  int                `bson:"estimatedWaitTime"`
	CalledAt              *time.Time         `bson:"calledAt,omitempty"`
	ConsultationStartedAt *time.Time         `bson:"consultationStartedAt,omitempty"`
	CompletedAt           *time.Time         `bson:"completedAt,omitempty"`
	CreatedAt             time.Time          `bson:"createdAt"`
	UpdatedAt             time.Time          `bson:"updatedAt"`
}

func (d entryDocument) entry() models.QueueEntry {
	return models.QueueEntry{
		EntryID:               d.ID.Hex(),
		PatientID:             d.PatientID.Hex(),
		Name:                  d.Name,
		Age:                   d.Age,
		Gender:                d.Gender,
		PhoneNumber:           d.PhoneNumber,
		Department:            d.Department,
		DoctorName:            d.DoctorName,
		CheckInTime:           d.CheckInTime,
		QueueNumber:           d.QueueNumber,
		RegistrationID:        d.RegistrationID,
		Status:                d.Status,
		EstimatedWaitMinutes:  d.EstimatedWaitMinutes,
		CalledAt:              d.CalledAt,
		ConsultationStartedAt: d.ConsultationStartedAt,
		CompletedAt:           d.CompletedAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

type sequenceDocument struct {
	Department string `bson:"_id"`
	NextNumber int64  `bson:"nextNumber"`
}
