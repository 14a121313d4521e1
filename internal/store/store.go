package store

import (
	"context"
	"strings"
	"time"

	"healthqueue/internal/models"
)

type CreatePrincipalInput struct {
	Role          string
	Name          string
	PhoneNumber   string
	LoginCodeHash string
	Department    string
	CreatedAt     time.Time
}

type CheckInInput struct {
	Name                 string
	Age                  *int
	Gender               string
	PhoneNumber          string
	Department           string
	DoctorName           string
	EstimatedWaitMinutes int
	CheckInTime          time.Time
	// LoginCodeHash is stored only when the phone has no patient record yet.
	// IssueLoginCode replaces it when set and is only called in that case.
	LoginCodeHash  string
	IssueLoginCode func() (hash string, err error)
}

// NewPatientHash returns the login code hash for a patient this check-in
// is about to create.
func (in CheckInInput) NewPatientHash() (string, error) {
	if in.IssueLoginCode != nil {
		return in.IssueLoginCode()
	}
	return in.LoginCodeHash, nil
}

// Validate reports ErrMissingFields when a mandatory check-in field is blank.
func (in CheckInInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.PhoneNumber) == "" || strings.TrimSpace(in.Department) == "" {
		return ErrMissingFields
	}
	return nil
}

type CheckInResult struct {
	Entry models.QueueEntry
	// Created is false when an active entry for the phone was overwritten.
	Created        bool
	PatientCreated bool
}

type AdvanceInput struct {
	EntryID    string
	DoctorID   string
	Status     string
	OccurredAt time.Time
}

type IdentityStore interface {
	CreatePrincipal(ctx context.Context, input CreatePrincipalInput) (models.Principal, error)
	FindCredentials(ctx context.Context, role, phoneNumber string) (models.Principal, string, error)
	GetPrincipal(ctx context.Context, role, id string) (models.Principal, error)
	ListDoctors(ctx context.Context) ([]models.DoctorListing, error)
}

type QueueStore interface {
	CheckIn(ctx context.Context, input CheckInInput) (CheckInResult, error)
	ListActive(ctx context.Context, department string) ([]models.QueueEntry, error)
	ListAll(ctx context.Context, since time.Time) ([]models.QueueEntry, error)
	Advance(ctx context.Context, input AdvanceInput) (models.QueueEntry, error)
}

type Store interface {
	IdentityStore
	QueueStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
