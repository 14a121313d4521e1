// Package memory keeps principals and queue entries in process memory.
// It backs local development and the HTTP tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"healthqueue/internal/models"
	"healthqueue/internal/store"
)

type principalRecord struct {
	principal models.Principal
	hash      string
}

// Store keeps principals and phone indexes keyed by role first. active maps
// a phone number to its non-completed entry id.
type Store struct {
	mu sync.Mutex

	principals map[string]map[string]*principalRecord
	byPhone    map[string]map[string]string
	entries    map[string]*models.QueueEntry
	active     map[string]string
	sequences  map[string]int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		principals: map[string]map[string]*principalRecord{
			models.RolePatient: {},
			models.RoleDoctor:  {},
		},
		byPhone: map[string]map[string]string{
			models.RolePatient: {},
			models.RoleDoctor:  {},
		},
		entries:   map[string]*models.QueueEntry{},
		active:    map[string]string{},
		sequences: map[string]int64{},
		now:       time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) CreatePrincipal(_ context.Context, input store.CreatePrincipalInput) (models.Principal, error) {
	if !models.ValidRole(input.Role) {
		return models.Principal{}, store.ErrInvalidRole
	}
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.PhoneNumber) == "" {
		return models.Principal{}, store.ErrMissingFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPhone[input.Role][input.PhoneNumber]; exists {
		return models.Principal{}, store.ErrPhoneTaken
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	principal := models.Principal{
		ID:          uuid.NewString(),
		Role:        input.Role,
		Name:        input.Name,
		PhoneNumber: input.PhoneNumber,
		CreatedAt:   createdAt,
	}
	if input.Role == models.RoleDoctor {
		principal.Department = input.Department
		principal.Status = models.DoctorOffline
		principal.AverageConsultationMinutes = models.DefaultConsultationMinutes
	}
	s.putPrincipal(principal, input.LoginCodeHash)
	return principal, nil
}

func (s *Store) FindCredentials(_ context.Context, role, phoneNumber string) (models.Principal, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPhone[role][phoneNumber]
	if !ok {
		return models.Principal{}, "", store.ErrPrincipalNotFound
	}
	rec := s.principals[role][id]
	return rec.principal, rec.hash, nil
}

func (s *Store) GetPrincipal(_ context.Context, role, id string) (models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.principals[role][id]
	if !ok {
		return models.Principal{}, store.ErrPrincipalNotFound
	}
	return rec.principal, nil
}

func (s *Store) ListDoctors(context.Context) ([]models.DoctorListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.DoctorListing, 0, len(s.principals[models.RoleDoctor]))
	for _, rec := range s.principals[models.RoleDoctor] {
		out = append(out, rec.principal.Listing())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CheckIn(_ context.Context, input store.CheckInInput) (store.CheckInResult, error) {
	if err := input.Validate(); err != nil {
		return store.CheckInResult{}, err
	}

	var hash string
	if !s.hasPatient(input.PhoneNumber) {
		var err error
		if hash, err = input.NewPatientHash(); err != nil {
			return store.CheckInResult{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, isDoctor := s.byPhone[models.RoleDoctor][input.PhoneNumber]; isDoctor {
		return store.CheckInResult{}, store.ErrPhoneIsDoctor
	}

	now := input.CheckInTime
	if now.IsZero() {
		now = s.now().UTC()
	}

	var result store.CheckInResult
	patientID, ok := s.byPhone[models.RolePatient][input.PhoneNumber]
	if ok {
		rec := s.principals[models.RolePatient][patientID]
		rec.principal.Name = input.Name
		rec.principal.Age = input.Age
		rec.principal.Gender = input.Gender
	} else {
		patient := models.Principal{
			ID:          uuid.NewString(),
			Role:        models.RolePatient,
			Name:        input.Name,
			PhoneNumber: input.PhoneNumber,
			Age:         input.Age,
			Gender:      input.Gender,
			CreatedAt:   now,
		}
		s.putPrincipal(patient, hash)
		patientID = patient.ID
		result.PatientCreated = true
	}

	s.sequences[input.Department]++
	number := s.sequences[input.Department]

	entry := &models.QueueEntry{
		EntryID:   uuid.NewString(),
		CreatedAt: now,
	}
	if id, active := s.active[input.PhoneNumber]; active {
		entry = s.entries[id]
		entry.CalledAt = nil
		entry.ConsultationStartedAt = nil
		entry.CompletedAt = nil
	} else {
		result.Created = true
	}
	entry.Status = models.StatusWaiting
	entry.PatientID = patientID
	entry.Name = input.Name
	entry.Age = input.Age
	entry.Gender = input.Gender
	entry.PhoneNumber = input.PhoneNumber
	entry.Department = input.Department
	entry.DoctorName = input.DoctorName
	entry.CheckInTime = now
	entry.QueueNumber = number
	entry.RegistrationID = store.RegistrationID(now.Year(), number)
	entry.EstimatedWaitMinutes = input.EstimatedWaitMinutes
	entry.UpdatedAt = now

	s.entries[entry.EntryID] = entry
	s.active[entry.PhoneNumber] = entry.EntryID
	result.Entry = *entry
	return result, nil
}

func (s *Store) ListActive(_ context.Context, department string) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueEntry, 0)
	for _, entry := range s.entries {
		if !entry.Active() {
			continue
		}
		if department != "" && entry.Department != department {
			continue
		}
		out = append(out, *entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CheckInTime.Equal(out[j].CheckInTime) {
			return out[i].QueueNumber < out[j].QueueNumber
		}
		return out[i].CheckInTime.Before(out[j].CheckInTime)
	})
	return out, nil
}

func (s *Store) ListAll(_ context.Context, since time.Time) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !since.IsZero() && entry.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntryID > out[j].EntryID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Advance(_ context.Context, input store.AdvanceInput) (models.QueueEntry, error) {
	if !store.ValidStatus(input.Status) {
		return models.QueueEntry{}, store.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if !store.ValidTransition(entry.Status, input.Status) {
		return models.QueueEntry{}, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, entry.Status, input.Status)
	}
	doctor, ok := s.principals[models.RoleDoctor][input.DoctorID]
	if !ok {
		return models.QueueEntry{}, store.ErrPrincipalNotFound
	}

	at := input.OccurredAt
	if at.IsZero() {
		at = s.now().UTC()
	}
	entry.Status = input.Status
	entry.UpdatedAt = at

	switch input.Status {
	case models.StatusCalled:
		entry.CalledAt = &at
	case models.StatusInConsultation:
		entry.ConsultationStartedAt = &at
		if entry.DoctorName == "" {
			entry.DoctorName = doctor.principal.Name
		}
		doctor.principal.CurrentPatient = entry.EntryID
		doctor.principal.Status = models.DoctorBusy
	case models.StatusCompleted:
		entry.CompletedAt = &at
		doctor.principal.CurrentPatient = ""
		doctor.principal.Status = models.DoctorAvailable
		delete(s.active, entry.PhoneNumber)
	}
	return *entry, nil
}

func (s *Store) hasPatient(phoneNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byPhone[models.RolePatient][phoneNumber]
	return ok
}

func (s *Store) putPrincipal(principal models.Principal, hash string) {
	s.principals[principal.Role][principal.ID] = &principalRecord{principal: principal, hash: hash}
	s.byPhone[principal.Role][principal.PhoneNumber] = principal.ID
}
