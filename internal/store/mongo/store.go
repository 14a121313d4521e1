// Package mongo stores principals and queue entries in MongoDB. Entry and
// doctor updates in Advance are applied one after the other, not in a
// transaction, so a failure between them can leave the doctor stale.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"healthqueue/internal/models"
	"healthqueue/internal/store"
)

const (
	patientsCollection  = "patients"
	doctorsCollection   = "doctors"
	entriesCollection   = "queue_entries"
	sequencesCollection = "department_sequences"
)

type Store struct {
	client    *mongo.Client
	patients  *mongo.Collection
	doctors   *mongo.Collection
	entries   *mongo.Collection
	sequences *mongo.Collection
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewStore(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:    client,
		patients:  db.Collection(patientsCollection),
		doctors:   db.Collection(doctorsCollection),
		entries:   db.Collection(entriesCollection),
		sequences: db.Collection(sequencesCollection),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.patients.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "phoneNumber", Value: 1}}, Options: unique}); err != nil {
		return fmt.Errorf("patients index: %w", err)
	}
	if _, err := s.doctors.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "phoneNumber", Value: 1}}, Options: unique}); err != nil {
		return fmt.Errorf("doctors index: %w", err)
	}
	_, err := s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "phoneNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "department", Value: 1}, {Key: "checkInTime", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("queue entries index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) CreatePrincipal(ctx context.Context, input store.CreatePrincipalInput) (models.Principal, error) {
	if !models.ValidRole(input.Role) {
		return models.Principal{}, store.ErrInvalidRole
	}
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.PhoneNumber) == "" {
		return models.Principal{}, store.ErrMissingFields
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var (
		principal models.Principal
		err       error
	)
	if input.Role == models.RoleDoctor {
		doc := doctorDocument{
			ID:                         primitive.NewObjectID(),
			Name:                       input.Name,
			PhoneNumber:                input.PhoneNumber,
			LoginCodeHash:              input.LoginCodeHash,
			Department:                 input.Department,
			Status:                     models.DoctorOffline,
			AverageConsultationMinutes: models.DefaultConsultationMinutes,
			CreatedAt:                  createdAt,
		}
		_, err = s.doctors.InsertOne(ctx, doc)
		principal = doc.principal()
	} else {
		doc := patientDocument{
			ID:            primitive.NewObjectID(),
			Name:          input.Name,
			PhoneNumber:   input.PhoneNumber,
			LoginCodeHash: input.LoginCodeHash,
			CreatedAt:     createdAt,
		}
		_, err = s.patients.InsertOne(ctx, doc)
		principal = doc.principal()
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Principal{}, store.ErrPhoneTaken
		}
		return models.Principal{}, err
	}
	return principal, nil
}

func (s *Store) FindCredentials(ctx context.Context, role, phoneNumber string) (models.Principal, string, error) {
	filter := bson.M{"phoneNumber": phoneNumber}
	switch role {
	case models.RolePatient:
		var doc patientDocument
		if err := s.patients.FindOne(ctx, filter).Decode(&doc); err != nil {
			return models.Principal{}, "", notFound(err, store.ErrPrincipalNotFound)
		}
		return doc.principal(), doc.LoginCodeHash, nil
	case models.RoleDoctor:
		var doc doctorDocument
		if err := s.doctors.FindOne(ctx, filter).Decode(&doc); err != nil {
			return models.Principal{}, "", notFound(err, store.ErrPrincipalNotFound)
		}
		return doc.principal(), doc.LoginCodeHash, nil
	default:
		return models.Principal{}, "", store.ErrInvalidRole
	}
}

func (s *Store) GetPrincipal(ctx context.Context, role, id string) (models.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Principal{}, store.ErrPrincipalNotFound
	}
	filter := bson.M{"_id": oid}
	switch role {
	case models.RolePatient:
		var doc patientDocument
		if err := s.patients.FindOne(ctx, filter).Decode(&doc); err != nil {
			return models.Principal{}, notFound(err, store.ErrPrincipalNotFound)
		}
		return doc.principal(), nil
	case models.RoleDoctor:
		var doc doctorDocument
		if err := s.doctors.FindOne(ctx, filter).Decode(&doc); err != nil {
			return models.Principal{}, notFound(err, store.ErrPrincipalNotFound)
		}
		return doc.principal(), nil
	default:
		return models.Principal{}, store.ErrInvalidRole
	}
}

func (s *Store) ListDoctors(ctx context.Context) ([]models.DoctorListing, error) {
	cursor, err := s.doctors.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []doctorDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	doctors := make([]models.DoctorListing, 0, len(docs))
	for _, doc := range docs {
		doctors = append(doctors, doc.principal().Listing())
	}
	return doctors, nil
}

func (s *Store) CheckIn(ctx context.Context, input store.CheckInInput) (store.CheckInResult, error) {
	if err := input.Validate(); err != nil {
		return store.CheckInResult{}, err
	}
	now := input.CheckInTime
	if now.IsZero() {
		now = time.Now().UTC()
	}

	count, err := s.doctors.CountDocuments(ctx, bson.M{"phoneNumber": input.PhoneNumber})
	if err != nil {
		return store.CheckInResult{}, err
	}
	if count > 0 {
		return store.CheckInResult{}, store.ErrPhoneIsDoctor
	}

	var result store.CheckInResult
	patient, created, err := s.upsertPatient(ctx, input, now)
	if err != nil {
		return store.CheckInResult{}, err
	}
	result.PatientCreated = created

	number, err := s.nextQueueNumber(ctx, input.Department)
	if err != nil {
		return store.CheckInResult{}, err
	}

	entry, created, err := s.upsertActiveEntry(ctx, input, patient.ID, number, now)
	if err != nil {
		return store.CheckInResult{}, err
	}
	result.Entry = entry.entry()
	result.Created = created
	return result, nil
}

func (s *Store) ListActive(ctx context.Context, department string) ([]models.QueueEntry, error) {
	filter := bson.M{"active": true}
	if department != "" {
		filter["department"] = department
	}
	opts := options.Find().SetSort(bson.D{{Key: "checkInTime", Value: 1}, {Key: "queueNumber", Value: 1}})
	return s.findEntries(ctx, filter, opts)
}

func (s *Store) ListAll(ctx context.Context, since time.Time) ([]models.QueueEntry, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["createdAt"] = bson.M{"$gte": since}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.findEntries(ctx, filter, opts)
}

func (s *Store) Advance(ctx context.Context, input store.AdvanceInput) (models.QueueEntry, error) {
	if !store.ValidStatus(input.Status) {
		return models.QueueEntry{}, store.ErrInvalidStatus
	}
	entryID, err := primitive.ObjectIDFromHex(input.EntryID)
	if err != nil {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	doctorID, err := primitive.ObjectIDFromHex(input.DoctorID)
	if err != nil {
		return models.QueueEntry{}, store.ErrPrincipalNotFound
	}
	at := input.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var current entryDocument
	if err := s.entries.FindOne(ctx, bson.M{"_id": entryID}).Decode(&current); err != nil {
		return models.QueueEntry{}, notFound(err, store.ErrEntryNotFound)
	}
	if !store.ValidTransition(current.Status, input.Status) {
		return models.QueueEntry{}, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, input.Status)
	}

	var doctor doctorDocument
	if err := s.doctors.FindOne(ctx, bson.M{"_id": doctorID}).Decode(&doctor); err != nil {
		return models.QueueEntry{}, notFound(err, store.ErrPrincipalNotFound)
	}

	set := bson.M{
		"status":    input.Status,
		"active":    input.Status != models.StatusCompleted,
		"updatedAt": at,
	}
	switch input.Status {
	case models.StatusCalled:
		set["calledAt"] = at
	case models.StatusInConsultation:
		set["consultationStartedAt"] = at
		if current.DoctorName == "" {
			set["doctorName"] = doctor.Name
		}
	case models.StatusCompleted:
		set["completedAt"] = at
	}

	// The status guard makes a concurrent advance lose instead of overwrite.
	var updated entryDocument
	err = s.entries.FindOneAndUpdate(ctx,
		bson.M{"_id": entryID, "status": current.Status},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.QueueEntry{}, fmt.Errorf("%w: %s changed concurrently", store.ErrInvalidTransition, input.EntryID)
	}
	if err != nil {
		return models.QueueEntry{}, err
	}

	switch input.Status {
	case models.StatusInConsultation:
		_, err = s.doctors.UpdateOne(ctx, bson.M{"_id": doctorID}, bson.M{
			"$set": bson.M{"currentPatient": updated.ID, "status": models.DoctorBusy},
		})
	case models.StatusCompleted:
		_, err = s.doctors.UpdateOne(ctx, bson.M{"_id": doctorID}, bson.M{
			"$set":   bson.M{"status": models.DoctorAvailable},
			"$unset": bson.M{"currentPatient": ""},
		})
	}
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("update doctor %s: %w", input.DoctorID, err)
	}
	return updated.entry(), nil
}

func (s *Store) upsertPatient(ctx context.Context, input store.CheckInInput, now time.Time) (patientDocument, bool, error) {
	existing, err := s.patients.CountDocuments(ctx, bson.M{"phoneNumber": input.PhoneNumber})
	if err != nil {
		return patientDocument{}, false, err
	}
	var hash string
	if existing == 0 {
		if hash, err = input.NewPatientHash(); err != nil {
			return patientDocument{}, false, err
		}
	}

	proposed := primitive.NewObjectID()
	set := bson.M{"name": input.Name}
	unset := bson.M{}
	if input.Age != nil {
		set["age"] = *input.Age
	} else {
		unset["age"] = ""
	}
	if input.Gender != "" {
		set["gender"] = input.Gender
	} else {
		unset["gender"] = ""
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"_id":           proposed,
			"loginCodeHash": hash,
			"createdAt":     now,
		},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc patientDocument
	err = withDuplicateRetry(func() error {
		return s.patients.FindOneAndUpdate(ctx,
			bson.M{"phoneNumber": input.PhoneNumber},
			update,
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&doc)
	})
	if err != nil {
		return patientDocument{}, false, fmt.Errorf("upsert patient: %w", err)
	}
	return doc, doc.ID == proposed, nil
}

func (s *Store) nextQueueNumber(ctx context.Context, department string) (int64, error) {
	var seq sequenceDocument
	err := withDuplicateRetry(func() error {
		return s.sequences.FindOneAndUpdate(ctx,
			bson.M{"_id": department},
			bson.M{"$inc": bson.M{"nextNumber": int64(1)}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&seq)
	})
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return seq.NextNumber, nil
}

func (s *Store) upsertActiveEntry(ctx context.Context, input store.CheckInInput, patientID primitive.ObjectID, number int64, now time.Time) (entryDocument, bool, error) {
	proposed := primitive.NewObjectID()
	set := bson.M{
		"patientId":         patientID,
		"name":              input.Name,
		"department":        input.Department,
		"checkInTime":       now,
		"queueNumber":       number,
		"registrationId":    store.RegistrationID(now.Year(), number),
		"status":            models.StatusWaiting,
		"estimatedWaitTime": input.EstimatedWaitMinutes,
		"updatedAt":         now,
	}
	unset := bson.M{"calledAt": "", "consultationStartedAt": "", "completedAt": ""}
	if input.Age != nil {
		set["age"] = *input.Age
	} else {
		unset["age"] = ""
	}
	if input.Gender != "" {
		set["gender"] = input.Gender
	} else {
		unset["gender"] = ""
	}
	if input.DoctorName != "" {
		set["doctorName"] = input.DoctorName
	} else {
		unset["doctorName"] = ""
	}
	update := bson.M{
		"$set":   set,
		"$unset": unset,
		"$setOnInsert": bson.M{
			"_id":       proposed,
			"createdAt": now,
		},
	}

	var doc entryDocument
	err := withDuplicateRetry(func() error {
		return s.entries.FindOneAndUpdate(ctx,
			bson.M{"phoneNumber": input.PhoneNumber, "active": true},
			update,
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&doc)
	})
	if err != nil {
		return entryDocument{}, false, fmt.Errorf("upsert queue entry: %w", err)
	}
	return doc, doc.ID == proposed, nil
}

func (s *Store) findEntries(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.QueueEntry, error) {
	cursor, err := s.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	entries := make([]models.QueueEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.entry())
	}
	return entries, nil
}

// withDuplicateRetry retries an upsert once; two concurrent upserts on the
// same unique key can both miss and one of them then fails on insert.
func withDuplicateRetry(fn func() error) error {
	err := fn()
	if mongo.IsDuplicateKeyError(err) {
		err = fn()
	}
	return err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}
