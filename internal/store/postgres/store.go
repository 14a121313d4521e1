package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthqueue/internal/models"
	"healthqueue/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const entryColumns = `
	entry_id::text, patient_id::text, name, age, gender, phone_number, department, doctor_name,
	check_in_time, queue_number, registration_id, status, estimated_wait_minutes,
	called_at, consultation_started_at, completed_at, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
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

	principal := models.Principal{
		ID:          uuid.NewString(),
		Role:        input.Role,
		Name:        input.Name,
		PhoneNumber: input.PhoneNumber,
		CreatedAt:   createdAt,
	}

	var err error
	if input.Role == models.RoleDoctor {
		principal.Department = input.Department
		principal.Status = models.DoctorOffline
		principal.AverageConsultationMinutes = models.DefaultConsultationMinutes
		_, err = s.pool.Exec(ctx, `
			INSERT INTO doctors (doctor_id, name, phone_number, login_code_hash, department, status, average_consultation_minutes, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, principal.ID, principal.Name, principal.PhoneNumber, input.LoginCodeHash, nullIfEmpty(principal.Department), principal.Status, principal.AverageConsultationMinutes, createdAt)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO patients (patient_id, name, phone_number, login_code_hash, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, principal.ID, principal.Name, principal.PhoneNumber, input.LoginCodeHash, createdAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return models.Principal{}, store.ErrPhoneTaken
		}
		return models.Principal{}, err
	}
	return principal, nil
}

func (s *Store) FindCredentials(ctx context.Context, role, phoneNumber string) (models.Principal, string, error) {
	var (
		principal models.Principal
		hash      string
		err       error
	)
	switch role {
	case models.RolePatient:
		principal, hash, err = scanPatient(s.pool.QueryRow(ctx, patientQuery+" WHERE phone_number = $1", phoneNumber))
	case models.RoleDoctor:
		principal, hash, err = scanDoctor(s.pool.QueryRow(ctx, doctorQuery+" WHERE phone_number = $1", phoneNumber))
	default:
		return models.Principal{}, "", store.ErrInvalidRole
	}
	if err != nil {
		return models.Principal{}, "", err
	}
	return principal, hash, nil
}

func (s *Store) GetPrincipal(ctx context.Context, role, id string) (models.Principal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Principal{}, store.ErrPrincipalNotFound
	}
	var (
		principal models.Principal
		err       error
	)
	switch role {
	case models.RolePatient:
		principal, _, err = scanPatient(s.pool.QueryRow(ctx, patientQuery+" WHERE patient_id = $1", id))
	case models.RoleDoctor:
		principal, _, err = scanDoctor(s.pool.QueryRow(ctx, doctorQuery+" WHERE doctor_id = $1", id))
	default:
		return models.Principal{}, store.ErrInvalidRole
	}
	return principal, err
}

func (s *Store) ListDoctors(ctx context.Context) ([]models.DoctorListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id::text, name, COALESCE(department, ''), status
		FROM doctors
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doctors := make([]models.DoctorListing, 0)
	for rows.Next() {
		var doctor models.DoctorListing
		if err := rows.Scan(&doctor.ID, &doctor.Name, &doctor.Department, &doctor.Status); err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (s *Store) CheckIn(ctx context.Context, input store.CheckInInput) (result store.CheckInResult, err error) {
	if err = input.Validate(); err != nil {
		return store.CheckInResult{}, err
	}
	now := input.CheckInTime
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.CheckInResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var isDoctor bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE phone_number = $1)`, input.PhoneNumber).Scan(&isDoctor); err != nil {
		return store.CheckInResult{}, err
	}
	if isDoctor {
		err = store.ErrPhoneIsDoctor
		return store.CheckInResult{}, err
	}

	var patientExists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE phone_number = $1)`, input.PhoneNumber).Scan(&patientExists); err != nil {
		return store.CheckInResult{}, err
	}
	var hash string
	if !patientExists {
		if hash, err = input.NewPatientHash(); err != nil {
			return store.CheckInResult{}, err
		}
	}

	var patientID string
	row := tx.QueryRow(ctx, `
		INSERT INTO patients (patient_id, name, phone_number, login_code_hash, age, gender, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (phone_number)
		DO UPDATE SET name = EXCLUDED.name, age = EXCLUDED.age, gender = EXCLUDED.gender
		RETURNING patient_id::text, (xmax = 0)
	`, uuid.NewString(), input.Name, input.PhoneNumber, hash, input.Age, nullIfEmpty(input.Gender), now)
	if err = row.Scan(&patientID, &result.PatientCreated); err != nil {
		return store.CheckInResult{}, err
	}

	number, err := nextQueueNumber(ctx, tx, input.Department)
	if err != nil {
		return store.CheckInResult{}, err
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO queue_entries (
			entry_id, patient_id, name, age, gender, phone_number, department, doctor_name,
			check_in_time, queue_number, registration_id, status, estimated_wait_minutes,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$9,$9)
		ON CONFLICT (phone_number) WHERE status <> 'completed'
		DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			department = EXCLUDED.department,
			doctor_name = EXCLUDED.doctor_name,
			check_in_time = EXCLUDED.check_in_time,
			queue_number = EXCLUDED.queue_number,
			registration_id = EXCLUDED.registration_id,
			status = EXCLUDED.status,
			estimated_wait_minutes = EXCLUDED.estimated_wait_minutes,
			called_at = NULL,
			consultation_started_at = NULL,
			completed_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING `+entryColumns+`, (xmax = 0)
	`, uuid.NewString(), patientID, input.Name, input.Age, nullIfEmpty(input.Gender), input.PhoneNumber,
		input.Department, nullIfEmpty(input.DoctorName), now, number, store.RegistrationID(now.Year(), number),
		models.StatusWaiting, input.EstimatedWaitMinutes)

	result.Entry, result.Created, err = scanEntryWithFlag(row)
	if err != nil {
		return store.CheckInResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.CheckInResult{}, err
	}
	return result, nil
}

func (s *Store) ListActive(ctx context.Context, department string) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE status <> 'completed'`
	args := []interface{}{}
	if department != "" {
		query += " AND department = $1"
		args = append(args, department)
	}
	query += " ORDER BY check_in_time ASC, queue_number ASC"
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) ListAll(ctx context.Context, since time.Time) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries`
	args := []interface{}{}
	if !since.IsZero() {
		query += " WHERE created_at >= $1"
		args = append(args, since)
	}
	query += " ORDER BY created_at DESC"
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) Advance(ctx context.Context, input store.AdvanceInput) (entry models.QueueEntry, err error) {
	if !store.ValidStatus(input.Status) {
		return models.QueueEntry{}, store.ErrInvalidStatus
	}
	if _, parseErr := uuid.Parse(input.EntryID); parseErr != nil {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if _, parseErr := uuid.Parse(input.DoctorID); parseErr != nil {
		return models.QueueEntry{}, store.ErrPrincipalNotFound
	}
	at := input.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current string
	if err = tx.QueryRow(ctx, `SELECT status FROM queue_entries WHERE entry_id = $1 FOR UPDATE`, input.EntryID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	if !store.ValidTransition(current, input.Status) {
		err = fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, input.Status)
		return models.QueueEntry{}, err
	}

	var doctorName string
	if err = tx.QueryRow(ctx, `SELECT name FROM doctors WHERE doctor_id = $1 FOR UPDATE`, input.DoctorID).Scan(&doctorName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrPrincipalNotFound
		}
		return models.QueueEntry{}, err
	}

	var update string
	switch input.Status {
	case models.StatusCalled:
		update = "called_at = $3"
	case models.StatusInConsultation:
		update = "consultation_started_at = $3, doctor_name = COALESCE(NULLIF(doctor_name, ''), $4)"
	case models.StatusCompleted:
		update = "completed_at = $3"
	}
	args := []interface{}{input.EntryID, input.Status, at}
	if input.Status == models.StatusInConsultation {
		args = append(args, doctorName)
	}
	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $2, updated_at = $3, `+update+`
		WHERE entry_id = $1
		RETURNING `+entryColumns, args...)
	if entry, err = scanEntry(row); err != nil {
		return models.QueueEntry{}, err
	}

	switch input.Status {
	case models.StatusInConsultation:
		_, err = tx.Exec(ctx, `UPDATE doctors SET current_patient = $2, status = $3 WHERE doctor_id = $1`, input.DoctorID, entry.EntryID, models.DoctorBusy)
	case models.StatusCompleted:
		_, err = tx.Exec(ctx, `UPDATE doctors SET current_patient = NULL, status = $2 WHERE doctor_id = $1`, input.DoctorID, models.DoctorAvailable)
	}
	if err != nil {
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nextQueueNumber(ctx context.Context, tx pgx.Tx, department string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO department_sequences (department, next_number)
		VALUES ($1, 1)
		ON CONFLICT (department)
		DO UPDATE SET next_number = department_sequences.next_number + 1
		RETURNING next_number
	`, department)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

const patientQuery = `
	SELECT patient_id::text, name, phone_number, login_code_hash, age, gender, created_at
	FROM patients`

const doctorQuery = `
	SELECT doctor_id::text, name, phone_number, login_code_hash, department, status,
		current_patient::text, average_consultation_minutes, created_at
	FROM doctors`

func scanPatient(row pgx.Row) (models.Principal, string, error) {
	var (
		p      models.Principal
		hash   string
		age    sql.NullInt32
		gender sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PhoneNumber, &hash, &age, &gender, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Principal{}, "", store.ErrPrincipalNotFound
		}
		return models.Principal{}, "", err
	}
	p.Role = models.RolePatient
	p.Age = nullIntPtr(age)
	p.Gender = gender.String
	return p, hash, nil
}

func scanDoctor(row pgx.Row) (models.Principal, string, error) {
	var (
		p              models.Principal
		hash           string
		department     sql.NullString
		currentPatient sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PhoneNumber, &hash, &department, &p.Status, &currentPatient, &p.AverageConsultationMinutes, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Principal{}, "", store.ErrPrincipalNotFound
		}
		return models.Principal{}, "", err
	}
	p.Role = models.RoleDoctor
	p.Department = department.String
	p.CurrentPatient = currentPatient.String
	return p, hash, nil
}

func scanEntry(row pgx.Row) (models.QueueEntry, error) {
	entry, _, err := scanEntryRow(row, false)
	return entry, err
}

func scanEntryWithFlag(row pgx.Row) (models.QueueEntry, bool, error) {
	return scanEntryRow(row, true)
}

func scanEntryRow(row pgx.Row, withFlag bool) (models.QueueEntry, bool, error) {
	var (
		entry                 models.QueueEntry
		age                   sql.NullInt32
		gender                sql.NullString
		doctorName            sql.NullString
		calledAt              sql.NullTime
		consultationStartedAt sql.NullTime
		completedAt           sql.NullTime
		flag                  bool
	)
	dest := []interface{}{
		&entry.EntryID, &entry.PatientID, &entry.Name, &age, &gender, &entry.PhoneNumber, &entry.Department, &doctorName,
		&entry.CheckInTime, &entry.QueueNumber, &entry.RegistrationID, &entry.Status, &entry.EstimatedWaitMinutes,
		&calledAt, &consultationStartedAt, &completedAt, &entry.CreatedAt, &entry.UpdatedAt,
	}
	if withFlag {
		dest = append(dest, &flag)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, false, err
	}
	entry.Age = nullIntPtr(age)
	entry.Gender = gender.String
	entry.DoctorName = doctorName.String
	entry.CalledAt = nullTimePtr(calledAt)
	entry.ConsultationStartedAt = nullTimePtr(consultationStartedAt)
	entry.CompletedAt = nullTimePtr(completedAt)
	return entry, flag, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullIntPtr(value sql.NullInt32) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int32)
	return &v
}
