package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"healthqueue/internal/models"
	"healthqueue/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentCheckInsTakeDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := st.CheckIn(ctx, store.CheckInInput{
				Name:                 fmt.Sprintf("Patient %d", i),
				PhoneNumber:          fmt.Sprintf("90000%05d", i),
				Department:           "Cardiology",
				EstimatedWaitMinutes: 20,
				LoginCodeHash:        "hash",
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- res.Entry.QueueNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("check in: %v", err)
	}
	var got []int64
	for number := range numbers {
		got = append(got, number)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, n)
	for i, number := range got {
		assert.Equal(t, int64(i+1), number)
	}
}

func TestCheckInOverwriteAndAdvance(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	doctor, err := st.CreatePrincipal(ctx, store.CreatePrincipalInput{
		Role: models.RoleDoctor, Name: "Dr. Mehta", PhoneNumber: "8000000000", LoginCodeHash: "hash",
	})
	require.NoError(t, err)

	_, err = st.CheckIn(ctx, store.CheckInInput{Name: "Doc", PhoneNumber: "8000000000", Department: "ENT"})
	assert.ErrorIs(t, err, store.ErrPhoneIsDoctor)

	age := 34
	first, err := st.CheckIn(ctx, store.CheckInInput{
		Name: "Asha Rao", Age: &age, Gender: "female", PhoneNumber: "9990001111",
		Department: "Cardiology", EstimatedWaitMinutes: 20, LoginCodeHash: "hash",
	})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.PatientCreated)
	assert.Equal(t, fmt.Sprintf("REG-%d-001", first.Entry.CheckInTime.Year()), first.Entry.RegistrationID)

	called, err := st.Advance(ctx, store.AdvanceInput{EntryID: first.Entry.EntryID, DoctorID: doctor.ID, Status: models.StatusCalled})
	require.NoError(t, err)
	require.NotNil(t, called.CalledAt)

	again, err := st.CheckIn(ctx, store.CheckInInput{
		Name: "Asha R", PhoneNumber: "9990001111", Department: "Cardiology", EstimatedWaitMinutes: 20,
	})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.False(t, again.PatientCreated)
	assert.Equal(t, first.Entry.EntryID, again.Entry.EntryID)
	assert.Equal(t, int64(2), again.Entry.QueueNumber)
	assert.Equal(t, models.StatusWaiting, again.Entry.Status)
	assert.Nil(t, again.Entry.CalledAt)

	inConsult, err := st.Advance(ctx, store.AdvanceInput{EntryID: first.Entry.EntryID, DoctorID: doctor.ID, Status: models.StatusInConsultation})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Mehta", inConsult.DoctorName)

	busy, err := st.GetPrincipal(ctx, models.RoleDoctor, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DoctorBusy, busy.Status)
	assert.Equal(t, first.Entry.EntryID, busy.CurrentPatient)

	_, err = st.Advance(ctx, store.AdvanceInput{EntryID: first.Entry.EntryID, DoctorID: doctor.ID, Status: models.StatusCalled})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = st.Advance(ctx, store.AdvanceInput{EntryID: first.Entry.EntryID, DoctorID: doctor.ID, Status: models.StatusCompleted})
	require.NoError(t, err)

	free, err := st.GetPrincipal(ctx, models.RoleDoctor, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DoctorAvailable, free.Status)
	assert.Empty(t, free.CurrentPatient)

	active, err := st.ListActive(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)

	next, err := st.CheckIn(ctx, store.CheckInInput{Name: "Asha R", PhoneNumber: "9990001111", Department: "Cardiology"})
	require.NoError(t, err)
	assert.True(t, next.Created)

	all, err := st.ListAll(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, next.Entry.EntryID, all[0].EntryID)

	_, err = st.Advance(ctx, store.AdvanceInput{EntryID: "not-a-uuid", DoctorID: doctor.ID, Status: models.StatusCalled})
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

func TestCreatePrincipalAndCredentials(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	hash, err := store.HashLoginCode("123456")
	require.NoError(t, err)
	patient, err := st.CreatePrincipal(ctx, store.CreatePrincipalInput{
		Role: models.RolePatient, Name: "Kiran", PhoneNumber: "7000000000", LoginCodeHash: hash,
	})
	require.NoError(t, err)

	_, err = st.CreatePrincipal(ctx, store.CreatePrincipalInput{
		Role: models.RolePatient, Name: "Other", PhoneNumber: "7000000000", LoginCodeHash: hash,
	})
	assert.ErrorIs(t, err, store.ErrPhoneTaken)

	got, err := store.Authenticate(ctx, st, models.RolePatient, "7000000000", "123456")
	require.NoError(t, err)
	assert.Equal(t, patient.ID, got.ID)

	_, err = store.Authenticate(ctx, st, models.RoleDoctor, "7000000000", "123456")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	_, err = st.GetPrincipal(ctx, models.RolePatient, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrPrincipalNotFound)
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execSQL(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execSQL(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), cleanup
}

func execSQL(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
