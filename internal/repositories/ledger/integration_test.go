package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/internal/repositories/conflictresolution"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func newPendingEntry(userID string, action models.ActionKind) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:          userID,
		DeviceID:        "device-1",
		Action:          action,
		Entity:          models.EntityCustomer,
		EntityRef:       uuid.New().String(),
		ClientTimestamp: time.Now().UTC().Add(-time.Minute),
		PayloadSnapshot: json.RawMessage(`{"name": "Martha Jones"}`),
	}
}

// assertStatusCode asserts that err is an HTTP error with the given code
func assertStatusCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, code, httperror.GetStatusCode(err), "expected %d, got: %d", code, httperror.GetStatusCode(err))
}

func TestIntegrationLedger_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := ledger.NewRepository(db, getTestLogger())

	userID := uuid.New().String()
	ctx := context.Background()

	entry := newPendingEntry(userID, models.ActionUpdate)
	require.NoError(t, repo.Insert(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.LedgerStatusPending, entry.Status)
	assert.False(t, entry.ServerTimestamp.IsZero())

	fetched, err := repo.Get(ctx, userID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, fetched.ID)
	assert.Equal(t, models.LedgerStatusPending, fetched.Status)
	assert.JSONEq(t, `{"name": "Martha Jones"}`, string(fetched.PayloadSnapshot))

	// entries are owner-scoped
	_, err = repo.Get(ctx, uuid.New().String(), entry.ID)
	assertStatusCode(t, err, http.StatusNotFound)

	require.NoError(t, repo.MarkConflict(ctx, entry.ID, "server version is newer"))
	fetched, err = repo.Get(ctx, userID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusConflict, fetched.Status)
	require.NotNil(t, fetched.ConflictReason)
	assert.Equal(t, "server version is newer", *fetched.ConflictReason)

	// conflict is not a valid source for error
	assertStatusCode(t, repo.MarkError(ctx, entry.ID, "boom"), http.StatusConflict)

	// conflict -> success is the resolution path
	require.NoError(t, repo.MarkSuccess(ctx, entry.ID))
	fetched, err = repo.Get(ctx, userID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusSuccess, fetched.Status)

	// success is terminal
	assertStatusCode(t, repo.MarkSuccess(ctx, entry.ID), http.StatusConflict)
}

func TestIntegrationLedger_StatusAggregate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := ledger.NewRepository(db, getTestLogger())

	userID := uuid.New().String()
	ctx := context.Background()

	// fresh user has a zero snapshot
	status, err := repo.Status(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, status.LastSuccessfulSync)
	assert.Equal(t, 0, status.PendingChangeCount)
	assert.False(t, status.HasUnresolvedConflicts)

	succeeded := newPendingEntry(userID, models.ActionCreate)
	require.NoError(t, repo.Insert(ctx, succeeded))
	require.NoError(t, repo.MarkSuccess(ctx, succeeded.ID))

	conflicted := newPendingEntry(userID, models.ActionUpdate)
	require.NoError(t, repo.Insert(ctx, conflicted))
	require.NoError(t, repo.MarkConflict(ctx, conflicted.ID, "matching record already exists"))

	errored := newPendingEntry(userID, models.ActionDelete)
	require.NoError(t, repo.Insert(ctx, errored))
	require.NoError(t, repo.MarkError(ctx, errored.ID, "internal reconciliation failure"))

	status, err = repo.Status(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, status.LastSuccessfulSync)
	assert.Equal(t, 2, status.PendingChangeCount)
	assert.True(t, status.HasUnresolvedConflicts)
}

func TestIntegrationLedger_ListConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := ledger.NewRepository(db, getTestLogger())

	userID := uuid.New().String()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := newPendingEntry(userID, models.ActionUpdate)
		require.NoError(t, repo.Insert(ctx, entry))
		require.NoError(t, repo.MarkConflict(ctx, entry.ID, "server version is newer"))
	}
	resolved := newPendingEntry(userID, models.ActionUpdate)
	require.NoError(t, repo.Insert(ctx, resolved))
	require.NoError(t, repo.MarkConflict(ctx, resolved.ID, "server version is newer"))
	require.NoError(t, repo.MarkSuccess(ctx, resolved.ID))

	page, err := repo.ListConflicts(ctx, userID, nil, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PageSize)

	page, err = repo.ListConflicts(ctx, userID, nil, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	// entity filter excludes other kinds
	appointment := models.EntityAppointment
	page, err = repo.ListConflicts(ctx, userID, &appointment, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
	assert.Empty(t, page.Items)
}

func TestIntegrationConflictResolution_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	ledgerRepo := ledger.NewRepository(db, getTestLogger())
	resolutionRepo := conflictresolution.NewRepository(db, getTestLogger())

	userID := uuid.New().String()
	ctx := context.Background()

	entry := newPendingEntry(userID, models.ActionUpdate)
	require.NoError(t, ledgerRepo.Insert(ctx, entry))
	require.NoError(t, ledgerRepo.MarkConflict(ctx, entry.ID, "server version is newer"))

	first := &models.ConflictResolution{
		LedgerEntryID: entry.ID,
		UserID:        userID,
		Kind:          models.ResolutionServerWins,
		ResolvedBy:    userID,
	}
	inserted, err := resolutionRepo.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	// second decision for the same entry is a no-op
	second := &models.ConflictResolution{
		LedgerEntryID: entry.ID,
		UserID:        userID,
		Kind:          models.ResolutionClientWins,
		ResolvedBy:    userID,
	}
	inserted, err = resolutionRepo.Insert(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := resolutionRepo.GetByLedgerEntry(ctx, userID, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, models.ResolutionServerWins, stored.Kind)
}
