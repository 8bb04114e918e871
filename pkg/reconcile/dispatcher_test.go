package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

// fakeTx satisfies database.Tx without touching a real connection
type fakeTx struct {
	committed  int
	rolledBack int
	closed     bool
}

func (f *fakeTx) GetContext(context.Context, any, string, ...any) error    { return nil }
func (f *fakeTx) SelectContext(context.Context, any, string, ...any) error { return nil }
func (f *fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeTx) QueryRowxContext(context.Context, string, ...any) *sqlx.Row { return nil }
func (f *fakeTx) QueryxContext(context.Context, string, ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (f *fakeTx) IsOpen() bool { return !f.closed }
func (f *fakeTx) Commit(context.Context) error {
	if f.closed {
		return nil
	}
	f.committed++
	f.closed = true
	return nil
}
func (f *fakeTx) Rollback(context.Context) error {
	if f.closed {
		return nil
	}
	f.rolledBack++
	f.closed = true
	return nil
}

// fakeDB hands out fakeTx transactions
type fakeDB struct {
	txs      []*fakeTx
	beginErr error
}

func (f *fakeDB) GetContext(context.Context, any, string, ...any) error    { return nil }
func (f *fakeDB) SelectContext(context.Context, any, string, ...any) error { return nil }
func (f *fakeDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeDB) QueryRowxContext(context.Context, string, ...any) *sqlx.Row { return nil }
func (f *fakeDB) QueryxContext(context.Context, string, ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (f *fakeDB) BeginTxx(context.Context, *sql.TxOptions) (*sqlx.Tx, error) { return nil, nil }
func (f *fakeDB) PingContext(context.Context) error                          { return nil }
func (f *fakeDB) Close() error                                               { return nil }
func (f *fakeDB) Unsafe() *sqlx.DB                                           { return nil }
func (f *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	if f.beginErr != nil {
		return ctx, nil, f.beginErr
	}
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return ctx, tx, nil
}

// fakeLedger records inserted entries and status transitions in memory
type fakeLedger struct {
	entries     []*models.LedgerEntry
	transitions map[string]models.LedgerStatus
	reasons     map[string]string
	messages    map[string]string
	insertErr   error
	nextID      int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		transitions: make(map[string]models.LedgerStatus),
		reasons:     make(map[string]string),
		messages:    make(map[string]string),
	}
}

func (f *fakeLedger) Insert(_ context.Context, entry *models.LedgerEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	entry.ID = string(rune('a' + f.nextID - 1))
	entry.Status = models.LedgerStatusPending
	entry.ServerTimestamp = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) Get(_ context.Context, _, id string) (*models.LedgerEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "ledger entry not found")
}

func (f *fakeLedger) GetForUpdate(ctx context.Context, userID, id string) (*models.LedgerEntry, error) {
	return f.Get(ctx, userID, id)
}

func (f *fakeLedger) MarkSuccess(_ context.Context, id string) error {
	f.transitions[id] = models.LedgerStatusSuccess
	return nil
}

func (f *fakeLedger) MarkConflict(_ context.Context, id, reason string) error {
	f.transitions[id] = models.LedgerStatusConflict
	f.reasons[id] = reason
	return nil
}

func (f *fakeLedger) MarkError(_ context.Context, id, message string) error {
	f.transitions[id] = models.LedgerStatusError
	f.messages[id] = message
	return nil
}

// scriptedReconciler returns canned results and records what it was asked
type scriptedReconciler struct {
	outcome models.SyncOutcome
	err     error
	calls   []string
	modes   []Mode
	reqs    []*models.MutationRequest
}

func (s *scriptedReconciler) Create(_ context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error) {
	s.calls = append(s.calls, "create")
	s.modes = append(s.modes, mode)
	s.reqs = append(s.reqs, req)
	return s.outcome, s.err
}

func (s *scriptedReconciler) Update(_ context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error) {
	s.calls = append(s.calls, "update")
	s.modes = append(s.modes, mode)
	s.reqs = append(s.reqs, req)
	return s.outcome, s.err
}

func (s *scriptedReconciler) Delete(_ context.Context, req *models.MutationRequest, mode Mode) (models.SyncOutcome, error) {
	s.calls = append(s.calls, "delete")
	s.modes = append(s.modes, mode)
	s.reqs = append(s.reqs, req)
	return s.outcome, s.err
}

type fakeTelemetry struct {
	reconciled []models.SyncOutcome
	resolved   []*models.ConflictResolution
}

func (f *fakeTelemetry) EmitReconciled(_ context.Context, _ *models.LedgerEntry, outcome models.SyncOutcome) {
	f.reconciled = append(f.reconciled, outcome)
}

func (f *fakeTelemetry) EmitConflictResolved(_ context.Context, _ *models.LedgerEntry, resolution *models.ConflictResolution) {
	f.resolved = append(f.resolved, resolution)
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID string) {
	f.users = append(f.users, userID)
}

func validMutation(action models.ActionKind, ref string) models.MutationRequest {
	return models.MutationRequest{
		Action:          action,
		Entity:          models.EntityCustomer,
		EntityRef:       ref,
		Payload:         []byte(`{"name": "Martha Jones"}`),
		ClientTimestamp: time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC),
	}
}

func newTestDispatcher(db *fakeDB, led *fakeLedger, rec Reconciler, telemetry Telemetry, invalidator StatusInvalidator) *Dispatcher {
	registry := Registry{models.EntityCustomer: rec}
	return NewDispatcher(db, led, registry, telemetry, invalidator, testLogger(), time.Second)
}

func TestReconcileBatch_OrderAndIdentity(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{outcome: models.SuccessOutcome("cust-1")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	mutations := []models.MutationRequest{
		validMutation(models.ActionCreate, "local-1"),
		validMutation(models.ActionUpdate, "cust-1"),
		validMutation(models.ActionDelete, "cust-1"),
	}

	outcomes := d.ReconcileBatch(context.Background(), "user-1", "device-1", mutations)

	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"create", "update", "delete"}, rec.calls)
	for i, outcome := range outcomes {
		assert.True(t, outcome.Success, "outcome %d", i)
		assert.NotEmpty(t, outcome.LedgerEntryID, "outcome %d", i)
	}
	require.Len(t, led.entries, 3)
	for _, entry := range led.entries {
		assert.Equal(t, "user-1", entry.UserID)
		assert.Equal(t, "device-1", entry.DeviceID)
	}
}

func TestReconcileBatch_ContinuesPastFailures(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{err: errors.New("connection reset")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	mutations := []models.MutationRequest{
		validMutation(models.ActionCreate, "local-1"),
		validMutation(models.ActionCreate, "local-2"),
	}

	outcomes := d.ReconcileBatch(context.Background(), "user-1", "device-1", mutations)

	require.Len(t, outcomes, 2)
	assert.Len(t, rec.calls, 2)
	for _, outcome := range outcomes {
		assert.False(t, outcome.Success)
		assert.Equal(t, "internal reconciliation failure", outcome.ErrorMessage)
	}
}

func TestReconcile_ValidationRejectedBeforeAnyWrite(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{outcome: models.SuccessOutcome("cust-1")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	req := validMutation(models.ActionKind("upsert"), "cust-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.Contains(t, outcome.ErrorMessage, "invalid mutation")
	assert.Empty(t, led.entries)
	assert.Empty(t, rec.calls)
	assert.Empty(t, db.txs)
}

func TestReconcile_UnregisteredEntity(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	d := NewDispatcher(db, led, Registry{}, nil, nil, testLogger(), time.Second)

	req := validMutation(models.ActionCreate, "local-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.Contains(t, outcome.ErrorMessage, "unsupported entity kind")
	assert.Empty(t, led.entries)
}

func TestReconcile_SuccessTransitionsLedger(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{outcome: models.SuccessOutcome("cust-1")}
	telemetry := &fakeTelemetry{}
	invalidator := &fakeInvalidator{}
	d := newTestDispatcher(db, led, rec, telemetry, invalidator)

	req := validMutation(models.ActionCreate, "local-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.True(t, outcome.Success)
	require.Len(t, led.entries, 1)
	entry := led.entries[0]
	assert.Equal(t, models.LedgerStatusSuccess, led.transitions[entry.ID])
	assert.Equal(t, entry.ID, outcome.LedgerEntryID)

	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].committed)
	assert.Equal(t, 0, db.txs[0].rolledBack)

	require.Len(t, telemetry.reconciled, 1)
	assert.Equal(t, []string{"user-1"}, invalidator.users)
}

func TestReconcile_ConflictTransitionsLedger(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{outcome: models.ConflictOutcome(ReasonStale, []byte(`{"id": "cust-1"}`))}
	d := newTestDispatcher(db, led, rec, nil, nil)

	req := validMutation(models.ActionUpdate, "cust-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.True(t, outcome.Conflict)
	require.Len(t, led.entries, 1)
	entry := led.entries[0]
	assert.Equal(t, models.LedgerStatusConflict, led.transitions[entry.ID])
	assert.Equal(t, ReasonStale, led.reasons[entry.ID])
	assert.Equal(t, models.LedgerStatusConflict, entry.Status)

	// a conflict is a committed business outcome, not a rollback
	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].committed)
}

func TestReconcile_BusinessErrorTransitionsLedger(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{outcome: models.ErrorOutcome("target record not found")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	req := validMutation(models.ActionUpdate, "no-such-id")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.Equal(t, "target record not found", outcome.ErrorMessage)
	entry := led.entries[0]
	assert.Equal(t, models.LedgerStatusError, led.transitions[entry.ID])
	assert.Equal(t, "target record not found", led.messages[entry.ID])
}

func TestReconcile_InfraFaultRollsBackAndRecordsError(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{err: errors.New("connection reset")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	req := validMutation(models.ActionCreate, "local-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	// internal detail never leaks to the client
	assert.Equal(t, "internal reconciliation failure", outcome.ErrorMessage)

	entry := led.entries[0]
	assert.Equal(t, models.LedgerStatusError, led.transitions[entry.ID])
	assert.Equal(t, "internal reconciliation failure", led.messages[entry.ID])

	require.Len(t, db.txs, 1)
	assert.Equal(t, 1, db.txs[0].rolledBack)
	assert.Equal(t, 0, db.txs[0].committed)
}

func TestReconcile_HTTPErrorMessagePassesThrough(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	rec := &scriptedReconciler{err: httperror.NewHTTPError(http.StatusConflict, "record is locked by another sync")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	req := validMutation(models.ActionUpdate, "cust-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.Contains(t, outcome.ErrorMessage, "record is locked by another sync")
}

func TestReconcile_LedgerInsertFailure(t *testing.T) {
	db := &fakeDB{}
	led := newFakeLedger()
	led.insertErr = errors.New("disk full")
	rec := &scriptedReconciler{outcome: models.SuccessOutcome("cust-1")}
	d := newTestDispatcher(db, led, rec, nil, nil)

	req := validMutation(models.ActionCreate, "local-1")
	req.UserID = "user-1"
	outcome := d.Reconcile(context.Background(), &req)

	assert.Equal(t, "failed to record sync attempt", outcome.ErrorMessage)
	assert.Empty(t, rec.calls)
}
