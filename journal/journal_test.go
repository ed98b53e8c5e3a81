package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docanchor.dev/docanchor/errors"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "journal.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zaptest.NewLogger(t).Sugar())
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, nil))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 3, n)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	base := Event{
		AttemptID: "att-1",
		Recipient: "0xAbC0000000000000000000000000000000000001",
		Variant:   "standard",
		DigestHex: "aa",
	}
	for _, ev := range []Event{
		withStage(base, "HashChecked"),
		withFile(withStage(base, "BlobPublished"), "bafyfile"),
		withDescriptor(withStage(base, "DescriptorPublished"), "bafydesc"),
	} {
		require.NoError(t, j.Record(ctx, ev))
	}
	done := withStage(base, "Done")
	done.TokenID, done.TxRef, done.Final = 7, "0xtx", true
	require.NoError(t, j.Record(ctx, done))

	e, err := j.Get(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, e.Status)
	assert.Equal(t, "Done", e.Stage)
	assert.Equal(t, "bafyfile", e.FileCID, "later events must not clear earlier CIDs")
	assert.Equal(t, "bafydesc", e.DescriptorCID)
	assert.Equal(t, uint64(7), e.TokenID)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", e.Recipient)

	stages, err := j.Events(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"HashChecked", "BlobPublished", "DescriptorPublished", "Done"}, stages)
}

func TestRecordFailure(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	ev := Event{AttemptID: "att-2", Recipient: "0x1", Variant: "voucher", DigestHex: "bb", Stage: "Registered", Final: true,
		Err: &errors.AlreadyRegisteredError{ExistingID: 3, DigestHex: "bb"}}
	require.NoError(t, j.Record(ctx, ev))

	e, err := j.Get(ctx, "att-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, string(errors.KindAlreadyRegistered), e.ErrorKind)
	assert.Contains(t, e.ErrorMessage, "token 3")
}

func TestListByRecipientNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Record(ctx, Event{AttemptID: id, Recipient: "0xAA", Variant: "standard", DigestHex: id, Stage: "HashChecked"}))
	}
	require.NoError(t, j.Record(ctx, Event{AttemptID: "z", Recipient: "0xBB", Variant: "standard", DigestHex: "z", Stage: "HashChecked"}))

	got, err := j.ListByRecipient(ctx, "0xaa", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].AttemptID)

	limited, err := j.ListByRecipient(ctx, "0xAA", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byDigest, err := j.ListByDigest(ctx, "Z", 0)
	require.NoError(t, err)
	require.Len(t, byDigest, 1)
	assert.Equal(t, "z", byDigest[0].AttemptID)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.Get(context.Background(), "missing")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestRecordRequiresAttemptID(t *testing.T) {
	j := openTestJournal(t)
	err := j.Record(context.Background(), Event{Stage: "Init"})
	assert.True(t, errors.IsKind(err, errors.KindInput))
}

// --- Sqlmock Tests ---

func TestRecordRollsBackOnEventFailure_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := New(db, nil)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO issuances`).
		WithArgs("att-3", "0xaa", "standard", "cc", false, "BlobPublished", StatusPending,
			"bafyfile", "", int64(0), "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO issuance_events`).
		WithArgs("att-3", "BlobPublished", "", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = j.Record(context.Background(), Event{
		AttemptID: "att-3", Recipient: "0xAA", Variant: "standard", DigestHex: "cc",
		Stage: "BlobPublished", FileCID: "bafyfile",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record event for att-3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueryError_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := New(db, nil)
	mock.ExpectQuery(`SELECT .* FROM issuances WHERE recipient = \?`).
		WithArgs("0xaa", 5).
		WillReturnError(errors.New("database is locked"))

	_, err = j.ListByRecipient(context.Background(), "0xAA", 5)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func withStage(ev Event, s string) Event      { ev.Stage = s; return ev }
func withFile(ev Event, c string) Event       { ev.FileCID = c; return ev }
func withDescriptor(ev Event, c string) Event { ev.DescriptorCID = c; return ev }
