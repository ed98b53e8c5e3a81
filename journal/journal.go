// Package journal records issuance attempts in SQLite so operators can see
// what was published, what was registered and where an attempt stopped.
//
// The journal is advisory. The ledger stays the source of truth for
// ownership; a missing or failed journal write never changes an issuance
// outcome.
package journal

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/logger"
)

// Status of an attempt.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Event is one state transition of an issuance attempt. Empty fields leave
// the stored value unchanged.
type Event struct {
	AttemptID     string
	Stage         string
	Recipient     string
	Variant       string
	DigestHex     string
	Encrypted     bool
	FileCID       string
	DescriptorCID string
	TokenID       uint64
	TxRef         string
	// Final marks the last event of an attempt; Err decides done or failed.
	Final bool
	Err   error
}

// Entry is the current state of an attempt.
type Entry struct {
	AttemptID     string    `json:"attempt_id"`
	Recipient     string    `json:"recipient"`
	Variant       string    `json:"variant"`
	DigestHex     string    `json:"digest_hex"`
	Encrypted     bool      `json:"encrypted"`
	Stage         string    `json:"stage"`
	Status        string    `json:"status"`
	FileCID       string    `json:"file_cid,omitempty"`
	DescriptorCID string    `json:"descriptor_cid,omitempty"`
	TokenID       uint64    `json:"token_id,omitempty"`
	TxRef         string    `json:"tx_ref,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Journal writes and reads attempts.
type Journal struct {
	db  *sql.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// New wraps an open, migrated database.
func New(db *sql.DB, log *zap.SugaredLogger) *Journal {
	return &Journal{db: db, log: logger.Or(log), now: time.Now}
}

const upsertAttempt = `
INSERT INTO issuances (
    attempt_id, recipient, variant, digest_hex, encrypted, stage, status,
    file_cid, descriptor_cid, token_id, tx_ref, error_kind, error_message,
    created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (attempt_id) DO UPDATE SET
    stage          = excluded.stage,
    status         = excluded.status,
    file_cid       = CASE WHEN excluded.file_cid = '' THEN issuances.file_cid ELSE excluded.file_cid END,
    descriptor_cid = CASE WHEN excluded.descriptor_cid = '' THEN issuances.descriptor_cid ELSE excluded.descriptor_cid END,
    token_id       = CASE WHEN excluded.token_id = 0 THEN issuances.token_id ELSE excluded.token_id END,
    tx_ref         = CASE WHEN excluded.tx_ref = '' THEN issuances.tx_ref ELSE excluded.tx_ref END,
    error_kind     = excluded.error_kind,
    error_message  = excluded.error_message,
    updated_at     = excluded.updated_at`

const insertEvent = `INSERT INTO issuance_events (attempt_id, stage, error_kind, at) VALUES (?, ?, ?, ?)`

// Record applies ev to the attempt row and appends it to the event log, in
// one transaction.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	if ev.AttemptID == "" {
		return errors.Input("journal event without attempt id")
	}
	status := StatusPending
	var kind, msg string
	if ev.Err != nil {
		kind = string(errors.KindOf(ev.Err))
		msg = ev.Err.Error()
	}
	if ev.Final {
		status = StatusDone
		if ev.Err != nil {
			status = StatusFailed
		}
	}
	now := j.now().UTC()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin journal tx")
	}
	if _, err := tx.ExecContext(ctx, upsertAttempt,
		ev.AttemptID, strings.ToLower(ev.Recipient), ev.Variant, ev.DigestHex, ev.Encrypted,
		ev.Stage, status, ev.FileCID, ev.DescriptorCID, int64(ev.TokenID), ev.TxRef,
		kind, msg, now, now,
	); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record attempt %s", ev.AttemptID)
	}
	if _, err := tx.ExecContext(ctx, insertEvent, ev.AttemptID, ev.Stage, kind, now); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record event for %s", ev.AttemptID)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit attempt %s", ev.AttemptID)
	}
	j.log.Debugw("journal event", "attempt", ev.AttemptID, "stage", ev.Stage, "status", status)
	return nil
}

const selectColumns = `SELECT attempt_id, recipient, variant, digest_hex, encrypted, stage, status,
    file_cid, descriptor_cid, token_id, tx_ref, error_kind, error_message, created_at, updated_at
FROM issuances`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var token int64
	err := row.Scan(&e.AttemptID, &e.Recipient, &e.Variant, &e.DigestHex, &e.Encrypted,
		&e.Stage, &e.Status, &e.FileCID, &e.DescriptorCID, &token, &e.TxRef,
		&e.ErrorKind, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	e.TokenID = uint64(token)
	return e, err
}

// Get returns one attempt. Unknown ids are NotFound.
func (j *Journal) Get(ctx context.Context, attemptID string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, selectColumns+` WHERE attempt_id = ?`, attemptID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, errors.Ef(errors.KindNotFound, "no journal entry %s", attemptID)
	}
	if err != nil {
		return Entry{}, errors.Wrapf(err, "load attempt %s", attemptID)
	}
	return e, nil
}

// ListByRecipient returns a recipient's attempts, newest first. Addresses
// match case-insensitively. limit <= 0 means no limit.
func (j *Journal) ListByRecipient(ctx context.Context, recipient string, limit int) ([]Entry, error) {
	return j.list(ctx, `WHERE recipient = ?`, strings.ToLower(recipient), limit)
}

// ListByDigest returns every attempt for a content digest, newest first.
func (j *Journal) ListByDigest(ctx context.Context, digestHex string, limit int) ([]Entry, error) {
	return j.list(ctx, `WHERE digest_hex = ?`, strings.ToLower(digestHex), limit)
}

func (j *Journal) list(ctx context.Context, where string, arg any, limit int) ([]Entry, error) {
	q := selectColumns + " " + where + ` ORDER BY created_at DESC, attempt_id`
	args := []any{arg}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query journal")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan journal row")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate journal rows")
	}
	return out, nil
}

// Events returns the stage history of an attempt, oldest first.
func (j *Journal) Events(ctx context.Context, attemptID string) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT stage FROM issuance_events WHERE attempt_id = ? ORDER BY id`, attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "query journal events")
	}
	defer rows.Close()
	var stages []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "scan journal event")
		}
		stages = append(stages, s)
	}
	return stages, errors.Wrap(rows.Err(), "iterate journal events")
}
