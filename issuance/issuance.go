// Package issuance turns an uploaded file into a registered certificate:
// dedup check, optional sealing, blob and descriptor publication, then
// ledger registration.
package issuance

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/confidential"
	"docanchor.dev/docanchor/dedup"
	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/journal"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/registry"
	"docanchor.dev/docanchor/storage"
)

// DescriptorLabel is the store label of published descriptors.
const DescriptorLabel = "metadata.json"

// Recorder receives every transition. *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, ev journal.Event) error
}

// Request is one issuance.
type Request struct {
	Content   []byte
	FileName  string
	Recipient string
	Variant   descriptor.Variant
	Fields    descriptor.Fields
	// Confidential seals Content with the key derived from Signer before
	// publication.
	Confidential bool
	Signer       keys.Signer
}

// Result describes a completed issuance.
type Result struct {
	AttemptID     string
	Digest        hashing.Digest
	Key           hashing.LedgerKey
	Recipient     common.Address
	FileCID       cid.Cid
	DescriptorCID cid.Cid
	URI           string
	Descriptor    descriptor.Descriptor
	Receipt       registry.Receipt
	Encrypted     bool
	Stages        []Stage
}

// Config wires an Orchestrator. Store and Ledger are required.
type Config struct {
	Store  *storage.Client
	Ledger registry.Client
	// Pipeline seals confidential content.
	Pipeline confidential.Pipeline
	// Journal is optional.
	Journal Recorder
	// PublishRetries is how many times a retryable publish failure is
	// retried. Publishing is content-addressed, so a retry is idempotent.
	PublishRetries int
	Log            *zap.SugaredLogger
	// NewAttemptID defaults to a random UUID.
	NewAttemptID func() string
}

// Orchestrator runs issuances. It holds no per-request state and is safe
// for concurrent use; ledger writes are serialized by the registry client.
type Orchestrator struct {
	cfg   Config
	guard *dedup.Guard
	log   *zap.SugaredLogger
}

func New(cfg Config) *Orchestrator {
	if cfg.NewAttemptID == nil {
		cfg.NewAttemptID = func() string { return uuid.NewString() }
	}
	log := logger.Or(cfg.Log)
	return &Orchestrator{cfg: cfg, guard: dedup.New(cfg.Ledger, log), log: log}
}

type run struct {
	o   *Orchestrator
	req Request
	res Result
	ev  journal.Event
}

// Issue runs the state machine to Done or to a *FailedError. Input errors
// fail at Init before any side effect.
func (o *Orchestrator) Issue(ctx context.Context, req Request) (Result, error) {
	if o.cfg.Store == nil || o.cfg.Ledger == nil {
		return Result{}, failed(StageInit, errors.E(errors.KindInternal, "issuance: store and ledger are required"))
	}
	to, err := validate(req)
	if err != nil {
		return Result{}, failed(StageInit, err)
	}

	r := &run{o: o, req: req}
	r.res.AttemptID = o.cfg.NewAttemptID()
	r.res.Recipient = to
	r.res.Digest = hashing.Sum(req.Content)
	r.res.Key = r.res.Digest.Key()
	r.res.Stages = []Stage{StageInit}
	r.ev = journal.Event{
		AttemptID: r.res.AttemptID,
		Recipient: to.Hex(),
		Variant:   descriptor.CodeOf(req.Variant).Kind(),
		DigestHex: r.res.Digest.Hex(),
		Encrypted: req.Confidential,
	}
	o.log.Infow("issuance started",
		"attempt", r.res.AttemptID,
		"digest", r.res.Digest.Hex(),
		"variant", r.ev.Variant,
		"confidential", req.Confidential,
	)

	if err := r.execute(ctx); err != nil {
		return r.res, err
	}
	return r.res, nil
}

func (r *run) execute(ctx context.Context) error {
	o := r.o

	// Init → HashChecked
	if err := r.step(ctx, StageHashChecked, func() error {
		return o.guard.Check(ctx, r.res.Digest)
	}); err != nil {
		return err
	}

	payload, label := r.req.Content, r.req.FileName
	if r.req.Confidential {
		if err := r.step(ctx, StageEncrypted, func() error {
			sealed, err := o.cfg.Pipeline.Seal(ctx, r.req.Signer, r.req.Content)
			if err != nil {
				return err
			}
			payload, label = sealed, confidential.EncryptedName(r.req.FileName)
			r.res.Encrypted = true
			return nil
		}); err != nil {
			return err
		}
	}

	if err := r.step(ctx, StageBlobPublished, func() error {
		id, err := o.publish(ctx, func() (cid.Cid, error) {
			return o.cfg.Store.PublishBlob(ctx, payload, label)
		})
		if err != nil {
			return err
		}
		r.res.FileCID = id
		r.ev.FileCID = id.String()
		return nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StageDescriptorPublished, func() error {
		fields := r.req.Fields
		fields.Encrypted = r.res.Encrypted
		d := descriptor.Build(r.req.Variant, fields, r.res.FileCID, r.res.Digest)
		id, err := o.publish(ctx, func() (cid.Cid, error) {
			return o.cfg.Store.PublishJSON(ctx, d, DescriptorLabel)
		})
		if err != nil {
			return err
		}
		r.res.Descriptor = d
		r.res.DescriptorCID = id
		r.res.URI = cidutil.URI(id)
		r.ev.DescriptorCID = id.String()
		return nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StageRegistered, func() error {
		code, extras := descriptor.LedgerArgs(r.req.Variant)
		rc, err := o.cfg.Ledger.Register(ctx, registry.Registration{
			To:      r.res.Recipient,
			URI:     r.res.URI,
			HashHex: r.res.Digest.Hex(),
			Code:    code,
			Extras:  extras,
		})
		if err != nil {
			return o.remapRegisterError(ctx, r.res.Digest, err)
		}
		r.res.Receipt = rc
		r.ev.TokenID = uint64(rc.ID)
		r.ev.TxRef = rc.TxRef
		return nil
	}); err != nil {
		return err
	}

	r.res.Stages = append(r.res.Stages, StageDone)
	r.ev.Stage, r.ev.Final, r.ev.Err = string(StageDone), true, nil
	r.record(ctx)
	o.log.Infow("issuance complete",
		"attempt", r.res.AttemptID,
		"token", uint64(r.res.Receipt.ID),
		"tx", r.res.Receipt.TxRef,
		"uri", r.res.URI,
	)
	return nil
}

// step runs fn as the transition into stage. Cancellation is checked first so
// an abandoned request never starts a new side effect.
func (r *run) step(ctx context.Context, stage Stage, fn func() error) error {
	err := ctx.Err()
	if err == nil {
		err = fn()
	}
	if err != nil {
		r.ev.Stage, r.ev.Final, r.ev.Err = string(stage), true, err
		r.record(ctx)
		r.o.log.Warnw("issuance failed",
			"attempt", r.res.AttemptID,
			"stage", stage,
			"kind", errors.KindOf(err),
			"error", err,
		)
		return failed(stage, err)
	}
	r.res.Stages = append(r.res.Stages, stage)
	r.ev.Stage = string(stage)
	r.record(ctx)
	r.o.log.Debugw("issuance transition", "attempt", r.res.AttemptID, "stage", stage)
	return nil
}

func (r *run) record(ctx context.Context) {
	if r.o.cfg.Journal == nil {
		return
	}
	// Journal writes must land even when the request was abandoned.
	if err := r.o.cfg.Journal.Record(context.WithoutCancel(ctx), r.ev); err != nil {
		r.o.log.Warnw("journal write failed", "attempt", r.ev.AttemptID, "stage", r.ev.Stage, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, put func() (cid.Cid, error)) (cid.Cid, error) {
	id, err := put()
	for attempt := 0; err != nil && errors.Retryable(err) && attempt < o.cfg.PublishRetries; attempt++ {
		if ctx.Err() != nil {
			return cid.Undef, err
		}
		o.log.Infow("retrying publish", "attempt", attempt+1, "error", err)
		id, err = put()
	}
	return id, err
}

// remapRegisterError closes the window between the dedup check and
// registration: a uniqueness revert becomes AlreadyRegistered carrying the
// winning registration's id.
func (o *Orchestrator) remapRegisterError(ctx context.Context, d hashing.Digest, err error) error {
	var dup *errors.AlreadyRegisteredError
	switch {
	case errors.As(err, &dup):
	case errors.IsKind(err, errors.KindLedgerRevert) && registry.IsDuplicateReason(err.Error()):
		dup = &errors.AlreadyRegisteredError{DigestHex: d.Hex()}
	default:
		return err
	}
	if dup.ExistingID == 0 {
		if id, lerr := o.cfg.Ledger.LookupByHash(ctx, d.Key()); lerr == nil && id != registry.NoToken {
			dup = &errors.AlreadyRegisteredError{ExistingID: uint64(id), DigestHex: d.Hex()}
		}
	}
	o.log.Infow("registration lost uniqueness race", "digest", d.Hex(), "existing", dup.ExistingID)
	return errors.WithStack(dup)
}

func validate(req Request) (common.Address, error) {
	if len(req.Content) == 0 {
		return common.Address{}, errors.Input("missing certificate file")
	}
	if req.Variant == nil {
		return common.Address{}, errors.Input("missing certificate variant")
	}
	if req.Fields.Title == "" {
		return common.Address{}, errors.Input("missing required field: title")
	}
	to, err := descriptor.ParseAddress(req.Recipient)
	if err != nil {
		return common.Address{}, err
	}
	if to == (common.Address{}) {
		return common.Address{}, errors.Input("recipient cannot be the zero address")
	}
	if err := descriptor.Validate(req.Variant); err != nil {
		return common.Address{}, err
	}
	if req.Confidential && req.Signer == nil {
		return common.Address{}, errors.WithHint(errors.Input("confidential issuance needs a signer"),
			"the recipient's wallet signature derives the content key")
	}
	return to, nil
}
