package issuance

import (
	"fmt"

	"docanchor.dev/docanchor/errors"
)

// Stage is a state of the issuance state machine:
//
//	Init → HashChecked → [Encrypted] → BlobPublished → DescriptorPublished → Registered → Done
type Stage string

const (
	StageInit                Stage = "Init"
	StageHashChecked         Stage = "HashChecked"
	StageEncrypted           Stage = "Encrypted"
	StageBlobPublished       Stage = "BlobPublished"
	StageDescriptorPublished Stage = "DescriptorPublished"
	StageRegistered          Stage = "Registered"
	StageDone                Stage = "Done"
)

// FailedError is the terminal Failed state. Stage is the state the
// orchestrator was trying to reach; Cause keeps its error kind.
type FailedError struct {
	Stage Stage
	Cause error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("issuance failed at %s: %v", e.Stage, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }

func failed(stage Stage, cause error) error {
	return errors.WithStack(&FailedError{Stage: stage, Cause: cause})
}

// FailedStage returns the stage of a FailedError in err's chain.
func FailedStage(err error) (Stage, bool) {
	var fe *FailedError
	if errors.As(err, &fe) {
		return fe.Stage, true
	}
	return "", false
}
