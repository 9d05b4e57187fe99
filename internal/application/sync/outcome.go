package sync

import (
	"github.com/storesync/backend/internal/domain/integration"
)

// OutcomeKind is the per-record result of one reconciliation step
type OutcomeKind string

const (
	// OutcomeImported means the record produced at least one local write
	OutcomeImported OutcomeKind = "imported"
	// OutcomeSkipped means the record was already up to date or does not
	// qualify for synchronization
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means the record could not be reconciled; Kind and
	// Record carry the diagnostic context
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the explicit per-record result every reconciler returns.
// Reconcilers never signal "skip" or "bad record" through errors; the error
// return is reserved for infrastructure failures (database, platform call).
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	// ErrorKind classifies a failed outcome
	ErrorKind integration.ErrorKind
	// Record is the remote or local record involved in a failure
	Record any
}

// Imported builds an imported outcome
func Imported() Outcome {
	return Outcome{Kind: OutcomeImported}
}

// Skipped builds a skipped outcome with a short reason
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// Failed builds a failed outcome carrying the error kind and the record
// involved
func Failed(kind integration.ErrorKind, reason string, record any) Outcome {
	return Outcome{Kind: OutcomeFailed, ErrorKind: kind, Reason: reason, Record: record}
}

// SyncError converts a failed outcome to the uniform job failure shape.
// Returns nil for non-failed outcomes.
func (o Outcome) SyncError() *integration.SyncError {
	if o.Kind != OutcomeFailed {
		return nil
	}
	return integration.NewSyncError(o.ErrorKind, o.Reason, o.Record, nil)
}
