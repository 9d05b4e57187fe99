package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storesync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidMode       = errors.New("sync: invalid job mode")
	ErrInvalidTransition = errors.New("sync: invalid job state transition")
	ErrRetryExhausted    = errors.New("sync: retry attempts exhausted")
	ErrJobNotFound       = errors.New("sync: job not found")
)

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State is the lifecycle state of a sync job. Transitions are
// draft→queued→running→{success|failed}, with failed→queued permitted while
// the retry budget is not exhausted.
type State string

const (
	StateDraft   State = "draft"
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// IsValid returns true if the state is valid
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateQueued, StateRunning, StateSuccess, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for success and failed
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Mode
// ---------------------------------------------------------------------------

// Mode identifies what a job synchronizes and in which direction
type Mode string

const (
	ModeImportChangedProducts  Mode = "import_changed_products"
	ModeImportAllProducts      Mode = "import_all_products"
	ModeImportOneProduct       Mode = "import_one_product"
	ModeExportChangedProducts  Mode = "export_changed_products"
	ModeExportBatchProducts    Mode = "export_batch_products"
	ModeDeleteAllProducts      Mode = "delete_all_products"
	ModeImportChangedOrders    Mode = "import_changed_orders"
	ModeImportOneOrder         Mode = "import_one_order"
	ModeImportChangedCustomers Mode = "import_changed_customers"
	ModeImportOneCustomer      Mode = "import_one_customer"
)

// AllModes returns every job mode
func AllModes() []Mode {
	return []Mode{
		ModeImportChangedProducts,
		ModeImportAllProducts,
		ModeImportOneProduct,
		ModeExportChangedProducts,
		ModeExportBatchProducts,
		ModeDeleteAllProducts,
		ModeImportChangedOrders,
		ModeImportOneOrder,
		ModeImportChangedCustomers,
		ModeImportOneCustomer,
	}
}

// PrimaryPeriodicModes are the two modes the scheduler keeps alive with its
// queue-drain liveness check
func PrimaryPeriodicModes() []Mode {
	return []Mode{ModeImportChangedProducts, ModeImportChangedOrders}
}

// IsValid returns true if the mode is valid
func (m Mode) IsValid() bool {
	for _, known := range AllModes() {
		if m == known {
			return true
		}
	}
	return false
}

// String returns the string representation of Mode
func (m Mode) String() string {
	return string(m)
}

// ResourceKind returns the watermark resource this mode advances on success,
// or false for modes that do not participate in "since last sync" queries
func (m Mode) ResourceKind() (integration.ResourceKind, bool) {
	switch m {
	case ModeImportChangedProducts, ModeImportAllProducts:
		return integration.ResourceKindProduct, true
	case ModeImportChangedOrders:
		return integration.ResourceKindOrder, true
	case ModeImportChangedCustomers:
		return integration.ResourceKindCustomer, true
	default:
		return "", false
	}
}

// ---------------------------------------------------------------------------
// Selector
// ---------------------------------------------------------------------------

// Selector narrows a job to an explicit remote id or a batch of local ids.
// The zero Selector means "everything the mode covers".
type Selector struct {
	ExternalID string      `json:"external_id,omitempty"`
	LocalIDs   []uuid.UUID `json:"local_ids,omitempty"`
}

// IsZero returns true for the unrestricted selector
func (s Selector) IsZero() bool {
	return s.ExternalID == "" && len(s.LocalIDs) == 0
}

// Key returns a canonical string used for enqueue deduplication; local id
// order does not affect the key
func (s Selector) Key() string {
	if s.IsZero() {
		return ""
	}
	if s.ExternalID != "" {
		return "ext:" + s.ExternalID
	}
	ids := make([]string, len(s.LocalIDs))
	for i, id := range s.LocalIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return "local:" + strings.Join(ids, ",")
}

// ---------------------------------------------------------------------------
// Job
// ---------------------------------------------------------------------------

// Job is one synchronization attempt. Rows are transient, audit-only data:
// they are created by webhooks or periodic triggers, mutated only by the
// scheduler, and garbage-collected past a bounded age and count.
type Job struct {
	ID            uuid.UUID
	Mode          Mode
	Selector      Selector
	State         State
	TotalCount    int
	UpdatedCount  int
	RetryAttempts int
	StartTime     *time.Time
	EndTime       *time.Time
	HeartbeatAt   *time.Time
	ErrorMessage  string
	ErrorKind     integration.ErrorKind
	ErrorContext  json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewJob creates a job in draft state
func NewJob(mode Mode, selector Selector) (*Job, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	now := time.Now()
	return &Job{
		ID:        uuid.New(),
		Mode:      mode,
		Selector:  selector,
		State:     StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Queue transitions draft→queued
func (j *Job) Queue() error {
	if j.State != StateDraft {
		return fmt.Errorf("%w: %s→queued", ErrInvalidTransition, j.State)
	}
	j.State = StateQueued
	j.UpdatedAt = time.Now()
	return nil
}

// Start transitions queued→running and stamps the start time and heartbeat
func (j *Job) Start() error {
	if j.State != StateQueued {
		return fmt.Errorf("%w: %s→running", ErrInvalidTransition, j.State)
	}
	now := time.Now()
	j.State = StateRunning
	j.StartTime = &now
	j.HeartbeatAt = &now
	j.ErrorMessage = ""
	j.ErrorKind = ""
	j.ErrorContext = nil
	j.UpdatedAt = now
	return nil
}

// Touch refreshes the heartbeat so the staleness detector can tell a huge
// but healthy job from a crashed one
func (j *Job) Touch() {
	now := time.Now()
	j.HeartbeatAt = &now
	j.UpdatedAt = now
}

// Succeed transitions running→success with final counters
func (j *Job) Succeed(total, updated int) error {
	if j.State != StateRunning {
		return fmt.Errorf("%w: %s→success", ErrInvalidTransition, j.State)
	}
	now := time.Now()
	j.State = StateSuccess
	j.TotalCount = total
	j.UpdatedCount = updated
	j.EndTime = &now
	j.UpdatedAt = now
	return nil
}

// Fail transitions running→failed carrying the failure's kind, message and
// the serialized record involved
func (j *Job) Fail(cause *integration.SyncError) error {
	if j.State != StateRunning {
		return fmt.Errorf("%w: %s→failed", ErrInvalidTransition, j.State)
	}
	now := time.Now()
	j.State = StateFailed
	if cause != nil {
		j.ErrorKind = cause.Kind
		j.ErrorMessage = cause.Message
		j.ErrorContext = cause.Record
	}
	j.EndTime = &now
	j.UpdatedAt = now
	return nil
}

// Requeue transitions failed→queued, spending one retry attempt. It refuses
// once maxRetries attempts have been spent.
func (j *Job) Requeue(maxRetries int) error {
	if j.State != StateFailed {
		return fmt.Errorf("%w: %s→queued", ErrInvalidTransition, j.State)
	}
	if j.RetryAttempts >= maxRetries {
		return ErrRetryExhausted
	}
	now := time.Now()
	j.RetryAttempts++
	j.State = StateQueued
	j.StartTime = nil
	j.EndTime = nil
	j.HeartbeatAt = nil
	j.UpdatedAt = now
	return nil
}

// ResetForRetry returns a terminally failed job to the queue with a fresh
// retry budget. This is the operator-driven retry; the automatic one is
// Requeue, which spends budget.
func (j *Job) ResetForRetry() error {
	if j.State != StateFailed {
		return fmt.Errorf("%w: %s→queued", ErrInvalidTransition, j.State)
	}
	j.State = StateQueued
	j.RetryAttempts = 0
	j.StartTime = nil
	j.EndTime = nil
	j.HeartbeatAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

// Stale reports whether a running job has gone without a heartbeat longer
// than idleThreshold
func (j *Job) Stale(idleThreshold time.Duration, now time.Time) bool {
	if j.State != StateRunning {
		return false
	}
	last := j.CreatedAt
	if j.HeartbeatAt != nil {
		last = *j.HeartbeatAt
	}
	return now.Sub(last) > idleThreshold
}
