package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/info757/estimai-cli/internal/resilience"
	"github.com/info757/estimai-cli/pkg/estimai"
)

var (
	// ErrRowNotFound is returned when an edit references an unknown row id.
	ErrRowNotFound = errors.New("review: row not found")

	// ErrWriteLocked is returned when a commit targets a row/field pair
	// whose previous write is still in flight. The edit is rejected, never
	// queued.
	ErrWriteLocked = errors.New("review: field has a pending write")

	// ErrNoOpenEdit is returned when Commit is called without BeginEdit.
	ErrNoOpenEdit = errors.New("review: no open edit for field")
)

// RejectedError reports a value that failed validation. Nothing was written.
type RejectedError struct {
	Field  string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("review: %s rejected: %s", e.Field, e.Reason)
}

// ClampedError reports a value adjusted into range. The clamped value is NOT
// committed; the edit stays open so the caller can re-present Value for the
// user to confirm.
type ClampedError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ClampedError) Error() string {
	return fmt.Sprintf("review: %s clamped to %v: %s", e.Field, e.Value, e.Reason)
}

// fieldKey identifies one row/field pair for edit and lock tracking.
type fieldKey struct {
	rowID string
	field string
}

// openEdit captures the state of one in-progress edit session.
type openEdit struct {
	originalValue any
}

// Session owns the row set for one project+stage review, the optimistic
// entries awaiting server confirmation, and the per-field write locks. A
// committed, valid edit becomes visible in View immediately and produces
// exactly one network write; on failure the speculative delta is discarded
// and the displayed value reverts.
type Session struct {
	client    estimai.Client
	notifier  Notifier
	builder   *PatchBuilder
	retry     resilience.RetryConfig
	auditor   func(patch estimai.Patch, applied bool)
	projectID string
	stage     estimai.Stage

	mu         sync.Mutex
	rows       map[string]estimai.Row
	order      []string
	optimistic map[string]estimai.Fields // per-row speculative deltas
	pending    map[fieldKey]bool         // per-field write locks
	edits      map[fieldKey]*openEdit
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithNotifier replaces the default log-backed notification sink.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithPatchBuilder replaces the default builder, for clock injection.
func WithPatchBuilder(b *PatchBuilder) SessionOption {
	return func(s *Session) {
		s.builder = b
	}
}

// WithRetryConfig tunes the retry policy for review reads. Writes are never
// retried.
func WithRetryConfig(cfg resilience.RetryConfig) SessionOption {
	return func(s *Session) {
		s.retry = cfg
	}
}

// WithAuditor registers a sink invoked after every reconciled write with the
// patch and whether it was applied or rolled back.
func WithAuditor(fn func(patch estimai.Patch, applied bool)) SessionOption {
	return func(s *Session) {
		s.auditor = fn
	}
}

// NewSession creates an empty Session; call Load to fetch rows.
func NewSession(client estimai.Client, projectID string, stage estimai.Stage, author string, opts ...SessionOption) *Session {
	s := &Session{
		client:     client,
		notifier:   LogNotifier{},
		builder:    NewPatchBuilder(author),
		retry:      resilience.DefaultRetryConfig(),
		projectID:  projectID,
		stage:      stage,
		rows:       make(map[string]estimai.Row),
		optimistic: make(map[string]estimai.Fields),
		pending:    make(map[fieldKey]bool),
		edits:      make(map[fieldKey]*openEdit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage returns the review stage this session covers.
func (s *Session) Stage() estimai.Stage { return s.stage }

// Load fetches the row set from the backend, replacing any previous settled
// state. Optimistic deltas for in-flight writes are preserved.
func (s *Session) Load(ctx context.Context) error {
	resp, err := resilience.DoVal(ctx, s.retry, "get review", func(ctx context.Context) (*estimai.ReviewResponse, error) {
		return s.client.GetReview(ctx, s.projectID, s.stage)
	})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("review: load %s rows", s.stage))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[string]estimai.Row, len(resp.Rows))
	s.order = make([]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		s.rows[row.ID] = row
		s.order = append(s.order, row.ID)
	}

	zap.L().Debug("review rows loaded",
		zap.String("project_id", s.projectID),
		zap.String("stage", string(s.stage)),
		zap.Int("rows", len(resp.Rows)),
		zap.Int("overridden", resp.OverriddenRows),
	)
	return nil
}

// View returns the rows in server order with any optimistic deltas layered
// over the settled merged view. This is the only row collection a caller
// should render.
func (s *Session) View() []estimai.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]estimai.Row, 0, len(s.order))
	for _, id := range s.order {
		row := s.rows[id]
		if delta, ok := s.optimistic[id]; ok && len(delta) > 0 {
			row.Merged = Merge(row.Merged, delta)
		}
		out = append(out, row)
	}
	return out
}

// Row returns the current view of a single row.
func (s *Session) Row(rowID string) (estimai.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[rowID]
	if !ok {
		return estimai.Row{}, false
	}
	if delta, ok := s.optimistic[rowID]; ok && len(delta) > 0 {
		row.Merged = Merge(row.Merged, delta)
	}
	return row, true
}

// Totals computes the markup rollup over the current view, optimistic deltas
// included.
func (s *Session) Totals(cfg MarkupConfig, links map[string]float64) Breakdown {
	s.mu.Lock()
	rows := make([]estimai.Row, 0, len(s.order))
	for _, id := range s.order {
		rows = append(rows, s.rows[id])
	}
	overlay := make(map[string]estimai.Fields, len(s.optimistic))
	for id, delta := range s.optimistic {
		overlay[id] = delta
	}
	s.mu.Unlock()

	return ComputeTotals(rows, overlay, links, cfg)
}

// BeginEdit opens an edit session on a row/field pair, capturing the current
// merged value for restore. A field with a write in flight is locked.
func (s *Session) BeginEdit(rowID, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[rowID]
	if !ok {
		return eris.Wrap(ErrRowNotFound, rowID)
	}

	key := fieldKey{rowID, field}
	if s.pending[key] {
		return eris.Wrap(ErrWriteLocked, fmt.Sprintf("%s.%s", rowID, field))
	}

	view := row.Merged
	if delta, ok := s.optimistic[rowID]; ok {
		view = Merge(view, delta)
	}
	s.edits[key] = &openEdit{originalValue: view[field]}
	return nil
}

// CancelEdit abandons an open edit. No write happens.
func (s *Session) CancelEdit(rowID, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edits, fieldKey{rowID, field})
}

// Commit validates the edited value and, when valid, applies it optimistically
// and issues the network patch. Exactly one write per committed valid edit.
//
// A Rejected verdict closes nothing and writes nothing: the edit stays open
// and a *RejectedError is returned. A Clamped verdict keeps the edit open
// and returns a *ClampedError carrying the adjusted value for the caller to
// re-present; committing that value confirms it.
func (s *Session) Commit(ctx context.Context, rowID, field string, raw any, reason string) error {
	key := fieldKey{rowID, field}

	s.mu.Lock()
	if _, ok := s.rows[rowID]; !ok {
		s.mu.Unlock()
		return eris.Wrap(ErrRowNotFound, rowID)
	}
	if _, ok := s.edits[key]; !ok {
		s.mu.Unlock()
		return eris.Wrap(ErrNoOpenEdit, fmt.Sprintf("%s.%s", rowID, field))
	}
	if s.pending[key] {
		s.mu.Unlock()
		return eris.Wrap(ErrWriteLocked, fmt.Sprintf("%s.%s", rowID, field))
	}

	verdict := Validate(field, raw)
	switch verdict.Kind {
	case Rejected:
		s.mu.Unlock()
		s.notifier.Notify(NoticeError, verdict.Reason)
		return &RejectedError{Field: field, Reason: verdict.Reason}
	case Clamped:
		s.mu.Unlock()
		s.notifier.Notify(NoticeWarning, verdict.Reason)
		clamped, _ := verdict.Value.(float64)
		return &ClampedError{Field: field, Value: clamped, Reason: verdict.Reason}
	}

	// Optimistic write: visible immediately, superseding any earlier
	// speculative value for this field.
	delta := s.optimistic[rowID]
	if delta == nil {
		delta = make(estimai.Fields)
		s.optimistic[rowID] = delta
	}
	delta[field] = verdict.Value
	s.pending[key] = true
	delete(s.edits, key)

	patch := s.builder.Build(rowID, estimai.Fields{field: verdict.Value}, reason)
	s.mu.Unlock()

	// Network write happens outside the lock; the pending flag keeps this
	// row/field exclusive until reconciliation.
	_, err := s.client.PatchReview(ctx, s.projectID, s.stage, []estimai.Patch{patch})

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)

	if s.auditor != nil {
		s.auditor(patch, err == nil)
	}

	if err != nil {
		// Roll back this field's speculative value only. Other rows and
		// other fields on this row are untouched.
		s.dropDelta(rowID, field)
		s.notifier.Notify(NoticeError, writeFailureMessage(field, err))
		return eris.Wrap(err, fmt.Sprintf("review: patch %s.%s", rowID, field))
	}

	// Converge the settled record and clear the speculative entry. The
	// caller should still Load to pick up any server-side derivations.
	row := s.rows[rowID]
	s.rows[rowID] = ApplyPatchLocally(row, patch.Fields)
	s.dropDelta(rowID, field)

	s.notifier.Notify(NoticeInfo, fmt.Sprintf("saved %s", field))
	return nil
}

// PendingCount reports how many field writes are currently in flight.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// dropDelta removes one field from a row's speculative delta, discarding the
// whole entry when it empties. Caller holds the lock.
func (s *Session) dropDelta(rowID, field string) {
	delta, ok := s.optimistic[rowID]
	if !ok {
		return
	}
	delete(delta, field)
	if len(delta) == 0 {
		delete(s.optimistic, rowID)
	}
}

// writeFailureMessage prefers the server's detail message, falling back to a
// generic failure text.
func writeFailureMessage(field string, err error) string {
	var authErr *estimai.AuthError
	if errors.As(err, &authErr) {
		return "authentication required"
	}
	var apiErr *estimai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("failed to save %s: %s", field, apiErr.Detail)
	}
	return fmt.Sprintf("failed to save %s", field)
}
