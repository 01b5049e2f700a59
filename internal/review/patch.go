package review

import (
	"time"

	"github.com/google/uuid"

	"github.com/info757/estimai-cli/pkg/estimai"
)

// PatchBuilder constructs transport-ready patches with provenance. The zero
// value is not usable; create one with NewPatchBuilder.
type PatchBuilder struct {
	author string
	now    func() time.Time
}

// BuilderOption configures a PatchBuilder.
type BuilderOption func(*PatchBuilder)

// WithClock overrides the issuance timestamp source, for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *PatchBuilder) {
		b.now = now
	}
}

// NewPatchBuilder creates a builder stamping patches with the given author.
func NewPatchBuilder(author string, opts ...BuilderOption) *PatchBuilder {
	b := &PatchBuilder{
		author: author,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces a Patch for one row carrying only the changed field subset.
// The fields map is copied; the input is never mutated or retained.
func (b *PatchBuilder) Build(rowID string, fields estimai.Fields, reason string) estimai.Patch {
	return estimai.Patch{
		ID:       uuid.New().String(),
		RowID:    rowID,
		Fields:   fields.Clone(),
		Author:   b.author,
		Reason:   reason,
		IssuedAt: b.now(),
	}
}

// BuildBatch produces one Patch per edited row for a single network round
// trip. All patches in the batch share one issuance timestamp.
func (b *PatchBuilder) BuildBatch(edits map[string]estimai.Fields, reason string) []estimai.Patch {
	if len(edits) == 0 {
		return nil
	}

	issuedAt := b.now()
	patches := make([]estimai.Patch, 0, len(edits))
	for rowID, fields := range edits {
		if len(fields) == 0 {
			continue
		}
		patches = append(patches, estimai.Patch{
			ID:       uuid.New().String(),
			RowID:    rowID,
			Fields:   fields.Clone(),
			Author:   b.author,
			Reason:   reason,
			IssuedAt: issuedAt,
		})
	}
	return patches
}
