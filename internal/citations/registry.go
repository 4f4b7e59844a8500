// Package citations maintains the provenance registry: one citation per
// distinct source position, stable ordinals, and unit attachments.
package citations

import (
	"sync"

	"github.com/hyperjump/shiken/internal/models"
	"go.uber.org/zap"
)

// Violation records a generated unit that carries no citations. Violations
// are collected for reporting, not raised as errors; generation proceeds.
type Violation struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

// Registry deduplicates citations by source position and tracks which
// generated units reference which citations. Two chunks with equal locators
// always resolve to the same citation; ordinals reflect first-citation order
// and never change afterwards. Safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	byID        map[string]*models.Citation
	ordered     []*models.Citation
	attachments map[string][]string
	violations  []Violation
	logger      *zap.Logger // optional
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets a logger for violation warnings.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty citation registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:        make(map[string]*models.Citation),
		attachments: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore seeds the registry from persisted citations, preserving their
// ordinals. Citations must arrive in ordinal order.
func (r *Registry) Restore(citations []*models.Citation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range citations {
		if _, ok := r.byID[c.ID]; ok {
			continue
		}
		r.byID[c.ID] = c
		r.ordered = append(r.ordered, c)
	}
}

// Cite returns the citation for the chunk's source position, creating it with
// the next ordinal if the position has not been cited before. The check and
// creation are a single atomic step.
func (r *Registry) Cite(chunk *models.Chunk) *models.Citation {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := models.CitationID(chunk.Locator)
	if c, ok := r.byID[id]; ok {
		return c
	}
	c := &models.Citation{
		ID:          id,
		Ordinal:     len(r.ordered) + 1,
		DisplayText: chunk.Locator.DisplayText(),
		Locator:     chunk.Locator,
	}
	r.byID[id] = c
	r.ordered = append(r.ordered, c)
	return c
}

// Attach records that a generated unit references the given citations.
// Attachments are append-only. Attaching zero citations records an uncited
// content violation instead of an attachment.
func (r *Registry) Attach(unitID string, citationIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(citationIDs) == 0 {
		r.violations = append(r.violations, Violation{
			UnitID: unitID,
			Reason: "unit carries no citations",
		})
		if r.logger != nil {
			r.logger.Warn("uncited content", zap.String("unit_id", unitID))
		}
		return
	}
	r.attachments[unitID] = append(r.attachments[unitID], citationIDs...)
}

// Citations returns all citations in ordinal order.
func (r *Registry) Citations() []*models.Citation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Citation, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Attachments returns the citation IDs attached to a unit.
func (r *Registry) Attachments(unitID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.attachments[unitID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Violations returns the uncited content violations recorded so far.
func (r *Registry) Violations() []Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Violation, len(r.violations))
	copy(out, r.violations)
	return out
}

// Len returns the number of distinct citations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ordered)
}
