package engine

import (
	"context"
	"fmt"

	"metaform-backend/internal/metastore"
	"metaform-backend/internal/schema"
)

// Coordinator validates a submission against a compiled schema and commits
// the resulting metadata as one all-or-nothing batch. A submission moves
// Received → Validating → Rejected, or Received → Validating → Persisting →
// Committed; no partially-committed state is ever observable.
type Coordinator struct {
	meta *metastore.Store
}

func NewCoordinator(meta *metastore.Store) *Coordinator {
	return &Coordinator{meta: meta}
}

// Submit validates rawValues and, only when valid, persists every validated
// key for the entity in a single transaction. On validation failure the
// details are returned and nothing is written.
//
// Clearing policy: omitting a previously-set optional key leaves its stored
// value untouched; submitting it as an explicit null deletes the stored row
// within the same transaction.
func (c *Coordinator) Submit(ctx context.Context, sch *schema.Schema, entityType, entityID string, rawValues map[string]any) (map[string]any, []schema.ErrorDetail, error) {
	validated, details := sch.Validate(rawValues)
	if len(details) > 0 {
		return nil, details, nil
	}

	var cleared []string
	for _, f := range sch.Fields() {
		if v, present := rawValues[f.Name]; present && v == nil && !f.Required {
			cleared = append(cleared, f.Name)
		}
	}

	db := c.meta.DB()
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: begin tx: %w", ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck

	persisted := make(map[string]any, len(validated))
	for _, f := range sch.Fields() {
		value, ok := validated[f.Name]
		if !ok {
			continue
		}
		if _, done := persisted[f.Name]; done {
			continue
		}
		desc, _ := sch.Descriptor(f.Name)
		encoded, err := desc.Encode(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: encode %s: %w", ErrPersistence, f.Name, err)
		}
		if err := c.meta.Set(ctx, tx, entityType, entityID, f.Name, desc.ID, encoded); err != nil {
			return nil, nil, fmt.Errorf("%w: set %s: %w", ErrPersistence, f.Name, err)
		}
		persisted[f.Name] = value
	}

	if err := c.meta.DeleteKeys(ctx, tx, entityType, entityID, cleared); err != nil {
		return nil, nil, fmt.Errorf("%w: clear keys: %w", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return persisted, nil, nil
}
