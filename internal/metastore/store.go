// Package metastore persists metadata values against weak entity
// references. A row is keyed by (entity_type, entity_id, key); the engine
// never dereferences the entity, it is an opaque lookup key only.
package metastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/store"
)

type Store struct {
	db    *store.Store
	types *fieldtype.Registry
}

func NewStore(db *store.Store, types *fieldtype.Registry) *Store {
	return &Store{db: db, types: types}
}

// DB exposes the underlying connection for callers that coordinate their
// own transactions around Set and DeleteKeys.
func (s *Store) DB() *store.Store {
	return s.db
}

type datum struct {
	key     string
	typeID  string
	encoded sql.NullString
}

// Encoded values are scanned directly rather than through the row-map
// helpers, which would mangle values that merely look like timestamps.
func (s *Store) queryData(ctx context.Context, q store.Querier, entityType, entityID string) ([]datum, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"SELECT key, type, value FROM _metadata WHERE entity_type = %s AND entity_id = %s",
		pb.Add(entityType), pb.Add(entityID))
	rows, err := q.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	var data []datum
	for rows.Next() {
		var d datum
		if err := rows.Scan(&d.key, &d.typeID, &d.encoded); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		data = append(data, d)
	}
	return data, rows.Err()
}

// Get returns all metadata for an entity, decoded to canonical values and
// keyed by metadata key. Absent keys are simply missing. Rows whose type
// tag is no longer registered decode to their stored text form rather than
// failing, tolerating registry evolution.
func (s *Store) Get(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	data, err := s.queryData(ctx, s.db.DB, entityType, entityID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(data))
	for _, d := range data {
		if !d.encoded.Valid {
			out[d.key] = nil
			continue
		}
		desc, err := s.types.Resolve(d.typeID)
		if err != nil {
			out[d.key] = d.encoded.String
			continue
		}
		decoded, err := desc.Decode(d.encoded.String)
		if err != nil {
			return nil, fmt.Errorf("metadata %s/%s key %q: %w", entityType, entityID, d.key, err)
		}
		out[d.key] = decoded
	}
	return out, nil
}

// Set upserts exactly one row for (entityType, entityID, key). The caller
// supplies the codec-encoded value and its type tag, and the Querier it
// wants the write to run on (the connection, or an open transaction).
func (s *Store) Set(ctx context.Context, q store.Querier, entityType, entityID, key, typeID, encoded string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO _metadata (id, entity_type, entity_id, key, type, value)
		 VALUES (%s, %s, %s, %s, %s, %s)
		 ON CONFLICT (entity_type, entity_id, key)
		 DO UPDATE SET type = excluded.type, value = excluded.value, updated_at = %s`,
		pb.Add(uuid.New().String()), pb.Add(entityType), pb.Add(entityID),
		pb.Add(key), pb.Add(typeID), pb.Add(encoded), s.db.Dialect.NowExpr())
	if _, err := store.Exec(ctx, q, sqlStr, pb.Params()...); err != nil {
		return s.db.Dialect.MapError(err)
	}
	return nil
}

// DeleteKeys removes the given keys for an entity. Missing keys are not an
// error.
func (s *Store) DeleteKeys(ctx context.Context, q store.Querier, entityType, entityID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = k
	}
	pb := s.db.Dialect.NewParamBuilder()
	cond := s.db.Dialect.InExpr("key", pb, vals)
	sqlStr := fmt.Sprintf(
		"DELETE FROM _metadata WHERE entity_type = %s AND entity_id = %s AND %s",
		pb.Add(entityType), pb.Add(entityID), cond)
	if _, err := store.Exec(ctx, q, sqlStr, pb.Params()...); err != nil {
		return err
	}
	return nil
}

// DeleteAll removes every metadata row for an entity; a no-op when none
// exist.
func (s *Store) DeleteAll(ctx context.Context, entityType, entityID string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"DELETE FROM _metadata WHERE entity_type = %s AND entity_id = %s",
		pb.Add(entityType), pb.Add(entityID))
	_, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	return err
}

// Copy atomically replaces the destination's metadata with a copy of the
// source's rows, key and encoded value alike. A source with no rows leaves
// the destination empty.
func (s *Store) Copy(ctx context.Context, srcType, srcID, dstType, dstID string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// The source is read inside the transaction so a concurrent writer
	// cannot leave the destination with a half-updated snapshot.
	data, err := s.queryData(ctx, tx, srcType, srcID)
	if err != nil {
		return err
	}

	dpb := s.db.Dialect.NewParamBuilder()
	delSQL := fmt.Sprintf(
		"DELETE FROM _metadata WHERE entity_type = %s AND entity_id = %s",
		dpb.Add(dstType), dpb.Add(dstID))
	if _, err := store.Exec(ctx, tx, delSQL, dpb.Params()...); err != nil {
		return err
	}

	for _, d := range data {
		pb := s.db.Dialect.NewParamBuilder()
		var value any
		if d.encoded.Valid {
			value = d.encoded.String
		}
		insSQL := fmt.Sprintf(
			"INSERT INTO _metadata (id, entity_type, entity_id, key, type, value) VALUES (%s, %s, %s, %s, %s, %s)",
			pb.Add(uuid.New().String()), pb.Add(dstType), pb.Add(dstID),
			pb.Add(d.key), pb.Add(d.typeID), pb.Add(value))
		if _, err := store.Exec(ctx, tx, insSQL, pb.Params()...); err != nil {
			return s.db.Dialect.MapError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
