package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/providers/memory"
)

var (
	// ErrRecordNotFound is returned when no record has the requested key.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists is returned when creating a record whose key is taken.
	ErrRecordExists = errors.New("record already exists")

	// ErrRecordKeyMissing is returned by UpdateMany for records without a key.
	ErrRecordKeyMissing = errors.New("record has no key")
)

// RecordStore is an engine.DataProvider keeping each record as a JSON
// document in the records table. Filtering, sorting and pagination follow
// the in-memory provider. Bulk operations run in one transaction.
type RecordStore struct {
	engine.BaseDataProvider

	db     *sql.DB
	key    string
	newKey func() any
}

// RecordOption configures a RecordStore.
type RecordOption func(*RecordStore)

// WithRecordKey sets the identifier attribute. Defaults to "id".
func WithRecordKey(attr string) RecordOption {
	return func(r *RecordStore) {
		r.key = attr
	}
}

// WithRecordKeyGenerator sets the function generating keys for records
// created without one. Defaults to random UUID strings.
func WithRecordKeyGenerator(fn func() any) RecordOption {
	return func(r *RecordStore) {
		r.newKey = fn
	}
}

// GetMany lists the records under path.
func (r *RecordStore) GetMany(ctx context.Context, path string, params engine.Params) (*engine.Response, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM records WHERE path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	defer rows.Close()

	var records []engine.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	page, total := memory.Query(records, params)
	return &engine.Response{Data: page, Total: total}, nil
}

// GetOne returns the record identified by key.
func (r *RecordStore) GetOne(ctx context.Context, path string, key any, _ engine.Params) (*engine.Response, error) {
	rec, err := r.load(ctx, r.db, path, key)
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: rec}, nil
}

// CreateOne stores data, generating a key when it has none.
func (r *RecordStore) CreateOne(ctx context.Context, path string, data engine.Record, _ engine.Params) (*engine.Response, error) {
	rec := maps.Clone(data)
	if rec == nil {
		rec = engine.Record{}
	}
	if _, ok := rec[r.key]; !ok {
		rec[r.key] = r.generateKey()
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.load(ctx, tx, path, rec[r.key]); err == nil {
			return fmt.Errorf("%s/%v: %w", path, rec[r.key], ErrRecordExists)
		} else if !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		return r.insert(ctx, tx, path, rec)
	})
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: rec}, nil
}

// UpdateOne merges data into the record identified by key. The key itself
// is never changed.
func (r *RecordStore) UpdateOne(ctx context.Context, path string, key any, data engine.Record, _ engine.Params) (*engine.Response, error) {
	var rec engine.Record
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = r.update(ctx, tx, path, key, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: rec}, nil
}

// UpdateMany merges each record of data into the stored record with the
// same key. Nothing is changed unless every record exists.
func (r *RecordStore) UpdateMany(ctx context.Context, path string, data []engine.Record, _ engine.Params) (*engine.Response, error) {
	updated := make([]engine.Record, 0, len(data))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for i, d := range data {
			key, ok := d[r.key]
			if !ok {
				return fmt.Errorf("%s[%d]: %w", path, i, ErrRecordKeyMissing)
			}
			rec, err := r.update(ctx, tx, path, key, d)
			if err != nil {
				return err
			}
			updated = append(updated, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: updated, Total: int64(len(updated))}, nil
}

// DeleteOne removes the record identified by key and returns it.
func (r *RecordStore) DeleteOne(ctx context.Context, path string, key any, _ engine.Params) (*engine.Response, error) {
	var rec engine.Record
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = r.remove(ctx, tx, path, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: rec}, nil
}

// DeleteMany removes the records identified by keys. Nothing is removed
// unless every key exists.
func (r *RecordStore) DeleteMany(ctx context.Context, path string, keys []any, _ engine.Params) (*engine.Response, error) {
	deleted := make([]engine.Record, 0, len(keys))
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			rec, err := r.remove(ctx, tx, path, key)
			if err != nil {
				return err
			}
			deleted = append(deleted, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: deleted, Total: int64(len(deleted))}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *RecordStore) load(ctx context.Context, q queryer, path string, key any) (engine.Record, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM records WHERE path = ? AND key = ?`,
		path, memory.NormalizeKey(key),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%v: %w", path, key, ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%v: %w", path, key, err)
	}
	return decodeRecord(data)
}

func (r *RecordStore) insert(ctx context.Context, tx *sql.Tx, path string, rec engine.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (path, key, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		path, memory.NormalizeKey(rec[r.key]), string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create %s/%v: %w", path, rec[r.key], err)
	}
	return nil
}

func (r *RecordStore) update(ctx context.Context, tx *sql.Tx, path string, key any, data engine.Record) (engine.Record, error) {
	rec, err := r.load(ctx, tx, path, key)
	if err != nil {
		return nil, err
	}
	for k, v := range data {
		if k == r.key {
			continue
		}
		rec[k] = v
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE path = ? AND key = ?`,
		string(encoded), time.Now().UTC(), path, memory.NormalizeKey(key),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s/%v: %w", path, key, err)
	}
	return rec, nil
}

func (r *RecordStore) remove(ctx context.Context, tx *sql.Tx, path string, key any) (engine.Record, error) {
	rec, err := r.load(ctx, tx, path, key)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM records WHERE path = ? AND key = ?`,
		path, memory.NormalizeKey(key),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s/%v: %w", path, key, err)
	}
	return rec, nil
}

func (r *RecordStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *RecordStore) generateKey() any {
	if r.newKey != nil {
		return r.newKey()
	}
	return uuid.NewString()
}

func decodeRecord(data string) (engine.Record, error) {
	var rec engine.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
