package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Page is one page of a descending table scan, decoded.
type Page[T any] struct {
	Items          []*T
	StartSortValue int64
	EndSortValue   int64
	HasMore        bool
}

// Table is a typed view over one driver table. Values are stored as JSON and
// ordered by the sort key extracted from the value at write time.
type Table[T any] struct {
	store   *Store
	name    string
	sortKey func(*T) int64
}

// NewTable builds a typed table bound to s. sortKey must not be nil.
func NewTable[T any](s *Store, name string, sortKey func(*T) int64) *Table[T] {
	return &Table[T]{store: s, name: name, sortKey: sortKey}
}

// Name returns the underlying table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Get loads one value. A missing record returns (nil, nil).
func (t *Table[T]) Get(ctx context.Context, partition, key string) (*T, error) {
	raw, err := t.store.driver.Get(ctx, t.name, partition, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s %s/%s", t.name, partition, key)
	}
	if raw == nil {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s %s/%s", t.name, partition, key)
	}
	return v, nil
}

// Set stores one value, overwriting any previous record under the same key.
func (t *Table[T]) Set(ctx context.Context, partition, key string, v *T) error {
	if v == nil {
		return errors.Errorf("failed to set %s %s/%s: nil value", t.name, partition, key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s %s/%s", t.name, partition, key)
	}
	if err := t.store.driver.Set(ctx, t.name, partition, key, raw, t.sortKey(v)); err != nil {
		return errors.Wrapf(err, "failed to set %s %s/%s", t.name, partition, key)
	}
	return nil
}

// Remove drops one record. Removing a missing record is not an error.
func (t *Table[T]) Remove(ctx context.Context, partition, key string) error {
	if err := t.store.driver.Remove(ctx, t.name, partition, key); err != nil {
		return errors.Wrapf(err, "failed to remove %s %s/%s", t.name, partition, key)
	}
	return nil
}

// RemoveAll drops every record of one partition.
func (t *Table[T]) RemoveAll(ctx context.Context, partition string) error {
	if err := t.store.driver.RemoveAll(ctx, t.name, partition); err != nil {
		return errors.Wrapf(err, "failed to remove all of %s %s", t.name, partition)
	}
	return nil
}

// Query scans one partition newest-first. opt.StartSortValue is exclusive, so
// passing the EndSortValue of the previous page continues the scan without
// overlap.
func (t *Table[T]) Query(ctx context.Context, partition string, opt QueryOption) (*Page[T], error) {
	res, err := t.store.driver.Query(ctx, t.name, partition, opt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s %s", t.name, partition)
	}
	page := &Page[T]{
		Items:          make([]*T, 0, len(res.Items)),
		StartSortValue: res.StartSortValue,
		EndSortValue:   res.EndSortValue,
		HasMore:        res.HasMore,
	}
	for _, e := range res.Items {
		v := new(T)
		if err := json.Unmarshal(e.Value, v); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s %s/%s", t.name, partition, e.Key)
		}
		page.Items = append(page.Items, v)
	}
	return page, nil
}

// Last returns the newest value of a partition, or (nil, nil) when the
// partition is empty.
func (t *Table[T]) Last(ctx context.Context, partition string) (*T, error) {
	e, err := t.store.driver.Last(ctx, t.name, partition)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read last of %s %s", t.name, partition)
	}
	if e == nil {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(e.Value, v); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s %s/%s", t.name, partition, e.Key)
	}
	return v, nil
}

// Filter returns the partition's values for which keep reports true, newest
// first. A nil keep returns everything.
func (t *Table[T]) Filter(ctx context.Context, partition string, keep func(*T) bool) ([]*T, error) {
	entries, err := t.store.driver.Filter(ctx, t.name, partition, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter %s %s", t.name, partition)
	}
	items := make([]*T, 0, len(entries))
	for _, e := range entries {
		v := new(T)
		if err := json.Unmarshal(e.Value, v); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s %s/%s", t.name, partition, e.Key)
		}
		if keep == nil || keep(v) {
			items = append(items, v)
		}
	}
	return items, nil
}

// Clear drops every record of the table across all partitions.
func (t *Table[T]) Clear(ctx context.Context) error {
	if err := t.store.driver.Clear(ctx, t.name); err != nil {
		return errors.Wrapf(err, "failed to clear %s", t.name)
	}
	return nil
}
