// Package memory implements the store.Driver contract in process memory. It
// backs tests and the degraded mode entered when the SQLite file cannot be
// opened. Contents are lost when the process exits.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/parley-im/parley-go/store"
)

const defaultQueryLimit = 100

// entry slices are kept sorted ascending by (sortKey, key); descending reads
// walk them from the end.
type entry struct {
	key     string
	value   []byte
	sortKey int64
}

type DB struct {
	mu     sync.RWMutex
	tables map[string]map[string][]entry
}

// New builds an empty in-memory driver.
func New() store.Driver {
	return &DB{tables: make(map[string]map[string][]entry)}
}

func (d *DB) Get(_ context.Context, table, partition, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.tables[table][partition] {
		if e.key == key {
			return e.value, nil
		}
	}
	return nil, nil
}

func (d *DB) Set(_ context.Context, table, partition, key string, value []byte, sortKey int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	parts, ok := d.tables[table]
	if !ok {
		parts = make(map[string][]entry)
		d.tables[table] = parts
	}
	p := removeKey(parts[partition], key)

	e := entry{key: key, value: slices.Clone(value), sortKey: sortKey}
	idx := sort.Search(len(p), func(i int) bool {
		if p[i].sortKey != sortKey {
			return p[i].sortKey > sortKey
		}
		return p[i].key > key
	})
	parts[partition] = slices.Insert(p, idx, e)
	return nil
}

func (d *DB) Remove(_ context.Context, table, partition, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if parts, ok := d.tables[table]; ok {
		parts[partition] = removeKey(parts[partition], key)
	}
	return nil
}

func (d *DB) RemoveAll(_ context.Context, table, partition string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if parts, ok := d.tables[table]; ok {
		delete(parts, partition)
	}
	return nil
}

func (d *DB) Query(_ context.Context, table, partition string, opt store.QueryOption) (*store.QueryResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	limit := opt.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	res := &store.QueryResult{}
	p := d.tables[table][partition]
	for i := len(p) - 1; i >= 0; i-- {
		e := p[i]
		if opt.StartSortValue > 0 && e.sortKey >= opt.StartSortValue {
			continue
		}
		if opt.Keyword != "" && !bytes.Contains(e.value, []byte(opt.Keyword)) {
			continue
		}
		if len(res.Items) == limit {
			res.HasMore = true
			break
		}
		res.Items = append(res.Items, store.Entry{
			Partition: partition,
			Key:       e.key,
			Value:     e.value,
			SortKey:   e.sortKey,
		})
	}
	if n := len(res.Items); n > 0 {
		res.StartSortValue = res.Items[0].SortKey
		res.EndSortValue = res.Items[n-1].SortKey
	}
	return res, nil
}

func (d *DB) Last(_ context.Context, table, partition string) (*store.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := d.tables[table][partition]
	if len(p) == 0 {
		return nil, nil
	}
	e := p[len(p)-1]
	return &store.Entry{Partition: partition, Key: e.key, Value: e.value, SortKey: e.sortKey}, nil
}

func (d *DB) Filter(_ context.Context, table, partition string, keep func(store.Entry) bool) ([]store.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := d.tables[table][partition]
	var out []store.Entry
	for i := len(p) - 1; i >= 0; i-- {
		e := store.Entry{Partition: partition, Key: p[i].key, Value: p[i].value, SortKey: p[i].sortKey}
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *DB) Clear(_ context.Context, table string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables, table)
	return nil
}

func (d *DB) Close() error {
	return nil
}

func removeKey(p []entry, key string) []entry {
	for i, e := range p {
		if e.key == key {
			return slices.Delete(p, i, i+1)
		}
	}
	return p
}
