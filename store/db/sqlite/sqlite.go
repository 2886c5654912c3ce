// Package sqlite implements the store.Driver contract on a local SQLite file
// via the pure-Go modernc.org/sqlite driver. Tables are created lazily on
// first use, one SQL table per logical table, keyed by (partition, key) with
// a secondary index on (partition, sort_key) for descending scans.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/parley-im/parley-go/store"
)

// defaultQueryLimit caps partition scans that do not set an explicit limit.
const defaultQueryLimit = 100

type DB struct {
	db *sql.DB

	mu      sync.Mutex
	created map[string]bool
}

// New opens (or creates) the database file dbName under rootPath.
//
// Connection notes:
//   - With the modernc.org/sqlite driver each pragma must be prefixed with
//     `_pragma=`.
//   - Journal mode WAL is the recommended mode for this single-writer,
//     many-reader workload as it prevents locking issues.
//   - A single always-ready connection serializes writes without busy errors.
func New(rootPath, dbName string) (store.Driver, error) {
	if dbName == "" {
		return nil, errors.New("db name required")
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data dir: %s", rootPath)
	}

	dsn := filepath.Join(rootPath, dbName)
	sqliteDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	// sql.Open is lazy; ping now so a broken data dir is reported here and
	// the caller can fall back to the memory driver.
	if err := sqliteDB.Ping(); err != nil {
		_ = sqliteDB.Close()
		return nil, errors.Wrapf(err, "failed to ping db with dsn: %s", dsn)
	}

	return &DB{db: sqliteDB, created: make(map[string]bool)}, nil
}

func (d *DB) Get(ctx context.Context, table, partition, key string) ([]byte, error) {
	if err := d.ensure(ctx, table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT entry_value FROM %s WHERE partition_id = ? AND entry_key = ?", table)
	var value string
	err := d.db.QueryRowContext(ctx, q, partition, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s/%s from %s", partition, key, table)
	}
	return []byte(value), nil
}

func (d *DB) Set(ctx context.Context, table, partition, key string, value []byte, sortKey int64) error {
	if err := d.ensure(ctx, table); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (partition_id, entry_key, entry_value, sort_key) VALUES (?, ?, ?, ?)
		ON CONFLICT (partition_id, entry_key) DO UPDATE SET entry_value = excluded.entry_value, sort_key = excluded.sort_key`, table)
	if _, err := d.db.ExecContext(ctx, q, partition, key, string(value), sortKey); err != nil {
		return errors.Wrapf(err, "failed to set %s/%s in %s", partition, key, table)
	}
	return nil
}

func (d *DB) Remove(ctx context.Context, table, partition, key string) error {
	if err := d.ensure(ctx, table); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE partition_id = ? AND entry_key = ?", table)
	if _, err := d.db.ExecContext(ctx, q, partition, key); err != nil {
		return errors.Wrapf(err, "failed to remove %s/%s from %s", partition, key, table)
	}
	return nil
}

func (d *DB) RemoveAll(ctx context.Context, table, partition string) error {
	if err := d.ensure(ctx, table); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE partition_id = ?", table)
	if _, err := d.db.ExecContext(ctx, q, partition); err != nil {
		return errors.Wrapf(err, "failed to remove partition %s from %s", partition, table)
	}
	return nil
}

func (d *DB) Query(ctx context.Context, table, partition string, opt store.QueryOption) (*store.QueryResult, error) {
	if err := d.ensure(ctx, table); err != nil {
		return nil, err
	}
	limit := opt.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	q := fmt.Sprintf("SELECT entry_key, entry_value, sort_key FROM %s WHERE partition_id = ?", table)
	args := []any{partition}
	if opt.StartSortValue > 0 {
		q += " AND sort_key < ?"
		args = append(args, opt.StartSortValue)
	}
	if opt.Keyword != "" {
		q += " AND instr(entry_value, ?) > 0"
		args = append(args, opt.Keyword)
	}
	// Fetch one row beyond the limit to learn whether more pages exist.
	q += " ORDER BY sort_key DESC, entry_key DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s %s", table, partition)
	}
	defer rows.Close()

	res := &store.QueryResult{}
	for rows.Next() {
		var (
			e     store.Entry
			value string
		)
		if err := rows.Scan(&e.Key, &value, &e.SortKey); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s row", table)
		}
		e.Partition = partition
		e.Value = []byte(value)
		res.Items = append(res.Items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to iterate %s rows", table)
	}

	if len(res.Items) > limit {
		res.Items = res.Items[:limit]
		res.HasMore = true
	}
	if n := len(res.Items); n > 0 {
		res.StartSortValue = res.Items[0].SortKey
		res.EndSortValue = res.Items[n-1].SortKey
	}
	return res, nil
}

func (d *DB) Last(ctx context.Context, table, partition string) (*store.Entry, error) {
	if err := d.ensure(ctx, table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT entry_key, entry_value, sort_key FROM %s WHERE partition_id = ? ORDER BY sort_key DESC, entry_key DESC LIMIT 1", table)
	var (
		e     store.Entry
		value string
	)
	err := d.db.QueryRowContext(ctx, q, partition).Scan(&e.Key, &value, &e.SortKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read last of %s %s", table, partition)
	}
	e.Partition = partition
	e.Value = []byte(value)
	return &e, nil
}

func (d *DB) Filter(ctx context.Context, table, partition string, keep func(store.Entry) bool) ([]store.Entry, error) {
	if err := d.ensure(ctx, table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT entry_key, entry_value, sort_key FROM %s WHERE partition_id = ? ORDER BY sort_key DESC, entry_key DESC", table)
	rows, err := d.db.QueryContext(ctx, q, partition)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter %s %s", table, partition)
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var (
			e     store.Entry
			value string
		)
		if err := rows.Scan(&e.Key, &value, &e.SortKey); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s row", table)
		}
		e.Partition = partition
		e.Value = []byte(value)
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to iterate %s rows", table)
	}
	return out, nil
}

func (d *DB) Clear(ctx context.Context, table string) error {
	if err := d.ensure(ctx, table); err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return errors.Wrapf(err, "failed to clear %s", table)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// ensure creates the backing SQL table and its sort index once per process.
// Table names come from the store package's fixed set, but validate anyway
// since they are interpolated into SQL.
func (d *DB) ensure(ctx context.Context, table string) error {
	if !validTable(table) {
		return errors.Errorf("invalid table name: %q", table)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.created[table] {
		return nil
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		partition_id TEXT NOT NULL,
		entry_key    TEXT NOT NULL,
		entry_value  TEXT NOT NULL,
		sort_key     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (partition_id, entry_key)
	)`, table)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "failed to create table %s", table)
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_sort ON %s (partition_id, sort_key)", table, table)
	if _, err := d.db.ExecContext(ctx, idx); err != nil {
		return errors.Wrapf(err, "failed to index table %s", table)
	}

	d.created[table] = true
	return nil
}

func validTable(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return true
}
