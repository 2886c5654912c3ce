// Package db wires concrete storage drivers into the store facade.
package db

import (
	"log/slog"

	"github.com/parley-im/parley-go/store"
	"github.com/parley-im/parley-go/store/db/memory"
	"github.com/parley-im/parley-go/store/db/sqlite"
)

// Open returns a driver backed by the SQLite file dbName under rootPath.
// When the file cannot be opened the in-memory driver is returned instead and
// degraded reports true; the cache then lives only as long as the process.
func Open(rootPath, dbName string) (driver store.Driver, degraded bool) {
	d, err := sqlite.New(rootPath, dbName)
	if err != nil {
		slog.Error("Durable store unavailable, falling back to memory",
			"rootPath", rootPath,
			"dbName", dbName,
			"error", err)
		return memory.New(), true
	}
	return d, false
}
