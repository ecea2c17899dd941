package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/staffkeeper/internal/dbx"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
)

// Store names accepted by New.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Principals(db dbx.DBTX) principals.Repository
}

// New returns the manager for the named store.
func New(store string) (RepositoryManager, error) {
	switch store {
	case StorePostgres:
		return NewPostgresRepositoryManager(), nil
	case StoreSQLite:
		return NewSQLiteRepositoryManager(), nil
	case StoreMemory:
		return NewMemoryRepositoryManager(), nil
	}
	return nil, fmt.Errorf("unknown store %q", store)
}

// Driver is the database/sql driver name for store, empty for the memory store.
func Driver(store string) string {
	switch store {
	case StorePostgres:
		return dbx.DriverPostgres
	case StoreSQLite:
		return dbx.DriverSQLite
	}
	return ""
}
