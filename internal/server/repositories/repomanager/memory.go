package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/staffkeeper/internal/dbx"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
)

// MemoryRepositoryManager keeps everything in process. The db arguments are
// ignored and every call to Principals returns the same store.
type MemoryRepositoryManager struct {
	principals *principals.MemoryRepository
}

func (m *MemoryRepositoryManager) Principals(dbx.DBTX) principals.Repository {
	return m.principals
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{principals: principals.NewMemoryRepository()}
}
