// Package repository is the data access layer. Each aggregate has an
// interface here and a SQLite implementation in sqlite_*.go.
//
// Every constructor takes a database.TxQuerier, so the same repository code
// runs against the pool or inside a transaction:
//
//	users := repository.NewSQLiteUserRepo(db.Conn)   // standalone reads
//	users := repository.NewSQLiteUserRepo(tx)        // inside database.WithTx
package repository

import (
	"context"

	"github.com/akinalp/agora/models"
)

// UserRepository reads the account mirror.
type UserRepository interface {
	// Create stores a user. An empty ID is filled with a new uuid and a zero
	// CreatedAt with the current time.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	// ListIDs returns every user id except the excluded one.
	ListIDs(ctx context.Context, excludeID string) ([]string, error)
	Delete(ctx context.Context, id string) error
}
