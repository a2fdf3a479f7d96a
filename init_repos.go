package main

import (
	"database/sql"

	"github.com/akinalp/agora/repository"
)

// Repositories holds the pool-bound repositories used outside transactions.
// Transactional code builds its own set through repository.NewSQLiteStore.
type Repositories struct {
	User         repository.UserRepository
	Notification repository.NotificationRepository
	Reputation   repository.ReputationRepository
	Membership   repository.MembershipRepository
	Forum        repository.ForumRepository
}

func initRepositories(db *sql.DB) *Repositories {
	store := repository.NewSQLiteStore(db)
	return &Repositories{
		User:         store.Users,
		Notification: store.Notifications,
		Reputation:   store.Reputation,
		Membership:   store.Membership,
		Forum:        store.Forum,
	}
}
