package repository

import "github.com/akinalp/agora/database"

// Store bundles every repository over one querier. Services open one per
// transaction so all writes of a business operation share the same tx.
type Store struct {
	Users         UserRepository
	Notifications NotificationRepository
	Reputation    ReputationRepository
	Membership    MembershipRepository
	Forum         ForumRepository
}

// StoreFactory builds a Store over the pool or over a running transaction.
type StoreFactory func(q database.TxQuerier) *Store

// NewSQLiteStore is the StoreFactory for the SQLite implementations.
func NewSQLiteStore(q database.TxQuerier) *Store {
	return &Store{
		Users:         NewSQLiteUserRepo(q),
		Notifications: NewSQLiteNotificationRepo(q),
		Reputation:    NewSQLiteReputationRepo(q),
		Membership:    NewSQLiteMembershipRepo(q),
		Forum:         NewSQLiteForumRepo(q),
	}
}
