package pg

import (
	"fmt"

	"github.com/mk-162/fixMate/internal/store"
)

// NewStores creates all stores backed by Postgres.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres stores: %w", err)
	}

	s := &store.Stores{
		Issues:        NewIssueStore(db),
		Messages:      NewMessageStore(db),
		Activity:      NewActivityStore(db),
		Conversations: NewConversationStore(db),
		Tenants:       NewTenantDirectory(db),
		Properties:    NewPropertyDirectory(db),
	}
	s.SetCloser(db.Close)
	return s, nil
}
