package domain

import (
	"time"
)

type SendMessageCommand struct {
	From      UserIdentity
	To        UserIdentity
	Body      string
	CreatedAt time.Time
}

// GetHistoryCommand reads the conversation between From and To.
// Limit keeps only the most recent messages when set.
type GetHistoryCommand struct {
	From  UserIdentity
	To    UserIdentity
	Limit *int
}
