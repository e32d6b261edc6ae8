// Package domain contains core concepts of the relay.
// This file defines the account known to the REST layer.
package domain

import "time"

type User struct {
	ID           UserIdentity
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
