package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t))

	// Given a registered user
	created, err := repository.CreateUser(ctx, "alice", "Alice@Example.com", "$argon2id$hash")
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal("alice@example.com", created.Email)

	// When the user is fetched back
	found, err := repository.GetUserByUsername(ctx, "alice")

	// Then every field survived the round trip
	req.NoError(err)
	req.Equal(created, found)
}

func Test_Duplicate_Username_Or_Email_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t))

	_, err := repository.CreateUser(ctx, "alice", "alice@example.com", "hash")
	req.NoError(err)

	_, err = repository.CreateUser(ctx, "alice", "other@example.com", "hash")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	_, err = repository.CreateUser(ctx, "alicia", "ALICE@example.com", "hash")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func Test_Unknown_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t))

	_, err := repository.GetUserByUsername(context.Background(), "nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func Test_List_Users_Excludes_Caller(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t))

	var alice domain.User
	for _, name := range []string{"clara", "alice", "bob"} {
		user, err := repository.CreateUser(ctx, name, name+"@example.com", "hash")
		req.NoError(err)
		if name == "alice" {
			alice = user
		}
	}

	users, err := repository.ListUsers(ctx, alice.ID)
	req.NoError(err)
	req.Equal([]string{"bob", "clara"}, lo.Map(users, func(u domain.User, _ int) string { return u.Username }))
}
