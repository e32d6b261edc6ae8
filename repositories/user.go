package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	userPrefix  = "user:"
	emailPrefix = "email:"
)

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// CreateUser persists a new account under "user:{username}" and reserves the
// email under "email:{email}". Both must be free.
func (u UserRepository) CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:           domain.UserIdentity(uuid.NewString()),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	err := u.db.Update(func(txn *badger.Txn) error {
		userKey := []byte(userPrefix + user.Username)
		emailKey := []byte(emailPrefix + user.Email)
		for _, key := range [][]byte{userKey, emailKey} {
			if _, err := txn.Get(key); err == nil {
				return errors.ErrUserAlreadyExists
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		if err := txn.Set(userKey, encodeUser(user)); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(user.ID))
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user %s: %w", username, err)
	}
	return user, nil
}

func (u UserRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + username))
		if err == badger.ErrKeyNotFound {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			user, err = decodeUser(val)
			return err
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// ListUsers returns every account except the excluded identity, sorted by username.
func (u UserRepository) ListUsers(ctx context.Context, exclude domain.UserIdentity) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				user, err := decodeUser(val)
				if err != nil {
					return err
				}
				if user.ID != exclude {
					users = append(users, user)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
