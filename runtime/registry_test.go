package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/sink"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newSink(t *testing.T) *sink.ConnectionSink {
	t.Helper()
	return sink.NewConnectionSink(domain.NewConnectionID(), logs.GetLoggerFromLevel(slog.LevelDebug), 8)
}

func TestRegistry_Bind_One_User_Many_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s1, s2 := newSink(t), newSink(t)

	// Given no user is connected
	req.Empty(registry.ActiveConnections("u"))
	req.Nil(registry.Sinks("u"))

	// When two connections bind the same user
	req.NoError(registry.Bind(s1.ID(), "u", s1))
	req.NoError(registry.Bind(s2.ID(), "u", s2))

	// Then both are listed, sorted
	connections := registry.ActiveConnections("u")
	req.Len(connections, 2)
	req.ElementsMatch([]domain.ConnectionID{s1.ID(), s2.ID()}, connections)
	req.True(connections[0] < connections[1])

	// And sinks follow the same order
	sinks := registry.Sinks("u")
	req.Len(sinks, 2)
	req.Equal(connections[0], sinks[0].ID())
	req.Equal(connections[1], sinks[1].ID())
}

func TestRegistry_Bind_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s := newSink(t)

	req.NoError(registry.Bind(s.ID(), "u", s))
	req.NoError(registry.Bind(s.ID(), "u", s))

	req.Equal([]domain.ConnectionID{s.ID()}, registry.ActiveConnections("u"))
}

func TestRegistry_Bind_Conflict_Keeps_Existing_Binding(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s := newSink(t)

	// Given a connection bound to u1
	req.NoError(registry.Bind(s.ID(), "u1", s))

	// When the same connection tries to bind u2
	err := registry.Bind(s.ID(), "u2", s)

	// Then the bind is rejected and nothing moved
	req.ErrorIs(err, errors.ErrConflict)
	req.Equal([]domain.ConnectionID{s.ID()}, registry.ActiveConnections("u1"))
	req.Empty(registry.ActiveConnections("u2"))
}

func TestRegistry_Unbind(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s1, s2 := newSink(t), newSink(t)
	req.NoError(registry.Bind(s1.ID(), "u", s1))
	req.NoError(registry.Bind(s2.ID(), "u", s2))

	// When one connection is unbound
	registry.Unbind(s1.ID())

	// Then only the other one is left
	req.Equal([]domain.ConnectionID{s2.ID()}, registry.ActiveConnections("u"))

	// And unbinding an unknown or already unbound connection is harmless
	registry.Unbind(s1.ID())
	registry.Unbind(domain.NewConnectionID())

	registry.Unbind(s2.ID())
	req.Empty(registry.ActiveConnections("u"))
	req.Nil(registry.Sinks("u"))

	// And the connection can now bind another user
	req.NoError(registry.Bind(s1.ID(), "other", s1))
}

func TestRegistry_Concurrent_Bind_Unbind_Stays_Consistent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	const users, connectionsPerUser = 20, 10

	var wg sync.WaitGroup
	kept := make([][]contract.ConnectionSink, users)
	for u := 0; u < users; u++ {
		user := domain.UserIdentity(fmt.Sprintf("user-%d", u))
		for c := 0; c < connectionsPerUser; c++ {
			s := newSink(t)
			if c%2 == 0 {
				kept[u] = append(kept[u], s)
			}
			wg.Add(1)
			go func(s *sink.ConnectionSink, unbind bool) {
				defer wg.Done()
				_ = registry.Bind(s.ID(), user, s)
				_ = registry.ActiveConnections(user)
				if unbind {
					registry.Unbind(s.ID())
				}
			}(s, c%2 == 1)
		}
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		user := domain.UserIdentity(fmt.Sprintf("user-%d", u))
		connections := registry.ActiveConnections(user)
		req.Len(connections, connectionsPerUser/2)
		for _, s := range kept[u] {
			req.Contains(connections, s.ID())
		}
	}
}
