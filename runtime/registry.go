package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 32

type connectionShard struct {
	mu     sync.Mutex
	owners map[domain.ConnectionID]domain.UserIdentity
}

type userShard struct {
	mu      sync.RWMutex
	members map[domain.UserIdentity]map[domain.ConnectionID]contract.ConnectionSink
}

// Registry maps user identities to their live connections.
// Connections and users are spread over independent shards so that binding
// one user never waits on another one. A writer always locks the connection
// shard first, then the user shard. Readers only lock the user shard.
type Registry struct {
	connections [shardCount]*connectionShard
	users       [shardCount]*userShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := 0; i < shardCount; i++ {
		r.connections[i] = &connectionShard{owners: make(map[domain.ConnectionID]domain.UserIdentity)}
		r.users[i] = &userShard{members: make(map[domain.UserIdentity]map[domain.ConnectionID]contract.ConnectionSink)}
	}
	return r
}

// Bind attaches a connection to a user.
// Binding again to the same user is a no-op, binding to another user fails
// with ErrConflict and leaves the existing binding untouched.
func (r *Registry) Bind(connID domain.ConnectionID, user domain.UserIdentity, sink contract.ConnectionSink) error {
	cs := r.connectionShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if owner, ok := cs.owners[connID]; ok {
		if owner == user {
			return nil
		}
		return fmt.Errorf("%w: %s is bound to %s", errors.ErrConflict, connID, owner)
	}

	us := r.userShard(user)
	us.mu.Lock()
	defer us.mu.Unlock()

	sinks, ok := us.members[user]
	if !ok {
		sinks = make(map[domain.ConnectionID]contract.ConnectionSink)
		us.members[user] = sinks
	}
	sinks[connID] = sink
	cs.owners[connID] = user
	return nil
}

// Unbind forgets the connection. Unknown connections are ignored.
func (r *Registry) Unbind(connID domain.ConnectionID) {
	cs := r.connectionShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user, ok := cs.owners[connID]
	if !ok {
		return
	}
	delete(cs.owners, connID)

	us := r.userShard(user)
	us.mu.Lock()
	defer us.mu.Unlock()
	if sinks, ok := us.members[user]; ok {
		delete(sinks, connID)
		// No empty set left behind for users gone offline
		if len(sinks) == 0 {
			delete(us.members, user)
		}
	}
}

// ActiveConnections returns the connections bound to the user, sorted.
func (r *Registry) ActiveConnections(user domain.UserIdentity) []domain.ConnectionID {
	us := r.userShard(user)
	us.mu.RLock()
	defer us.mu.RUnlock()

	ids := make([]domain.ConnectionID, 0, len(us.members[user]))
	for id := range us.members[user] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sinks returns the outbound handles of the user's connections, in the same
// order as ActiveConnections.
func (r *Registry) Sinks(user domain.UserIdentity) []contract.ConnectionSink {
	us := r.userShard(user)
	us.mu.RLock()
	defer us.mu.RUnlock()

	members := us.members[user]
	if len(members) == 0 {
		return nil
	}
	ids := make([]domain.ConnectionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sinks := make([]contract.ConnectionSink, 0, len(ids))
	for _, id := range ids {
		sinks = append(sinks, members[id])
	}
	return sinks
}

func (r *Registry) connectionShard(id domain.ConnectionID) *connectionShard {
	return r.connections[shardOf(string(id))]
}

func (r *Registry) userShard(user domain.UserIdentity) *userShard {
	return r.users[shardOf(string(user))]
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
