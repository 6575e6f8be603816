package chat

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultipleConnectionsPerUser(t *testing.T) {
	r := NewRegistry()

	a1 := r.Register("alice", &fakeHandle{})
	a2 := r.Register("alice", &fakeHandle{})
	r.Register("bob", &fakeHandle{})

	assert.NotEqual(t, a1, a2)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"alice", "bob"}, r.OnlineUserIDs())
	assert.Len(t, r.ConnectionsFor("alice"), 2)

	conn, ok := r.Unregister(a1)
	require.True(t, ok)
	assert.Equal(t, "alice", conn.UserID)
	assert.Equal(t, []string{"alice", "bob"}, r.OnlineUserIDs())

	_, ok = r.Unregister(a1)
	assert.False(t, ok, "unregister is idempotent")

	r.Unregister(a2)
	assert.Equal(t, []string{"bob"}, r.OnlineUserIDs())
	assert.Empty(t, r.ConnectionsFor("alice"))
}

func TestRegistryConnectionsForIsSnapshot(t *testing.T) {
	r := NewRegistry()
	id := r.Register("alice", &fakeHandle{})

	snap := r.ConnectionsFor("alice")
	r.Unregister(id)
	r.Register("alice", &fakeHandle{})

	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].ID)
}

// The online set always equals the set of users holding a live connection.
func TestRegistryOnlineSetProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []string{"u1", "u2", "u3", "u4"}

	for round := 0; round < 50; round++ {
		r := NewRegistry()
		live := map[ConnectionID]string{}
		var ids []ConnectionID

		for step := 0; step < 200; step++ {
			if len(ids) == 0 || rng.Intn(3) > 0 {
				u := users[rng.Intn(len(users))]
				id := r.Register(u, &fakeHandle{})
				live[id] = u
				ids = append(ids, id)
			} else {
				// may pick an id that is already gone
				id := ids[rng.Intn(len(ids))]
				_, ok := r.Unregister(id)
				_, wasLive := live[id]
				require.Equal(t, wasLive, ok)
				delete(live, id)
			}

			want := []string{}
			seen := map[string]bool{}
			for _, u := range live {
				if !seen[u] {
					seen[u] = true
					want = append(want, u)
				}
			}
			slices.Sort(want)

			require.Equal(t, want, r.OnlineUserIDs(), "round %d step %d", round, step)
			require.Equal(t, len(live), r.Len())
		}
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%4)
			for j := 0; j < 100; j++ {
				id := r.Register(user, &fakeHandle{})
				r.ConnectionsFor(user)
				r.OnlineUserIDs()
				r.All()
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.Len())
	assert.Empty(t, r.OnlineUserIDs())
}
