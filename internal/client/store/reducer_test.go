package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/wire"
)

var (
	alice = user.User{ID: "alice", Username: "alice", FullName: "Alice"}
	bob   = user.User{ID: "bob", Username: "bob", FullName: "Bob"}
	carol = user.User{ID: "carol", Username: "carol", FullName: "Carol"}
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msgAt(id, from, to string, offset int) message.Message {
	return message.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Text:       "text " + id,
		CreatedAt:  baseTime.Add(time.Duration(offset) * time.Second),
	}
}

func loadedModel(t *testing.T, peer user.User, msgs ...message.Message) *model {
	t.Helper()

	m := newModel(alice, Config{}.withDefaults())
	reduce(m, selectAction{peer: peer})
	reduce(m, fetchResult{gen: m.gen, peerID: peer.ID, msgs: msgs})
	require.Equal(t, PhaseLoaded, m.state.Phase)
	return m
}

func TestSelectEffectsOrder(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())

	effects := reduce(m, selectAction{peer: bob})
	require.Len(t, effects, 6)
	assert.IsType(t, cancelFetchEffect{}, effects[0])
	assert.IsType(t, detachStreamEffect{}, effects[1], "old stream is detached before the new one attaches")
	assert.IsType(t, attachStreamEffect{}, effects[2])
	assert.Equal(t, fetchEffect{gen: 1, peerID: "bob"}, effects[3])
	assert.Equal(t, cancelDebounceEffect{}, effects[4])
	assert.Equal(t, cancelSearchEffect{}, effects[5])

	assert.Equal(t, PhaseLoading, m.state.Phase)
	assert.Equal(t, "bob", m.state.Selected.ID)
	assert.Empty(t, m.state.Messages)
}

func TestSwitchingPeerRestartsSearchTimer(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())

	require.Equal(t, []effect{debounceEffect{seq: 1}}, reduce(m, queryAction{query: "abc"}))

	effects := reduce(m, selectAction{peer: bob})
	assert.Equal(t, []effect{cancelDebounceEffect{}, cancelSearchEffect{}, debounceEffect{seq: 2}}, effects[4:])

	// the timer armed before the switch no longer counts
	assert.Empty(t, reduce(m, debounceFired{seq: 1}))
	assert.Equal(t, []effect{searchEffect{seq: 2, query: "abc"}}, reduce(m, debounceFired{seq: 2}))

	effects = reduce(m, deselectAction{})
	assert.Equal(t, []effect{
		cancelFetchEffect{},
		detachStreamEffect{},
		cancelDebounceEffect{},
		cancelSearchEffect{},
		debounceEffect{seq: 3},
	}, effects)
	assert.False(t, m.state.Searching)

	// a search answer issued before the deselect is stale
	reduce(m, searchResult{seq: 2, users: []user.User{bob}})
	assert.Empty(t, m.state.Results)
}

func TestFetchReplacesViewSortedAndUnique(t *testing.T) {
	m := loadedModel(t, bob,
		msgAt("m2", "bob", "alice", 2),
		msgAt("m1", "alice", "bob", 1),
		msgAt("m2", "bob", "alice", 2),
	)

	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, "m1", m.state.Messages[0].ID)
	assert.Equal(t, "m2", m.state.Messages[1].ID)
	assert.Equal(t, []user.User{bob}, m.state.Recent)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())

	reduce(m, selectAction{peer: bob})
	staleGen := m.gen
	reduce(m, selectAction{peer: carol})

	reduce(m, fetchResult{gen: staleGen, peerID: "bob", msgs: []message.Message{msgAt("x", "bob", "alice", 1)}})
	assert.Equal(t, PhaseLoading, m.state.Phase)
	assert.Empty(t, m.state.Messages)

	reduce(m, fetchResult{gen: m.gen, peerID: "carol", msgs: []message.Message{msgAt("y", "carol", "alice", 1)}})
	assert.Equal(t, PhaseLoaded, m.state.Phase)
	require.Len(t, m.state.Messages, 1)
	assert.Equal(t, "y", m.state.Messages[0].ID)
}

func TestFetchFailure(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())
	m.state.Recent = []user.User{carol}

	reduce(m, selectAction{peer: bob})
	boom := errors.New("boom")
	reduce(m, fetchResult{gen: m.gen, peerID: "bob", err: boom})

	assert.Equal(t, PhaseFailed, m.state.Phase)
	assert.ErrorIs(t, m.state.Err, boom)
	assert.Equal(t, []user.User{carol}, m.state.Recent)
}

func TestDuplicateMessageEventIsNoop(t *testing.T) {
	m := loadedModel(t, bob, msgAt("m1", "bob", "alice", 1))

	reduce(m, messageEvent{msg: msgAt("m2", "bob", "alice", 2)})
	reduce(m, messageEvent{msg: msgAt("m2", "bob", "alice", 2)})
	reduce(m, messageEvent{msg: msgAt("m1", "bob", "alice", 1)})

	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, "m2", m.state.Messages[1].ID)
}

func TestEventsDuringLoadingAreMerged(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())
	reduce(m, selectAction{peer: bob})

	reduce(m, messageEvent{msg: msgAt("m3", "bob", "alice", 3)})
	reduce(m, messageEvent{msg: msgAt("m2", "bob", "alice", 2)})
	assert.Empty(t, m.state.Messages)

	// m2 is both pushed and part of the snapshot
	reduce(m, fetchResult{gen: m.gen, peerID: "bob", msgs: []message.Message{
		msgAt("m1", "alice", "bob", 1),
		msgAt("m2", "bob", "alice", 2),
	}})

	ids := make([]string, 0, len(m.state.Messages))
	for _, msg := range m.state.Messages {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
}

func TestEventForOtherPeer(t *testing.T) {
	m := loadedModel(t, bob)

	// unknown sender: looked up once, promoted when the lookup answers
	dave := user.User{ID: "dave", Username: "dave", FullName: "Dave"}
	effects := reduce(m, messageEvent{msg: msgAt("d1", "dave", "alice", 1)})
	assert.Equal(t, []effect{resolveSenderEffect{peerID: "dave"}}, effects)
	assert.Empty(t, reduce(m, messageEvent{msg: msgAt("d2", "dave", "alice", 2)}))
	assert.Empty(t, m.state.Messages)
	assert.Equal(t, []user.User{bob}, m.state.Recent)

	reduce(m, senderResolved{peerID: "dave", users: []user.User{bob, dave}})
	assert.Equal(t, []user.User{dave, bob}, m.state.Recent)

	// a failed lookup leaves Recent alone and allows a later retry
	effects = reduce(m, messageEvent{msg: msgAt("e1", "erin", "alice", 3)})
	require.Equal(t, []effect{resolveSenderEffect{peerID: "erin"}}, effects)
	reduce(m, senderResolved{peerID: "erin", err: errors.New("offline")})
	assert.Equal(t, []user.User{dave, bob}, m.state.Recent)
	assert.Equal(t, effects, reduce(m, messageEvent{msg: msgAt("e2", "erin", "alice", 4)}))

	// known sender: promoted into Recent, view unchanged
	m.known[carol.ID] = carol
	assert.Empty(t, reduce(m, messageEvent{msg: msgAt("c1", "carol", "alice", 2)}))
	assert.Empty(t, m.state.Messages)
	assert.Equal(t, []user.User{carol, dave, bob}, m.state.Recent)

	// not addressed to this user at all
	reduce(m, messageEvent{msg: msgAt("z", "bob", "carol", 3)})
	assert.Empty(t, m.state.Messages)
}

func TestRecentPolicies(t *testing.T) {
	keep := newModel(alice, Config{}.withDefaults())
	keep.promote(bob)
	keep.promote(carol)
	keep.promote(bob)
	assert.Equal(t, []user.User{carol, bob}, keep.state.Recent)

	front := newModel(alice, Config{RecentPolicy: RecentMoveToFront}.withDefaults())
	front.promote(bob)
	front.promote(carol)
	front.promote(bob)
	assert.Equal(t, []user.User{bob, carol}, front.state.Recent)

	bounded := newModel(alice, Config{MaxRecent: 1}.withDefaults())
	bounded.promote(bob)
	bounded.promote(carol)
	assert.Equal(t, []user.User{carol}, bounded.state.Recent)
}

func TestShortQueryShowsRecent(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())
	m.state.Recent = []user.User{bob}

	effects := reduce(m, queryAction{query: "xy"})
	assert.Equal(t, []effect{cancelDebounceEffect{}, cancelSearchEffect{}}, effects)
	assert.Equal(t, []user.User{bob}, m.state.Contacts(false))

	// a timer that fires anyway is ignored
	assert.Empty(t, reduce(m, debounceFired{seq: m.searchSeq}))
}

func TestStaleSearchIsDiscarded(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())

	effects := reduce(m, queryAction{query: "bob"})
	require.Equal(t, []effect{debounceEffect{seq: 1}}, effects)

	effects = reduce(m, debounceFired{seq: 1})
	require.Equal(t, []effect{searchEffect{seq: 1, query: "bob"}}, effects)
	assert.True(t, m.state.Searching)

	reduce(m, queryAction{query: "carol"})
	reduce(m, searchResult{seq: 1, users: []user.User{bob}})
	assert.Empty(t, m.state.Results)

	reduce(m, debounceFired{seq: 2})
	reduce(m, searchResult{seq: 2, users: []user.User{carol}})
	assert.Equal(t, []user.User{carol}, m.state.Results)
	assert.False(t, m.state.Searching)
	assert.Equal(t, []user.User{carol}, m.state.Contacts(false))
}

func TestSendResult(t *testing.T) {
	m := loadedModel(t, bob, msgAt("m1", "alice", "bob", 1))
	m.state.Recent = []user.User{carol, bob}

	reply := make(chan sendReply, 1)
	boom := errors.New("persist failed")
	effects := reduce(m, sendResult{peerID: "bob", err: boom, reply: reply})
	assert.Equal(t, []effect{replyEffect{reply: reply, err: boom}}, effects)
	assert.Len(t, m.state.Messages, 1)
	assert.Equal(t, []user.User{carol, bob}, m.state.Recent)
	assert.ErrorIs(t, m.state.Err, boom)

	sent := msgAt("m2", "alice", "bob", 2)
	reduce(m, sendResult{peerID: "bob", msg: sent, reply: reply})
	require.Len(t, m.state.Messages, 2)
	assert.Equal(t, sent, m.state.Messages[1])
}

func TestSendWithoutConversation(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())

	reply := make(chan sendReply, 1)
	effects := reduce(m, sendAction{in: message.SendInput{Text: "hi"}, reply: reply})
	assert.Equal(t, []effect{replyEffect{reply: reply, err: ErrNoConversation}}, effects)
}

func TestContactsOnlineOnly(t *testing.T) {
	m := newModel(alice, Config{}.withDefaults())
	reduce(m, contactsLoaded{users: []user.User{bob, carol}, done: make(chan error, 1)})
	reduce(m, presenceEvent{userIDs: []string{"alice", "carol"}})

	assert.Equal(t, []user.User{bob, carol}, m.state.Contacts(false))
	assert.Equal(t, []user.User{carol}, m.state.Contacts(true))
	assert.True(t, m.state.IsOnline("carol"))
	assert.False(t, m.state.IsOnline("bob"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := loadedModel(t, bob, msgAt("m1", "bob", "alice", 1))
	snap := m.state.clone()

	reduce(m, messageEvent{msg: msgAt("m2", "bob", "alice", 2)})
	m.state.Selected.FullName = "changed"

	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, "Bob", snap.Selected.FullName)
}

func TestLaggedStreamReloadsConversation(t *testing.T) {
	m := loadedModel(t, bob, msgAt("m1", "bob", "alice", 1))
	gen := m.gen

	assert.Empty(t, reduce(m, streamLagged{typ: wire.TypePresenceUpdate}))

	effects := reduce(m, streamLagged{typ: wire.TypeMessageNew})
	assert.Equal(t, []effect{cancelFetchEffect{}, fetchEffect{gen: gen + 1, peerID: "bob"}}, effects)
	assert.Equal(t, PhaseLoading, m.state.Phase)
	assert.Len(t, m.state.Messages, 1, "the old view stays until the reload lands")

	reduce(m, messageEvent{msg: msgAt("m3", "bob", "alice", 3)})
	reduce(m, fetchResult{gen: gen + 1, peerID: "bob", msgs: []message.Message{
		msgAt("m1", "bob", "alice", 1),
		msgAt("m2", "bob", "alice", 2),
	}})

	ids := make([]string, 0, len(m.state.Messages))
	for _, msg := range m.state.Messages {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	assert.Equal(t, PhaseLoaded, m.state.Phase)

	// nothing to reload without an open conversation
	reduce(m, deselectAction{})
	assert.Empty(t, reduce(m, streamLagged{typ: wire.TypeMessageNew}))
}
