package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/wire"
)

// ErrNoConversation is returned by Send when no peer is selected.
var ErrNoConversation = errors.New("no conversation selected")

// model is the loop-owned state: the public State plus the bookkeeping that
// guards against stale replies.
type model struct {
	state State
	cfg   Config

	// gen identifies the current selection; fetch replies carry the gen they were issued for.
	gen uint64

	// searchSeq identifies the current query; timers and search replies carry it.
	searchSeq uint64

	// pending holds message:new events for the open pair received while Loading.
	pending []message.Message

	// known are identities seen in search results, contacts, and selections.
	known map[string]user.User

	// resolving are peer ids with a contacts lookup in flight.
	resolving map[string]struct{}
}

func newModel(self user.User, cfg Config) *model {
	return &model{
		state:     State{Self: self},
		cfg:       cfg,
		known:     map[string]user.User{},
		resolving: map[string]struct{}{},
	}
}

// Actions: everything that can change the model.
type (
	action interface{ isAction() }

	selectAction   struct{ peer user.User }
	deselectAction struct{}

	fetchResult struct {
		gen    uint64
		peerID string
		msgs   []message.Message
		err    error
	}

	messageEvent  struct{ msg message.Message }
	presenceEvent struct{ userIDs []string }

	queryAction   struct{ query string }
	debounceFired struct{ seq uint64 }

	searchResult struct {
		seq   uint64
		users []user.User
		err   error
	}

	sendAction struct {
		ctx   context.Context
		in    message.SendInput
		reply chan sendReply
	}

	sendResult struct {
		peerID string
		msg    message.Message
		err    error
		reply  chan sendReply
	}

	contactsLoaded struct {
		users []user.User
		err   error
		done  chan error
	}

	senderResolved struct {
		peerID string
		users  []user.User
		err    error
	}

	// streamLagged reports that a realtime subscriber missed events of typ.
	streamLagged struct{ typ wire.EventType }
)

func (selectAction) isAction()   {}
func (deselectAction) isAction() {}
func (fetchResult) isAction()    {}
func (messageEvent) isAction()   {}
func (presenceEvent) isAction()  {}
func (queryAction) isAction()    {}
func (debounceFired) isAction()  {}
func (searchResult) isAction()   {}
func (sendAction) isAction()     {}
func (sendResult) isAction()     {}
func (contactsLoaded) isAction() {}
func (senderResolved) isAction() {}
func (streamLagged) isAction()   {}

type sendReply struct {
	msg message.Message
	err error
}

// Effects: work the loop performs on behalf of the reducer.
type (
	effect interface{ isEffect() }

	fetchEffect struct {
		gen    uint64
		peerID string
	}
	cancelFetchEffect  struct{}
	attachStreamEffect struct{}
	detachStreamEffect struct{}

	debounceEffect struct {
		seq uint64
	}
	cancelDebounceEffect struct{}

	searchEffect struct {
		seq   uint64
		query string
	}
	cancelSearchEffect struct{}

	sendEffect struct {
		ctx    context.Context
		peerID string
		in     message.SendInput
		reply  chan sendReply
	}
	replyEffect struct {
		reply chan sendReply
		msg   message.Message
		err   error
	}
	contactsDoneEffect struct {
		done chan error
		err  error
	}
	resolveSenderEffect struct {
		peerID string
	}
)

func (fetchEffect) isEffect()          {}
func (cancelFetchEffect) isEffect()    {}
func (attachStreamEffect) isEffect()   {}
func (detachStreamEffect) isEffect()   {}
func (debounceEffect) isEffect()       {}
func (cancelDebounceEffect) isEffect() {}
func (searchEffect) isEffect()         {}
func (cancelSearchEffect) isEffect()   {}
func (sendEffect) isEffect()           {}
func (replyEffect) isEffect()          {}
func (contactsDoneEffect) isEffect()   {}
func (resolveSenderEffect) isEffect()  {}

// reduce applies a to m and returns the effects to run, in order.
func reduce(m *model, a action) []effect {
	switch a := a.(type) {
	case selectAction:
		return m.selectPeer(a.peer)
	case deselectAction:
		return m.deselect()
	case fetchResult:
		m.fetched(a)
	case messageEvent:
		return m.received(a.msg)
	case presenceEvent:
		m.state.Online = slices.Clone(a.userIDs)
	case queryAction:
		return m.setQuery(a.query)
	case debounceFired:
		if a.seq != m.searchSeq || !isSearchQuery(m.state.Query) {
			return nil
		}
		m.state.Searching = true
		return []effect{searchEffect{seq: a.seq, query: strings.TrimSpace(m.state.Query)}}
	case searchResult:
		m.searched(a)
	case sendAction:
		if m.state.Selected == nil {
			return []effect{replyEffect{reply: a.reply, err: ErrNoConversation}}
		}
		return []effect{sendEffect{ctx: a.ctx, peerID: m.state.Selected.ID, in: a.in, reply: a.reply}}
	case sendResult:
		return m.sent(a)
	case contactsLoaded:
		if a.err != nil {
			m.state.Err = a.err
		} else {
			m.seedRecent(a.users)
		}
		return []effect{contactsDoneEffect{done: a.done, err: a.err}}
	case senderResolved:
		m.senderResolved(a)
	case streamLagged:
		return m.lagged(a.typ)
	}
	return nil
}

func (m *model) selectPeer(peer user.User) []effect {
	m.gen++
	m.known[peer.ID] = peer

	m.state.Selected = &peer
	m.state.Phase = PhaseLoading
	m.state.Messages = nil
	m.state.Err = nil
	m.pending = nil

	effects := []effect{
		cancelFetchEffect{},
		detachStreamEffect{},
		attachStreamEffect{},
		fetchEffect{gen: m.gen, peerID: peer.ID},
	}
	return append(effects, m.restartSearch()...)
}

func (m *model) deselect() []effect {
	m.gen++

	m.state.Selected = nil
	m.state.Phase = PhaseIdle
	m.state.Messages = nil
	m.pending = nil

	effects := []effect{cancelFetchEffect{}, detachStreamEffect{}}
	return append(effects, m.restartSearch()...)
}

func (m *model) fetched(r fetchResult) {
	if r.gen != m.gen || m.state.Selected == nil || m.state.Selected.ID != r.peerID {
		return
	}

	if r.err != nil {
		m.state.Phase = PhaseFailed
		m.state.Err = r.err
		m.pending = nil
		return
	}

	view := make([]message.Message, 0, len(r.msgs)+len(m.pending))
	view = append(view, r.msgs...)
	view = append(view, m.pending...)
	m.state.Messages = sortUnique(view)
	m.state.Phase = PhaseLoaded
	m.pending = nil

	m.promote(*m.state.Selected)
}

func (m *model) received(msg message.Message) []effect {
	self := m.state.Self.ID
	if msg.SenderID != self && msg.ReceiverID != self {
		return nil
	}
	peerID := msg.Peer(self)

	if sel := m.state.Selected; sel != nil && sel.ID == peerID {
		switch m.state.Phase {
		case PhaseLoading:
			m.pending = appendUnique(m.pending, msg)
		case PhaseLoaded:
			m.state.Messages = appendUnique(m.state.Messages, msg)
			m.promote(*sel)
		}
		return nil
	}

	if u, ok := m.known[peerID]; ok {
		m.promote(u)
		return nil
	}

	// an unknown partner is looked up among the server-side contacts
	if _, ok := m.resolving[peerID]; ok {
		return nil
	}
	m.resolving[peerID] = struct{}{}
	return []effect{resolveSenderEffect{peerID: peerID}}
}

func (m *model) senderResolved(r senderResolved) {
	delete(m.resolving, r.peerID)
	if r.err != nil {
		return
	}

	for _, u := range r.users {
		m.known[u.ID] = u
	}
	if u, ok := m.known[r.peerID]; ok {
		m.promote(u)
	}
}

// lagged reloads the open conversation after message:new events were missed.
// Presence needs nothing: every presence:update carries the full online set.
func (m *model) lagged(t wire.EventType) []effect {
	if t != wire.TypeMessageNew || m.state.Selected == nil {
		return nil
	}
	if m.state.Phase != PhaseLoaded && m.state.Phase != PhaseLoading {
		return nil
	}

	// the view stays visible until the fresh snapshot replaces it
	m.gen++
	m.state.Phase = PhaseLoading
	return []effect{cancelFetchEffect{}, fetchEffect{gen: m.gen, peerID: m.state.Selected.ID}}
}

// restartSearch invalidates the pending timer and any in-flight search. A query
// long enough to search gets a fresh timer under the new sequence.
func (m *model) restartSearch() []effect {
	m.searchSeq++
	m.state.Searching = false

	effects := []effect{cancelDebounceEffect{}, cancelSearchEffect{}}
	if isSearchQuery(m.state.Query) {
		effects = append(effects, debounceEffect{seq: m.searchSeq})
	}
	return effects
}

func (m *model) setQuery(q string) []effect {
	m.state.Query = q
	m.searchSeq++

	if !isSearchQuery(q) {
		m.state.Results = nil
		m.state.Searching = false
		return []effect{cancelDebounceEffect{}, cancelSearchEffect{}}
	}

	return []effect{debounceEffect{seq: m.searchSeq}}
}

func (m *model) searched(r searchResult) {
	if r.seq != m.searchSeq {
		return
	}

	m.state.Searching = false
	if r.err != nil {
		m.state.Results = nil
		m.state.Err = r.err
		return
	}

	m.state.Results = slices.Clone(r.users)
	for _, u := range r.users {
		m.known[u.ID] = u
	}
}

func (m *model) sent(r sendResult) []effect {
	if r.err != nil {
		m.state.Err = r.err
		return []effect{replyEffect{reply: r.reply, err: r.err}}
	}

	if sel := m.state.Selected; sel != nil && sel.ID == r.peerID && m.state.Phase == PhaseLoaded {
		m.state.Messages = appendUnique(m.state.Messages, r.msg)
	} else if sel != nil && sel.ID == r.peerID && m.state.Phase == PhaseLoading {
		m.pending = appendUnique(m.pending, r.msg)
	}

	if u, ok := m.known[r.peerID]; ok {
		m.promote(u)
	}

	return []effect{replyEffect{reply: r.reply, msg: r.msg}}
}

// promote puts u into Recent according to the configured policy.
func (m *model) promote(u user.User) {
	idx := slices.IndexFunc(m.state.Recent, func(r user.User) bool { return r.ID == u.ID })

	switch {
	case idx < 0:
		m.state.Recent = append([]user.User{u}, m.state.Recent...)
	case m.cfg.RecentPolicy == RecentMoveToFront:
		m.state.Recent = slices.Delete(m.state.Recent, idx, idx+1)
		m.state.Recent = append([]user.User{u}, m.state.Recent...)
	default:
		m.state.Recent[idx] = u
	}

	if m.cfg.MaxRecent > 0 && len(m.state.Recent) > m.cfg.MaxRecent {
		m.state.Recent = m.state.Recent[:m.cfg.MaxRecent]
	}
}

// seedRecent appends server-side contacts after the partners already promoted this session.
func (m *model) seedRecent(users []user.User) {
	for _, u := range users {
		m.known[u.ID] = u
		if !slices.ContainsFunc(m.state.Recent, func(r user.User) bool { return r.ID == u.ID }) {
			m.state.Recent = append(m.state.Recent, u)
		}
	}

	if m.cfg.MaxRecent > 0 && len(m.state.Recent) > m.cfg.MaxRecent {
		m.state.Recent = m.state.Recent[:m.cfg.MaxRecent]
	}
}

func appendUnique(list []message.Message, msg message.Message) []message.Message {
	if slices.ContainsFunc(list, func(m message.Message) bool { return m.ID == msg.ID }) {
		return list
	}
	return append(list, msg)
}

// sortUnique orders msgs by CreatedAt, keeping the first copy of every id.
func sortUnique(msgs []message.Message) []message.Message {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]message.Message, 0, len(msgs))
	for _, msg := range msgs {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
