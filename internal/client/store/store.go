package store

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/debounce"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/wire"
)

// ErrStopped is returned by calls that need the loop after Run has returned.
var ErrStopped = errors.New("store stopped")

// API is the REST surface the store uses.
type API interface {
	Conversation(ctx context.Context, peerID string) ([]message.Message, error)
	Send(ctx context.Context, peerID string, in message.SendInput) (message.Message, error)
	SearchUsers(ctx context.Context, query string) ([]user.User, error)
	Contacts(ctx context.Context) ([]user.User, error)
}

// Subscriber hands out realtime event streams keyed by event type.
type Subscriber interface {
	Subscribe(t wire.EventType, buffer int) (<-chan wire.Event, func())

	// Drops reports event types a subscriber missed because its buffer was full.
	Drops() <-chan wire.EventType
}

// Store is the conversation store of one signed-in user.
type Store struct {
	api API
	sub Subscriber
	cfg Config

	actions chan action
	done    chan struct{}
	started atomic.Bool

	snapshot atomic.Pointer[State]
	changes  chan struct{}

	timer *debounce.Timer

	// owned by the loop goroutine
	model        *model
	runCtx       context.Context
	fetchCancel  context.CancelFunc
	searchCancel context.CancelFunc
	streamCancel func()

	logger zerolog.Logger
}

// New creates a Store for self. Run must be called to start processing.
func New(self user.User, api API, sub Subscriber, cfg Config) *Store {
	cfg = cfg.withDefaults()

	s := &Store{
		api:     api,
		sub:     sub,
		cfg:     cfg,
		actions: make(chan action, 64),
		done:    make(chan struct{}),
		changes: make(chan struct{}, 1),
		timer:   debounce.New(cfg.DebounceInterval),
		model:   newModel(self, cfg),
		logger:  logx.Component("store"),
	}
	s.snapshot.Store(s.model.state.clone())

	return s
}

// Snapshot returns the current state. The returned value is never mutated.
func (s *Store) Snapshot() *State {
	return s.snapshot.Load()
}

// Changes signals after state updates. Signals coalesce: one receive may stand for several updates.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Select opens the conversation with peer.
func (s *Store) Select(peer user.User) {
	s.post(selectAction{peer: peer})
}

// Deselect closes the open conversation.
func (s *Store) Deselect() {
	s.post(deselectAction{})
}

// SetQuery updates the contact search query.
func (s *Store) SetQuery(q string) {
	s.post(queryAction{query: q})
}

// Send posts a message to the open conversation and waits for the server to
// persist it. The message is added to the view only after it was stored.
func (s *Store) Send(ctx context.Context, in message.SendInput) (message.Message, error) {
	reply := make(chan sendReply, 1)
	if !s.post(sendAction{ctx: ctx, in: in, reply: reply}) {
		return message.Message{}, ErrStopped
	}

	select {
	case r := <-reply:
		return r.msg, r.err
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	case <-s.done:
		return message.Message{}, ErrStopped
	}
}

// LoadContacts seeds Recent with the server's list of conversation partners.
func (s *Store) LoadContacts(ctx context.Context) error {
	users, err := s.api.Contacts(ctx)

	done := make(chan error, 1)
	if !s.post(contactsLoaded{users: users, err: err, done: done}) {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Run processes actions until ctx is cancelled. It may be called once.
func (s *Store) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("store already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.runCtx = runCtx

	presence, cancelPresence := s.sub.Subscribe(wire.TypePresenceUpdate, s.cfg.StreamBuffer)
	go s.forwardPresence(presence)
	go s.forwardDrops(s.sub.Drops())

	defer func() {
		s.timer.Stop()
		cancelPresence()
		s.cancelFetch()
		s.cancelSearch()
		s.detachStream()
		close(s.done)
	}()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case a := <-s.actions:
			effects := reduce(s.model, a)
			// replies must observe the state they resulted in
			s.publish()
			for _, e := range effects {
				s.execute(e)
			}
		}
	}
}

// post hands a to the loop. It reports false once the store has stopped.
func (s *Store) post(a action) bool {
	select {
	case s.actions <- a:
		return true
	case <-s.done:
		return false
	}
}

func (s *Store) publish() {
	s.snapshot.Store(s.model.state.clone())

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) execute(e effect) {
	switch e := e.(type) {
	case fetchEffect:
		ctx, cancel := context.WithCancel(s.runCtx)
		s.fetchCancel = cancel
		go func() {
			msgs, err := s.api.Conversation(ctx, e.peerID)
			s.post(fetchResult{gen: e.gen, peerID: e.peerID, msgs: msgs, err: err})
		}()

	case cancelFetchEffect:
		s.cancelFetch()

	case attachStreamEffect:
		ch, cancel := s.sub.Subscribe(wire.TypeMessageNew, s.cfg.StreamBuffer)
		s.streamCancel = cancel
		go s.forwardMessages(ch)

	case detachStreamEffect:
		s.detachStream()

	case debounceEffect:
		seq := e.seq
		s.timer.Trigger(func() {
			s.post(debounceFired{seq: seq})
		})

	case cancelDebounceEffect:
		s.timer.Cancel()

	case searchEffect:
		s.cancelSearch()
		ctx, cancel := context.WithCancel(s.runCtx)
		s.searchCancel = cancel
		go func() {
			users, err := s.api.SearchUsers(ctx, e.query)
			s.post(searchResult{seq: e.seq, users: users, err: err})
		}()

	case cancelSearchEffect:
		s.cancelSearch()

	case sendEffect:
		go func() {
			msg, err := s.api.Send(e.ctx, e.peerID, e.in)
			if !s.post(sendResult{peerID: e.peerID, msg: msg, err: err, reply: e.reply}) {
				e.reply <- sendReply{err: ErrStopped}
			}
		}()

	case replyEffect:
		e.reply <- sendReply{msg: e.msg, err: e.err}

	case contactsDoneEffect:
		e.done <- e.err

	case resolveSenderEffect:
		ctx, peerID := s.runCtx, e.peerID
		go func() {
			users, err := s.api.Contacts(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Str("peer_id", peerID).Msg("Failed to resolve message sender")
			}
			s.post(senderResolved{peerID: peerID, users: users, err: err})
		}()
	}
}

func (s *Store) cancelFetch() {
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
}

func (s *Store) cancelSearch() {
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}
}

func (s *Store) detachStream() {
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
}

func (s *Store) forwardMessages(ch <-chan wire.Event) {
	for ev := range ch {
		var msg message.Message
		if err := ev.Decode(&msg); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed message event")
			continue
		}
		if !s.post(messageEvent{msg: msg}) {
			return
		}
	}
}

func (s *Store) forwardPresence(ch <-chan wire.Event) {
	for ev := range ch {
		var p wire.PresencePayload
		if err := ev.Decode(&p); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed presence event")
			continue
		}
		if !s.post(presenceEvent{userIDs: p.UserIDs}) {
			return
		}
	}
}

func (s *Store) forwardDrops(ch <-chan wire.EventType) {
	for {
		select {
		case t, ok := <-ch:
			if !ok {
				return
			}
			s.logger.Debug().Str("event_type", string(t)).Msg("Realtime events missed")
			if !s.post(streamLagged{typ: t}) {
				return
			}
		case <-s.done:
			return
		}
	}
}
