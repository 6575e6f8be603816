/*
Package store keeps the client-side view of a user's conversations: the open
conversation, the contact list (recent partners or search results), and the
online set.

All state changes go through reduce on a single loop goroutine (Store.Run).
Network calls and timers run elsewhere and re-enter the loop as actions, so a
late reply can never overwrite newer state: fetches carry a selection
generation and searches carry a sequence number.
*/
package store

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

// Phase is the loading state of the open conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RecentPolicy decides where a conversation partner goes when promoted into Recent.
type RecentPolicy int

const (
	// RecentKeepPosition prepends new partners and leaves known ones where they are.
	RecentKeepPosition RecentPolicy = iota

	// RecentMoveToFront moves a partner to the front on every promotion.
	RecentMoveToFront
)

// DefaultDebounceInterval is the quiet period before a search is issued.
const DefaultDebounceInterval = time.Second

// Config tunes a Store.
type Config struct {
	RecentPolicy RecentPolicy

	// MaxRecent bounds Recent; zero means unbounded.
	MaxRecent int

	// DebounceInterval defaults to DefaultDebounceInterval.
	DebounceInterval time.Duration

	// StreamBuffer is the buffer of each realtime subscription.
	StreamBuffer int
}

func (c Config) withDefaults() Config {
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = DefaultDebounceInterval
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 256
	}
	if c.MaxRecent < 0 {
		c.MaxRecent = 0
	}
	return c
}

// State is a point-in-time copy of the store. Values returned by Store.Snapshot
// are never modified afterwards.
type State struct {
	Self     user.User
	Selected *user.User
	Phase    Phase

	// Messages of the open conversation, oldest first, unique by id.
	Messages []message.Message

	Query     string
	Results   []user.User
	Searching bool

	// Recent holds the conversation partners of this session.
	Recent []user.User

	// Online is the last presence set received from the server.
	Online []string

	// Err is the most recent failure of a fetch, search, or send.
	Err error
}

// IsSearch reports whether the query is long enough to show search results instead of Recent.
func (s *State) IsSearch() bool {
	return isSearchQuery(s.Query)
}

// IsOnline reports whether id is in the online set.
func (s *State) IsOnline(id string) bool {
	return slices.Contains(s.Online, id)
}

// Contacts returns the contact list to display: search results while a search
// query is set, Recent otherwise. onlineOnly keeps only users that are online.
func (s *State) Contacts(onlineOnly bool) []user.User {
	list := s.Recent
	if s.IsSearch() {
		list = s.Results
	}

	out := make([]user.User, 0, len(list))
	for _, u := range list {
		if onlineOnly && !s.IsOnline(u.ID) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (s *State) clone() *State {
	c := *s
	if s.Selected != nil {
		sel := *s.Selected
		c.Selected = &sel
	}
	c.Messages = slices.Clone(s.Messages)
	c.Results = slices.Clone(s.Results)
	c.Recent = slices.Clone(s.Recent)
	c.Online = slices.Clone(s.Online)
	return &c
}

func isSearchQuery(q string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(q)) >= user.MinSearchLength
}
