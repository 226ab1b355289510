package client

import (
	"time"

	"truckvoice-backend/internal/models"
	"truckvoice-backend/internal/presence"
)

const (
	// How long a suggestion stays on screen before it counts as ignored.
	suggestionTTL = 20 * time.Second

	// How long a dismissed or ignored peer stays out of suggestions.
	ignoreTTL = 5 * time.Minute
)

// Suggestion is a call proposal for the nearest eligible peer.
type Suggestion struct {
	Peer      presence.Peer
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Suggester picks who to propose calling as the driver moves. It only
// ever proposes; the actual request still goes through the normal
// signaling path. Not safe for concurrent use; callers drive it from one
// goroutine (the client read loop).
type Suggester struct {
	ignored map[string]time.Time
	current *Suggestion
}

func NewSuggester() *Suggester {
	return &Suggester{ignored: make(map[string]time.Time)}
}

// Scan picks the nearest eligible peer from a fresh visibility list.
// Sleeping peers, peers already in a call, ignored peers, and the
// driver's own call partner are never suggested. Returns nil while a
// previous suggestion is still showing or nobody qualifies.
func (s *Suggester) Scan(peers []presence.Peer, inCallWith string, now time.Time) *Suggestion {
	s.expire(now)
	if s.current != nil || inCallWith != "" {
		return nil
	}

	// peers arrive sorted by ascending distance; first eligible wins.
	for _, p := range peers {
		if p.State == models.StateSleeping || p.InCall || p.ID == inCallWith {
			continue
		}
		if _, skip := s.ignored[p.ID]; skip {
			continue
		}
		s.current = &Suggestion{
			Peer:      p,
			ShownAt:   now,
			ExpiresAt: now.Add(suggestionTTL),
		}
		return s.current
	}
	return nil
}

// Tick expires a suggestion the driver never answered. An expired peer
// goes into the ignore cache like an explicit dismissal.
func (s *Suggester) Tick(now time.Time) {
	if s.current != nil && now.After(s.current.ExpiresAt) {
		s.ignored[s.current.Peer.ID] = now.Add(ignoreTTL)
		s.current = nil
	}
	s.expire(now)
}

// Dismiss records the driver turning the suggestion down (or the callee
// rejecting / the call ending), parking the peer for a while.
func (s *Suggester) Dismiss(peerID string, now time.Time) {
	s.ignored[peerID] = now.Add(ignoreTTL)
	if s.current != nil && s.current.Peer.ID == peerID {
		s.current = nil
	}
}

// Take consumes the current suggestion (the driver tapped call).
func (s *Suggester) Take() *Suggestion {
	cur := s.current
	s.current = nil
	return cur
}

// Current returns the suggestion on screen, if any.
func (s *Suggester) Current() *Suggestion { return s.current }

func (s *Suggester) expire(now time.Time) {
	for id, until := range s.ignored {
		if now.After(until) {
			delete(s.ignored, id)
		}
	}
}
