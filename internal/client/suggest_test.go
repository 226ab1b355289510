package client

import (
	"testing"
	"time"

	"truckvoice-backend/internal/models"
	"truckvoice-backend/internal/presence"
)

func peer(id string, distanceKm float64) presence.Peer {
	return presence.Peer{
		ID:         id,
		Nickname:   id + "님",
		State:      models.StateDriving,
		Reachable:  true,
		DistanceKm: distanceKm,
	}
}

func TestSuggesterScan(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("picks the nearest eligible peer", func(t *testing.T) {
		s := NewSuggester()
		got := s.Scan([]presence.Peer{peer("near", 0.2), peer("far", 0.8)}, "", now)
		if got == nil || got.Peer.ID != "near" {
			t.Fatalf("Scan() = %+v, want near", got)
		}
		if !got.ExpiresAt.Equal(now.Add(suggestionTTL)) {
			t.Errorf("ExpiresAt = %v, want ShownAt + TTL", got.ExpiresAt)
		}
	})

	t.Run("skips sleeping and in-call peers", func(t *testing.T) {
		s := NewSuggester()
		sleeping := peer("sleeper", 0.1)
		sleeping.State = models.StateSleeping
		busy := peer("busy", 0.2)
		busy.InCall = true

		got := s.Scan([]presence.Peer{sleeping, busy, peer("free", 0.5)}, "", now)
		if got == nil || got.Peer.ID != "free" {
			t.Fatalf("Scan() = %+v, want free", got)
		}
	})

	t.Run("no suggestions while in a call", func(t *testing.T) {
		s := NewSuggester()
		if got := s.Scan([]presence.Peer{peer("near", 0.2)}, "partner", now); got != nil {
			t.Fatalf("Scan() = %+v, want nil while in a call", got)
		}
	})

	t.Run("one suggestion at a time", func(t *testing.T) {
		s := NewSuggester()
		s.Scan([]presence.Peer{peer("first", 0.2)}, "", now)
		if got := s.Scan([]presence.Peer{peer("second", 0.1)}, "", now); got != nil {
			t.Fatalf("Scan() = %+v while one is showing, want nil", got)
		}
	})

	t.Run("nobody eligible yields nil", func(t *testing.T) {
		s := NewSuggester()
		if got := s.Scan(nil, "", now); got != nil {
			t.Fatalf("Scan() = %+v, want nil", got)
		}
	})
}

func TestSuggesterIgnoreCache(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	peers := []presence.Peer{peer("a", 0.2), peer("b", 0.5)}

	t.Run("dismissed peer stays out until the cache expires", func(t *testing.T) {
		s := NewSuggester()
		s.Scan(peers, "", now)
		s.Dismiss("a", now)

		got := s.Scan(peers, "", now)
		if got == nil || got.Peer.ID != "b" {
			t.Fatalf("Scan() after dismiss = %+v, want b", got)
		}
		s.Dismiss("b", now)

		// Past the ignore TTL the dismissed peer is fair game again.
		later := now.Add(ignoreTTL + time.Second)
		got = s.Scan(peers, "", later)
		if got == nil || got.Peer.ID != "a" {
			t.Fatalf("Scan() after cache expiry = %+v, want a", got)
		}
	})

	t.Run("ignored expiry counts like a dismissal", func(t *testing.T) {
		s := NewSuggester()
		s.Scan(peers, "", now)

		shown := now.Add(suggestionTTL + time.Second)
		s.Tick(shown)
		if s.Current() != nil {
			t.Fatal("expired suggestion still showing")
		}

		got := s.Scan(peers, "", shown)
		if got == nil || got.Peer.ID != "b" {
			t.Fatalf("Scan() after expiry = %+v, want b (a ignored)", got)
		}
	})

	t.Run("take consumes without ignoring", func(t *testing.T) {
		s := NewSuggester()
		s.Scan(peers, "", now)

		taken := s.Take()
		if taken == nil || taken.Peer.ID != "a" {
			t.Fatalf("Take() = %+v, want a", taken)
		}
		if s.Current() != nil {
			t.Fatal("Take() left the suggestion showing")
		}

		got := s.Scan(peers, "", now)
		if got == nil || got.Peer.ID != "a" {
			t.Fatalf("Scan() after take = %+v, a should remain eligible", got)
		}
	})
}

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single frame", `{"type":"pong"}`, []string{`{"type":"pong"}`}},
		{"coalesced frames", "{\"type\":\"pong\"}\n{\"type\":\"joined\"}", []string{`{"type":"pong"}`, `{"type":"joined"}`}},
		{"trailing newline", "{\"type\":\"pong\"}\n", []string{`{"type":"pong"}`}},
		{"blank lines dropped", "\n{\"type\":\"pong\"}\n\n", []string{`{"type":"pong"}`}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitFrames([]byte(tt.in))
			if len(got) != len(tt.want) {
				t.Fatalf("splitFrames() = %d frames, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if string(got[i]) != tt.want[i] {
					t.Errorf("frame %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
