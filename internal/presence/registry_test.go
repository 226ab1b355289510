package presence

import (
	"testing"

	"truckvoice-backend/internal/geo"
	"truckvoice-backend/internal/models"
)

// Positions around Seoul city hall. 0.001 degrees of latitude is about
// 111m, so base+0.005 is ~550m away and base+0.02 is ~2.2km away.
var (
	basePos = geo.Position{Lat: 37.5665, Lng: 126.9780}
	nearPos = geo.Position{Lat: 37.5715, Lng: 126.9780} // ~550m
	farPos  = geo.Position{Lat: 37.5865, Lng: 126.9780} // ~2.2km
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register("viewer", "보는이", nil)
	r.UpdatePosition("viewer", basePos)
	return r
}

func visibleIDs(r *Registry, viewerID string) []string {
	peers := r.VisiblePeers(viewerID)
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.ID
	}
	return ids
}

func TestVisiblePeers(t *testing.T) {
	t.Run("peer within radius is visible", func(t *testing.T) {
		r := newTestRegistry()
		r.Register("near", "가까운이", nil)
		r.UpdatePosition("near", nearPos)

		got := visibleIDs(r, "viewer")
		if len(got) != 1 || got[0] != "near" {
			t.Errorf("VisiblePeers() = %v, want [near]", got)
		}
	})

	t.Run("peer beyond radius is hidden", func(t *testing.T) {
		r := newTestRegistry()
		r.Register("far", "먼이", nil)
		r.UpdatePosition("far", farPos)

		if got := visibleIDs(r, "viewer"); len(got) != 0 {
			t.Errorf("VisiblePeers() = %v, want empty", got)
		}
	})

	t.Run("favorite is visible at any distance", func(t *testing.T) {
		r := NewRegistry()
		r.Register("viewer", "보는이", map[string]bool{"far": true})
		r.UpdatePosition("viewer", basePos)
		r.Register("far", "먼이", nil)
		r.UpdatePosition("far", farPos)

		got := r.VisiblePeers("viewer")
		if len(got) != 1 || got[0].ID != "far" {
			t.Fatalf("VisiblePeers() = %v, want [far]", got)
		}
		if !got[0].IsFavorite {
			t.Error("favorite flag not set on snapshot")
		}
		if got[0].DistanceKm <= VisibilityRadiusKm {
			t.Errorf("distance %.2f should exceed the radius in this scenario", got[0].DistanceKm)
		}
	})

	t.Run("call partner is visible at any distance", func(t *testing.T) {
		r := newTestRegistry()
		r.Register("far", "먼이", nil)
		r.UpdatePosition("far", farPos)
		if !r.SetCallPartner("viewer", "far") {
			t.Fatal("SetCallPartner refused a valid pairing")
		}

		got := visibleIDs(r, "viewer")
		if len(got) != 1 || got[0] != "far" {
			t.Errorf("VisiblePeers() = %v, want [far]", got)
		}
	})

	t.Run("unreachable peer is hidden even as favorite", func(t *testing.T) {
		r := NewRegistry()
		r.Register("viewer", "보는이", map[string]bool{"gone": true})
		r.UpdatePosition("viewer", basePos)
		r.Register("gone", "간이", nil)
		r.UpdatePosition("gone", nearPos)
		r.Unregister("gone")

		if got := visibleIDs(r, "viewer"); len(got) != 0 {
			t.Errorf("VisiblePeers() = %v, want empty", got)
		}
	})

	t.Run("viewer never sees itself", func(t *testing.T) {
		r := newTestRegistry()
		if got := visibleIDs(r, "viewer"); len(got) != 0 {
			t.Errorf("VisiblePeers() = %v, want empty", got)
		}
	})

	t.Run("sorted by ascending distance", func(t *testing.T) {
		r := newTestRegistry()
		r.Register("b", "을", nil)
		r.UpdatePosition("b", nearPos)
		r.Register("a", "갑", nil)
		r.UpdatePosition("a", geo.Position{Lat: 37.5680, Lng: 126.9780}) // ~170m

		got := visibleIDs(r, "viewer")
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("VisiblePeers() = %v, want [a b]", got)
		}
	})

	t.Run("unknown viewer gets nothing", func(t *testing.T) {
		r := newTestRegistry()
		if got := r.VisiblePeers("nobody"); got != nil {
			t.Errorf("VisiblePeers() = %v, want nil", got)
		}
	})
}

func TestRegisterRevivesEntry(t *testing.T) {
	r := NewRegistry()
	r.Register("d1", "김기사", nil)
	r.UpdatePosition("d1", nearPos)
	r.SetState("d1", models.StateResting)
	r.Unregister("d1")

	if p, _ := r.Get("d1"); p.Reachable {
		t.Fatal("unregistered driver still reachable")
	}

	r.Register("d1", "김기사2", nil)
	p, ok := r.Get("d1")
	if !ok {
		t.Fatal("revived entry missing")
	}
	if !p.Reachable {
		t.Error("revived entry not reachable")
	}
	if p.Nickname != "김기사2" {
		t.Errorf("nickname = %q, want refreshed value", p.Nickname)
	}
	if p.State != models.StateResting {
		t.Errorf("state = %q, want preserved resting state", p.State)
	}
	if p.Pos != nearPos {
		t.Errorf("pos = %v, want preserved position", p.Pos)
	}
}

func TestCallPartnerPairing(t *testing.T) {
	t.Run("pairing is symmetric", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", "갑", nil)
		r.Register("b", "을", nil)

		if !r.SetCallPartner("a", "b") {
			t.Fatal("SetCallPartner refused a valid pairing")
		}
		if r.CallPartner("a") != "b" || r.CallPartner("b") != "a" {
			t.Error("pairing not symmetric")
		}
	})

	t.Run("a driver cannot hold two calls", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", "갑", nil)
		r.Register("b", "을", nil)
		r.Register("c", "병", nil)
		r.SetCallPartner("a", "b")

		if r.SetCallPartner("a", "c") {
			t.Error("second pairing for a busy driver should be refused")
		}
		if r.SetCallPartner("c", "b") {
			t.Error("pairing with a busy partner should be refused")
		}
	})

	t.Run("missing driver refuses pairing", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", "갑", nil)
		if r.SetCallPartner("a", "ghost") {
			t.Error("pairing with an unknown driver should be refused")
		}
	})

	t.Run("clear unpairs both sides", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", "갑", nil)
		r.Register("b", "을", nil)
		r.SetCallPartner("a", "b")

		if got := r.ClearCallPartner("a"); got != "b" {
			t.Errorf("ClearCallPartner() = %q, want b", got)
		}
		if r.CallPartner("a") != "" || r.CallPartner("b") != "" {
			t.Error("clear left a dangling partner")
		}
		if got := r.ClearCallPartner("a"); got != "" {
			t.Errorf("second clear = %q, want empty", got)
		}
	})
}
