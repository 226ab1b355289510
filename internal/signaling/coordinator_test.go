package signaling

import (
	"sync"
	"testing"

	"truckvoice-backend/internal/models"
	"truckvoice-backend/internal/presence"
)

type notification struct {
	driverID string
	msgType  string
	data     map[string]interface{}
}

// mockNotifier records every delivery so tests can assert on ordering
// and payloads.
type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (m *mockNotifier) Notify(driverID, msgType string, data map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, notification{driverID, msgType, data})
}

func (m *mockNotifier) last() (notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notification{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *mockNotifier) typesFor(driverID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, n := range m.sent {
		if n.driverID == driverID {
			types = append(types, n.msgType)
		}
	}
	return types
}

func newTestCoordinator(drivers ...string) (*Coordinator, *presence.Registry, *mockNotifier) {
	registry := presence.NewRegistry()
	for _, id := range drivers {
		registry.Register(id, id+"님", nil)
	}
	notifier := &mockNotifier{}
	return NewCoordinator(registry, notifier), registry, notifier
}

func TestRequest(t *testing.T) {
	t.Run("reachable idle target starts ringing", func(t *testing.T) {
		c, _, n := newTestCoordinator("a", "b")
		c.Request("a", "b", false)

		if got := c.CallState("a"); got != StateRequesting {
			t.Errorf("caller state = %q, want requesting", got)
		}
		if got := c.CallState("b"); got != StateRinging {
			t.Errorf("target state = %q, want ringing", got)
		}
		last, ok := n.last()
		if !ok || last.driverID != "b" || last.msgType != "incoming_request" {
			t.Fatalf("expected incoming_request to b, got %+v", last)
		}
		if last.data["from"] != "a" || last.data["from_nickname"] != "a님" {
			t.Errorf("bad request payload: %v", last.data)
		}
		if last.data["is_emergency"] != false {
			t.Errorf("emergency flag leaked into a normal request: %v", last.data)
		}
	})

	t.Run("unknown target reports left", func(t *testing.T) {
		c, _, n := newTestCoordinator("a")
		c.Request("a", "ghost", false)

		last, _ := n.last()
		if last.driverID != "a" || last.msgType != "left" {
			t.Errorf("expected left to caller, got %+v", last)
		}
		if got := c.CallState("a"); got != StateIdle {
			t.Errorf("caller state = %q, want idle", got)
		}
	})

	t.Run("disconnected target reports left", func(t *testing.T) {
		c, registry, n := newTestCoordinator("a", "b")
		registry.Unregister("b")
		c.Request("a", "b", false)

		last, _ := n.last()
		if last.msgType != "left" {
			t.Errorf("expected left, got %+v", last)
		}
	})

	t.Run("busy target reports busy", func(t *testing.T) {
		c, _, n := newTestCoordinator("a", "b", "c")
		c.Request("b", "c", false)
		c.Accept("c")

		c.Request("a", "b", false)
		last, _ := n.last()
		if last.driverID != "a" || last.msgType != "busy" {
			t.Errorf("expected busy to a, got %+v", last)
		}
		if last.data["partner"] != "c" {
			t.Errorf("busy payload = %v, want the holding partner c", last.data)
		}
		if got := c.CallState("a"); got != StateIdle {
			t.Errorf("caller state = %q, want idle", got)
		}
	})

	t.Run("busy during a pending negotiation names the other party", func(t *testing.T) {
		c, _, n := newTestCoordinator("a", "b", "c")
		c.Request("b", "c", false) // unanswered, b is requesting

		c.Request("a", "b", false)
		last, _ := n.last()
		if last.msgType != "busy" || last.data["partner"] != "c" {
			t.Errorf("expected busy with partner c, got %+v", last)
		}
	})

	t.Run("sleeping target reports sleeping", func(t *testing.T) {
		c, registry, n := newTestCoordinator("a", "b")
		registry.SetState("b", models.StateSleeping)
		c.Request("a", "b", false)

		last, _ := n.last()
		if last.driverID != "a" || last.msgType != "sleeping" {
			t.Errorf("expected sleeping to a, got %+v", last)
		}
		if last.data["nickname"] != "b님" {
			t.Errorf("sleeping payload = %v, want the sleeper's nickname", last.data)
		}
	})

	t.Run("emergency bypasses sleeping", func(t *testing.T) {
		c, registry, n := newTestCoordinator("a", "b")
		registry.SetState("b", models.StateSleeping)
		c.Request("a", "b", true)

		last, _ := n.last()
		if last.driverID != "b" || last.msgType != "incoming_request" {
			t.Fatalf("expected incoming_request to b, got %+v", last)
		}
		if last.data["is_emergency"] != true {
			t.Errorf("emergency flag missed: %v", last.data)
		}
	})

	t.Run("emergency does not bypass busy", func(t *testing.T) {
		c, _, n := newTestCoordinator("a", "b", "c")
		c.Request("b", "c", false)
		c.Accept("c")

		c.Request("a", "b", true)
		last, _ := n.last()
		if last.driverID != "a" || last.msgType != "busy" {
			t.Errorf("expected busy even for an emergency, got %+v", last)
		}
	})

	t.Run("caller already negotiating is ignored", func(t *testing.T) {
		c, _, n := newTestCoordinator("a", "b", "c")
		c.Request("a", "b", false)
		before := len(n.sent)

		c.Request("a", "c", false)
		if len(n.sent) != before {
			t.Error("second request while requesting should be a no-op")
		}
		if got := c.CallState("c"); got != StateIdle {
			t.Errorf("c state = %q, want idle", got)
		}
	})
}

func TestAccept(t *testing.T) {
	t.Run("pairs both sides and notifies them", func(t *testing.T) {
		c, registry, n := newTestCoordinator("a", "b")
		c.Request("a", "b", false)
		c.Accept("b")

		if c.CallState("a") != StateActive || c.CallState("b") != StateActive {
			t.Error("both sides should be active after accept")
		}
		if registry.CallPartner("a") != "b" {
			t.Error("directory pairing missing after accept")
		}
		for _, id := range []string{"a", "b"} {
			types := n.typesFor(id)
			if len(types) == 0 || types[len(types)-1] != "accepted" {
				t.Errorf("%s notifications = %v, want accepted last", id, types)
			}
		}
	})

	t.Run("accept without an incoming request is a no-op", func(t *testing.T) {
		c, registry, _ := newTestCoordinator("a")
		c.Accept("a")

		if got := c.CallState("a"); got != StateIdle {
			t.Errorf("state = %q, want idle", got)
		}
		if registry.CallPartner("a") != "" {
			t.Error("phantom pairing created")
		}
	})
}

func TestReject(t *testing.T) {
	c, _, n := newTestCoordinator("a", "b")
	c.Request("a", "b", false)
	c.Reject("b")

	if c.CallState("a") != StateIdle || c.CallState("b") != StateIdle {
		t.Error("both sides should be idle after reject")
	}
	last, _ := n.last()
	if last.driverID != "a" || last.msgType != "rejected" {
		t.Errorf("expected rejected to caller, got %+v", last)
	}
	if last.data["nickname"] != "b님" {
		t.Errorf("rejected payload = %v, want the rejecting driver's nickname", last.data)
	}

	// A stale reject after the negotiation is gone is absorbed.
	before := len(n.sent)
	c.Reject("b")
	if len(n.sent) != before {
		t.Error("reject while idle should be a no-op")
	}
}

func TestEnd(t *testing.T) {
	t.Run("either side can end an active call", func(t *testing.T) {
		c, registry, n := newTestCoordinator("a", "b")
		c.Request("a", "b", false)
		c.Accept("b")
		c.End("b")

		if c.CallState("a") != StateIdle || c.CallState("b") != StateIdle {
			t.Error("both sides should be idle after end")
		}
		if registry.CallPartner("a") != "" || registry.CallPartner("b") != "" {
			t.Error("pairing survived the end")
		}
		last, _ := n.last()
		if last.driverID != "a" || last.msgType != "ended" {
			t.Errorf("expected ended to the other side, got %+v", last)
		}
	})

	t.Run("end cancels an unanswered request", func(t *testing.T) {
		c, _, n := newTestCoordinator("a", "b")
		c.Request("a", "b", false)
		c.End("a")

		if c.CallState("b") != StateIdle {
			t.Error("ringing side should return to idle when the caller gives up")
		}
		last, _ := n.last()
		if last.driverID != "b" || last.msgType != "ended" {
			t.Errorf("expected ended to the ringing side, got %+v", last)
		}
	})

	t.Run("end while idle is a no-op", func(t *testing.T) {
		c, _, n := newTestCoordinator("a")
		c.End("a")
		if len(n.sent) != 0 {
			t.Errorf("unexpected notifications: %v", n.sent)
		}
	})
}

func TestDisconnect(t *testing.T) {
	c, registry, n := newTestCoordinator("a", "b")
	c.Request("a", "b", false)
	c.Accept("b")
	c.Disconnect("a")

	if got := c.CallState("b"); got != StateIdle {
		t.Errorf("partner state = %q, want idle", got)
	}
	if registry.CallPartner("b") != "" {
		t.Error("partner still paired after disconnect")
	}
	types := n.typesFor("b")
	if len(types) == 0 || types[len(types)-1] != "ended" {
		t.Errorf("partner notifications = %v, want ended last", types)
	}

	// The departed driver can negotiate again after reconnecting.
	c.Request("a", "b", false)
	if got := c.CallState("b"); got != StateRinging {
		t.Errorf("b state after fresh request = %q, want ringing", got)
	}
}
