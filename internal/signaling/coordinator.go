package signaling

import (
	"context"
	"log"
	"sync"

	"truckvoice-backend/internal/models"
	"truckvoice-backend/internal/presence"

	"github.com/google/uuid"
)

// Notifier delivers a signaling outcome to one driver. Implemented by the
// websocket hub; delivery is best effort.
type Notifier interface {
	Notify(driverID, msgType string, data map[string]interface{})
}

// Coordinator mediates call negotiation between drivers. One mutex
// serializes every event, so concurrent requests, answers, and
// disconnects for any pair resolve in a single total order and a driver
// can never end up in two calls at once. Out-of-order client messages
// (accept without an incoming request, end without a call) are absorbed
// as no-ops and logged.
type Coordinator struct {
	mu       sync.Mutex
	calls    map[string]*callFSM
	registry *presence.Registry
	notifier Notifier
}

func NewCoordinator(registry *presence.Registry, notifier Notifier) *Coordinator {
	return &Coordinator{
		calls:    make(map[string]*callFSM),
		registry: registry,
		notifier: notifier,
	}
}

func (c *Coordinator) fsmFor(driverID string) *callFSM {
	if f, ok := c.calls[driverID]; ok {
		return f
	}
	f := newCallFSM()
	c.calls[driverID] = f
	return f
}

// CallState reports the current call state of a driver.
func (c *Coordinator) CallState(driverID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsmFor(driverID).Current()
}

// Request starts a negotiation from caller to target. The caller gets
// back exactly one of: nothing (target is now ringing), "busy",
// "sleeping", or "left". The emergency flag bypasses the sleeping check
// only; a busy target is busy even for an emergency.
func (c *Coordinator) Request(callerID, targetID string, emergency bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	caller := c.fsmFor(callerID)
	target := c.fsmFor(targetID)

	if caller.Current() != StateIdle {
		log.Printf("📞 Ignoring request from %s while %s", callerID, caller.Current())
		return
	}

	targetPeer, ok := c.registry.Get(targetID)
	if !ok || !targetPeer.Reachable {
		c.notifier.Notify(callerID, "left", map[string]interface{}{"id": targetID})
		return
	}

	// Busy check comes first and applies to emergencies too. The caller
	// learns who holds the target so the client can say so.
	if target.Current() != StateIdle {
		c.notifier.Notify(callerID, "busy", map[string]interface{}{
			"id":      targetID,
			"partner": target.peerID,
		})
		return
	}

	if targetPeer.State == models.StateSleeping && !emergency {
		c.notifier.Notify(callerID, "sleeping", map[string]interface{}{
			"id":       targetID,
			"nickname": targetPeer.Nickname,
		})
		return
	}

	negotiationID := uuid.New().String()

	caller.peerID = targetID
	caller.negotiationID = negotiationID
	caller.emergency = emergency
	if err := caller.Event(ctx, EventRequest); err != nil {
		log.Printf("📞 Request transition failed for %s: %v", callerID, err)
		return
	}

	target.peerID = callerID
	target.negotiationID = negotiationID
	target.emergency = emergency
	if err := target.Event(ctx, EventRing); err != nil {
		log.Printf("📞 Ring transition failed for %s: %v", targetID, err)
		caller.Event(ctx, EventReset)
		return
	}

	callerPeer, _ := c.registry.Get(callerID)
	c.notifier.Notify(targetID, "incoming_request", map[string]interface{}{
		"id":            negotiationID,
		"from":          callerID,
		"from_nickname": callerPeer.Nickname,
		"is_emergency":  emergency,
	})
	log.Printf("📞 %s → %s (negotiation %s, emergency=%v)", callerID, targetID, negotiationID, emergency)
}

// Accept answers an incoming request. Both sides go Active and are paired
// in the directory.
func (c *Coordinator) Accept(calleeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	callee := c.fsmFor(calleeID)
	if callee.Current() != StateRinging {
		log.Printf("📞 Ignoring accept from %s while %s", calleeID, callee.Current())
		return
	}

	callerID := callee.peerID
	caller := c.fsmFor(callerID)
	negotiationID := callee.negotiationID

	if err := callee.Event(ctx, EventAccept); err != nil {
		log.Printf("📞 Accept transition failed for %s: %v", calleeID, err)
		return
	}

	if err := caller.Event(ctx, EventAccept); err != nil {
		log.Printf("📞 Accept transition failed for caller %s: %v", callerID, err)
		callee.Event(ctx, EventReset)
		return
	}

	if !c.registry.SetCallPartner(callerID, calleeID) {
		log.Printf("📞 Pairing refused for %s↔%s, tearing down", callerID, calleeID)
		caller.Event(ctx, EventReset)
		callee.Event(ctx, EventReset)
		return
	}

	c.notifier.Notify(callerID, "accepted", map[string]interface{}{"id": negotiationID, "peer": calleeID})
	c.notifier.Notify(calleeID, "accepted", map[string]interface{}{"id": negotiationID, "peer": callerID})
	log.Printf("✅ Call active: %s ↔ %s", callerID, calleeID)
}

// Reject declines an incoming request. Both sides return to Idle.
func (c *Coordinator) Reject(calleeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	callee := c.fsmFor(calleeID)
	if callee.Current() != StateRinging {
		log.Printf("📞 Ignoring reject from %s while %s", calleeID, callee.Current())
		return
	}

	callerID := callee.peerID
	negotiationID := callee.negotiationID
	callee.Event(ctx, EventReject)
	c.fsmFor(callerID).Event(ctx, EventReject)

	calleePeer, _ := c.registry.Get(calleeID)
	c.notifier.Notify(callerID, "rejected", map[string]interface{}{
		"id":       negotiationID,
		"peer":     calleeID,
		"nickname": calleePeer.Nickname,
	})
	log.Printf("📞 %s rejected %s", calleeID, callerID)
}

// End terminates an active call or cancels an in-flight negotiation. The
// other party is notified either way.
func (c *Coordinator) End(driverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(driverID, "ended")
}

// Disconnect tears down whatever call state a departing driver holds. A
// partner mid-call is forced back to Idle and notified; a pending
// negotiation is dropped.
func (c *Coordinator) Disconnect(driverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(driverID, "ended")
	delete(c.calls, driverID)
}

func (c *Coordinator) endLocked(driverID, reason string) {
	ctx := context.Background()
	self := c.fsmFor(driverID)
	if self.Current() == StateIdle {
		return
	}

	peerID := self.peerID
	negotiationID := self.negotiationID
	self.Event(ctx, EventEnd)
	c.registry.ClearCallPartner(driverID)

	if peerID == "" {
		return
	}
	peer := c.fsmFor(peerID)
	if peer.peerID == driverID {
		peer.Event(ctx, EventReset)
		c.notifier.Notify(peerID, reason, map[string]interface{}{"id": negotiationID, "peer": driverID})
	}
	log.Printf("📞 Call torn down: %s ↔ %s", driverID, peerID)
}
