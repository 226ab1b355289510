package presence

import (
	"sort"
	"sync"

	"truckvoice-backend/internal/geo"
	"truckvoice-backend/internal/models"
)

// VisibilityRadiusKm is how far a driver can see non-favorite peers.
const VisibilityRadiusKm = 1.0

type driverEntry struct {
	id          string
	nickname    string
	pos         geo.Position
	state       models.DriverState
	reachable   bool
	callPartner string
	favorites   map[string]bool
}

// Peer is a read-only snapshot of one directory entry, decorated with the
// distance from the viewer that requested it.
type Peer struct {
	ID         string             `json:"id"`
	Nickname   string             `json:"nickname"`
	Pos        geo.Position       `json:"pos"`
	State      models.DriverState `json:"state"`
	Reachable  bool               `json:"reachable"`
	InCall     bool               `json:"in_call"`
	IsFavorite bool               `json:"is_favorite"`
	DistanceKm float64            `json:"distance_km"`
}

// Registry is the live driver directory. All reads and writes go through
// one mutex so every update is an atomic read-modify-write on the entry.
// Entries survive disconnect with reachable=false so a reconnecting
// driver gets its last known state back.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]*driverEntry
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]*driverEntry)}
}

// Register creates or revives an entry. A revived entry keeps its last
// position and state; only the nickname, favorites set, and reachability
// are refreshed.
func (r *Registry) Register(id, nickname string, favorites map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if favorites == nil {
		favorites = map[string]bool{}
	}
	entry, ok := r.drivers[id]
	if !ok {
		entry = &driverEntry{id: id, state: models.StateDriving}
		r.drivers[id] = entry
	}
	entry.nickname = nickname
	entry.favorites = favorites
	entry.reachable = true
}

// Unregister marks the driver unreachable, preserving state and position.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.drivers[id]; ok {
		entry.reachable = false
	}
}

func (r *Registry) UpdatePosition(id string, pos geo.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.drivers[id]; ok {
		entry.pos = pos
	}
}

func (r *Registry) SetState(id string, state models.DriverState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.drivers[id]; ok {
		entry.state = state
	}
}

// Get returns a snapshot of one entry viewed from nobody (DistanceKm 0).
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.drivers[id]
	if !ok {
		return Peer{}, false
	}
	return snapshot(entry, nil), true
}

// SetCallPartner pairs two drivers symmetrically. Returns false if either
// is missing or already paired with someone else.
func (r *Registry) SetCallPartner(a, b string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ea, okA := r.drivers[a]
	eb, okB := r.drivers[b]
	if !okA || !okB {
		return false
	}
	if (ea.callPartner != "" && ea.callPartner != b) || (eb.callPartner != "" && eb.callPartner != a) {
		return false
	}
	ea.callPartner = b
	eb.callPartner = a
	return true
}

// ClearCallPartner unpairs a driver and its partner, returning the
// partner id ("" if the driver was not in a call).
func (r *Registry) ClearCallPartner(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.drivers[id]
	if !ok || entry.callPartner == "" {
		return ""
	}
	partnerID := entry.callPartner
	entry.callPartner = ""
	if partner, ok := r.drivers[partnerID]; ok && partner.callPartner == id {
		partner.callPartner = ""
	}
	return partnerID
}

func (r *Registry) CallPartner(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.drivers[id]; ok {
		return entry.callPartner
	}
	return ""
}

// VisiblePeers applies the proximity gate for one viewer: connected peers
// within VisibilityRadiusKm, plus the viewer's favorites and current call
// partner regardless of distance, minus the viewer itself. Sorted by
// ascending distance, ties broken by id so the order is deterministic.
func (r *Registry) VisiblePeers(viewerID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	viewer, ok := r.drivers[viewerID]
	if !ok {
		return nil
	}

	peers := []Peer{}
	for id, entry := range r.drivers {
		if id == viewerID || !entry.reachable {
			continue
		}
		p := snapshot(entry, viewer)
		if p.DistanceKm <= VisibilityRadiusKm || p.IsFavorite || viewer.callPartner == id {
			peers = append(peers, p)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].DistanceKm != peers[j].DistanceKm {
			return peers[i].DistanceKm < peers[j].DistanceKm
		}
		return peers[i].ID < peers[j].ID
	})
	return peers
}

func snapshot(entry *driverEntry, viewer *driverEntry) Peer {
	p := Peer{
		ID:        entry.id,
		Nickname:  entry.nickname,
		Pos:       entry.pos,
		State:     entry.state,
		Reachable: entry.reachable,
		InCall:    entry.callPartner != "",
	}
	if viewer != nil {
		p.IsFavorite = viewer.favorites[entry.id]
		p.DistanceKm = geo.DistanceKm(viewer.pos, entry.pos)
	}
	return p
}
