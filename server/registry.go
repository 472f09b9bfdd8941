package main

import "sort"

// Handle is the transient server-assigned entity id sent on the wire as ServerID.
// The low bits index a slot, the high bits count how often that slot was reused.
type Handle uint32

const (
	handleIndexBits   = 20
	handleIndexMask   = 1<<handleIndexBits - 1
	handleVersionMask = 1<<(32-handleIndexBits) - 1
)

func makeHandle(index, version uint32) Handle {
	return Handle(version<<handleIndexBits | index&handleIndexMask)
}

// Index returns the slot of h
func (h Handle) Index() uint32 {
	return uint32(h) & handleIndexMask
}

// Version returns the reuse count of h's slot
func (h Handle) Version() uint32 {
	return uint32(h) >> handleIndexBits
}

// Entity is the set of records attached to one handle. Optional records are nil when absent.
type Entity struct {
	Handle Handle

	FormID      *GameID // managed identity, nil for custom/temporary characters
	Cell        CellComponent
	Owner       *Ownership
	Movement    *Movement
	Animation   *Animation
	Character   *Character
	Inventory   *Inventory
	ActorValues *ActorValues
	Object      *Object
}

// Registry stores entities by handle. Handles stay valid until Destroy; a
// destroyed handle never matches the entity that later reuses its slot.
// Not safe for concurrent use; the owning World serializes access.
type Registry struct {
	entities map[Handle]*Entity
	versions []uint32 // next version per slot
	free     []uint32
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[Handle]*Entity),
	}
}

// Create allocates a new empty entity
func (r *Registry) Create() *Entity {
	var index uint32
	if len(r.free) > 0 {
		index = r.free[0]
		r.free = r.free[1:]
	} else {
		index = uint32(len(r.versions))
		r.versions = append(r.versions, 0)
	}
	h := makeHandle(index, r.versions[index])
	e := &Entity{Handle: h}
	r.entities[h] = e
	return e
}

// Destroy removes the entity and recycles its slot under a new version
func (r *Registry) Destroy(h Handle) bool {
	if _, ok := r.entities[h]; !ok {
		return false
	}
	delete(r.entities, h)
	index := h.Index()
	r.versions[index] = (r.versions[index] + 1) & handleVersionMask
	r.free = append(r.free, index)
	return true
}

// Get returns the entity for h, or nil
func (r *Registry) Get(h Handle) *Entity {
	return r.entities[h]
}

// TryGet returns the entity for h and whether it exists
func (r *Registry) TryGet(h Handle) (*Entity, bool) {
	e, ok := r.entities[h]
	return e, ok
}

// Len returns the number of live entities
func (r *Registry) Len() int {
	return len(r.entities)
}

// View returns entities matching filter in ascending handle order.
// A nil filter matches every entity.
func (r *Registry) View(filter func(*Entity) bool) []*Entity {
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		if filter == nil || filter(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Find returns the first entity, in handle order, matching filter
func (r *Registry) Find(filter func(*Entity) bool) *Entity {
	var best *Entity
	for _, e := range r.entities {
		if filter(e) && (best == nil || e.Handle < best.Handle) {
			best = e
		}
	}
	return best
}

// Component filters used with View

func hasMovement(e *Entity) bool  { return e.Movement != nil && e.Animation != nil && e.Owner != nil }
func hasCharacter(e *Entity) bool { return e.Character != nil && e.Owner != nil }
