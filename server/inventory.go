package main

import "log"

type cacheEntry[V any] struct {
	value V
	from  ConnectionID
}

// MergeCache coalesces repeated changes per key between flushes. The last Put for
// a key wins; Drain visits keys in the order they were first marked.
type MergeCache[K comparable, V any] struct {
	entries map[K]cacheEntry[V]
	order   []K
}

// NewMergeCache creates an empty MergeCache
func NewMergeCache[K comparable, V any]() *MergeCache[K, V] {
	return &MergeCache[K, V]{
		entries: make(map[K]cacheEntry[V]),
	}
}

// Put records v as the pending change for k, overwriting any earlier one
func (c *MergeCache[K, V]) Put(k K, v V, from ConnectionID) {
	if _, ok := c.entries[k]; !ok {
		c.order = append(c.order, k)
	}
	c.entries[k] = cacheEntry[V]{value: v, from: from}
}

// Pending reports whether k has an unapplied change
func (c *MergeCache[K, V]) Pending(k K) bool {
	_, ok := c.entries[k]
	return ok
}

// Len returns the number of marked keys
func (c *MergeCache[K, V]) Len() int {
	return len(c.order)
}

// Drain calls fn once per marked key with its final value, then clears the cache
func (c *MergeCache[K, V]) Drain(fn func(k K, v V, from ConnectionID)) {
	order := c.order
	entries := c.entries
	c.order = nil
	c.entries = make(map[K]cacheEntry[V])
	for _, k := range order {
		e := entries[k]
		fn(k, e.value, e.from)
	}
}

// handleObjectInventoryChanges caches object inventory changes until the next flush
func (w *World) handleObjectInventoryChanges(p *Player, req *RequestObjectInventoryChanges) {
	for _, d := range req.Changes {
		if d.ID.ModID != temporaryModID && !p.HasMod(d.ID.ModID) {
			w.violation(p, "inventory change for object %x:%x names a mod they did not load", d.ID.ModID, d.ID.BaseID)
			continue
		}
		w.objectInventories.Put(d.ID, d, p.ID)
	}
}

// handleCharacterInventoryChanges caches character inventory changes until the next flush
func (w *World) handleCharacterInventoryChanges(p *Player, req *RequestCharacterInventoryChanges) {
	for _, id := range sortedIDs(req.Changes) {
		w.characterInventories.Put(Handle(id), req.Changes[id], p.ID)
	}
}

// findObject returns the world object entity with identity id
func (w *World) findObject(id GameID) *Entity {
	return w.registry.Find(func(e *Entity) bool {
		return e.Object != nil && e.FormID != nil && *e.FormID == id
	})
}

// flushInventories applies the final cached inventory of every marked id once and
// notifies players in range, except the player that sent the change.
func (w *World) flushInventories() {
	w.flushObjectInventories()
	w.flushCharacterInventories()
}

func (w *World) flushObjectInventories() {
	if w.objectInventories.Len() == 0 {
		return
	}
	messages := make(map[ConnectionID]*NotifyObjectInventoryChanges)

	w.objectInventories.Drain(func(id GameID, d ObjectData, from ConnectionID) {
		e := w.findObject(id)
		if e == nil {
			e = w.registry.Create()
			formID := id
			e.FormID = &formID
			e.Object = &Object{}
			e.Inventory = &Inventory{}
			e.Cell = CellComponent{Cell: d.CellID, WorldSpaceID: d.WorldSpaceID, CenterCoords: d.CurrentCoords}
		}
		*e.Inventory = d.CurrentInventory
		e.Object.Lock = d.CurrentLockData

		for _, p := range w.players.All() {
			if p.ID == from || !p.Cell().Overlaps(e.Cell) {
				continue
			}
			msg, ok := messages[p.ID]
			if !ok {
				msg = &NotifyObjectInventoryChanges{}
				messages[p.ID] = msg
			}
			msg.Changes = append(msg.Changes, d)
		}
	})

	for _, p := range w.players.All() {
		if msg, ok := messages[p.ID]; ok {
			p.Send(msg)
		}
	}
}

func (w *World) flushCharacterInventories() {
	if w.characterInventories.Len() == 0 {
		return
	}
	messages := make(map[ConnectionID]*NotifyCharacterInventoryChanges)

	w.characterInventories.Drain(func(h Handle, inv Inventory, from ConnectionID) {
		e := w.registry.Get(h)
		if e == nil || e.Inventory == nil {
			log.Printf("%x sent inventory of %x which has no inventory", from, h)
			return
		}
		*e.Inventory = inv

		for _, p := range w.players.All() {
			if p.ID == from || !p.Cell().Overlaps(e.Cell) {
				continue
			}
			msg, ok := messages[p.ID]
			if !ok {
				msg = &NotifyCharacterInventoryChanges{Changes: make(map[uint32]Inventory)}
				messages[p.ID] = msg
			}
			msg.Changes[uint32(h)] = inv
		}
	})

	for _, p := range w.players.All() {
		if msg, ok := messages[p.ID]; ok {
			p.Send(msg)
		}
	}
}
