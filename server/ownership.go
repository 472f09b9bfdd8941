package main

import "log"

// Ownership records which connection is authoritative for an entity and which
// connections declined it. It stores connection keys only.
type Ownership struct {
	owner         ConnectionID
	invalidOwners []ConnectionID
}

// NewOwnership creates an ownership record held by owner
func NewOwnership(owner ConnectionID) *Ownership {
	return &Ownership{owner: owner}
}

// Owner returns the current owner
func (o *Ownership) Owner() ConnectionID {
	return o.owner
}

// IsOwner reports whether id is the current owner
func (o *Ownership) IsOwner(id ConnectionID) bool {
	return o.owner == id
}

// IsInvalid reports whether id declined this entity since the last claim
func (o *Ownership) IsInvalid(id ConnectionID) bool {
	for _, inv := range o.invalidOwners {
		if inv == id {
			return true
		}
	}
	return false
}

// InvalidOwners returns a copy of the exclusion list in insertion order
func (o *Ownership) InvalidOwners() []ConnectionID {
	return append([]ConnectionID(nil), o.invalidOwners...)
}

// Reject adds id to the exclusion list once
func (o *Ownership) Reject(id ConnectionID) {
	if o.IsInvalid(id) {
		return
	}
	o.invalidOwners = append(o.invalidOwners, id)
}

// SetOwner hands the entity to id
func (o *Ownership) SetOwner(id ConnectionID) {
	o.owner = id
}

// Claim clears the exclusion list if id is the owner
func (o *Ownership) Claim(id ConnectionID) bool {
	if o.owner != id {
		return false
	}
	o.invalidOwners = nil
	return true
}

// handleOwnershipTransfer records that p declines the entity and queues resolution
func (w *World) handleOwnershipTransfer(p *Player, req *RequestOwnershipTransfer) {
	e := w.registry.Get(Handle(req.ServerID))
	if e == nil || e.Owner == nil {
		w.violation(p, "requested transfer of entity %x that doesn't exist", req.ServerID)
		return
	}
	if !e.Owner.IsOwner(p.ID) {
		w.violation(p, "requested transfer of entity %x that they do not own", req.ServerID)
		return
	}

	e.Owner.Reject(p.ID)
	w.queueTransfer(e.Handle)
}

// handleOwnershipClaim restores full eligibility when the owner confirms ownership
func (w *World) handleOwnershipClaim(p *Player, req *RequestOwnershipClaim) {
	e := w.registry.Get(Handle(req.ServerID))
	if e == nil || e.Owner == nil {
		w.violation(p, "requested claim of entity %x that doesn't exist", req.ServerID)
		return
	}
	if !e.Owner.Claim(p.ID) {
		w.violation(p, "requested claim of entity %x that they do not own", req.ServerID)
		return
	}
	log.Printf("ownership claimed %x by %x", req.ServerID, p.ID)
	w.journal.Track(EvtClaimed, p.ID, e.Handle, "")
}

func (w *World) queueTransfer(h Handle) {
	w.transfers = append(w.transfers, h)
}

// processTransfers resolves every queued transfer, including ones queued while resolving
func (w *World) processTransfers() {
	for len(w.transfers) > 0 {
		h := w.transfers[0]
		w.transfers = w.transfers[1:]
		w.resolveTransfer(h)
	}
	w.transfers = nil
}

// selectOwner returns the first player in registration order eligible to own e
func (w *World) selectOwner(e *Entity) *Player {
	for _, p := range w.players.All() {
		if e.Owner.IsOwner(p.ID) || e.Owner.IsInvalid(p.ID) {
			continue
		}
		if !p.Cell().Overlaps(e.Cell) {
			continue
		}
		return p
	}
	return nil
}

// resolveTransfer hands e to the first eligible player, or destroys it
func (w *World) resolveTransfer(h Handle) {
	e := w.registry.Get(h)
	if e == nil || e.Owner == nil {
		return
	}
	prior := e.Owner.Owner()

	if p := w.selectOwner(e); p != nil {
		e.Owner.SetOwner(p.ID)
		p.Send(&NotifyOwnershipTransfer{ServerID: uint32(h)})
		if old := w.players.Get(prior); old != nil {
			old.Send(&NotifyRemoveCharacter{ServerID: uint32(h)})
		}
		log.Printf("ownership of %x transferred from %x to %x", h, prior, p.ID)
		w.journal.Track(EvtTransferred, p.ID, h, "")
		return
	}

	w.removeEntity(e, prior)
}

// removeEntity destroys e and notifies every player except skip
func (w *World) removeEntity(e *Entity, skip ConnectionID) {
	msg := &NotifyRemoveCharacter{ServerID: uint32(e.Handle)}
	for _, p := range w.players.All() {
		if c, ok := p.Character(); ok && c == e.Handle {
			p.ClearCharacter()
		}
		if p.ID == skip {
			continue
		}
		p.Send(msg)
	}
	w.registry.Destroy(e.Handle)
	log.Printf("character destroyed %x", e.Handle)
	w.journal.Track(EvtDestroyed, skip, e.Handle, "")
}

// releaseOwnedEntities runs when p has already been removed from the player list
func (w *World) releaseOwnedEntities(p *Player) {
	own, hasOwn := p.Character()
	owned := w.registry.View(func(e *Entity) bool {
		return e.Owner != nil && e.Owner.IsOwner(p.ID)
	})
	for _, e := range owned {
		if hasOwn && e.Handle == own {
			w.removeEntity(e, p.ID)
			continue
		}
		w.queueTransfer(e.Handle)
	}
	p.ClearCharacter()
	w.processTransfers()
}
