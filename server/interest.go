package main

// visibleFrom decides whether observer, standing at locus, should receive e.
// Owners never receive echoes of their own entities.
func visibleFrom(locus CellComponent, observer ConnectionID, e *Entity) bool {
	if e.Owner != nil && e.Owner.IsOwner(observer) {
		return false
	}
	return locus.Overlaps(e.Cell)
}

// Visible reports whether p should receive updates about e
func (w *World) Visible(p *Player, e *Entity) bool {
	return visibleFrom(p.Cell(), p.ID, e)
}

// broadcastSpawn sends a spawn of e to every player that can see it
func (w *World) broadcastSpawn(e *Entity) {
	msg := serializeCharacter(e)
	for _, p := range w.players.All() {
		if w.Visible(p, e) {
			p.Send(msg)
		}
	}
}

// onEntityCellChange keeps observers' entity sets in step with visibility after e moved
// from old to its current cell.
func (w *World) onEntityCellChange(e *Entity, old CellComponent) {
	var spawn *CharacterSpawnRequest
	remove := &NotifyRemoveCharacter{ServerID: uint32(e.Handle)}

	for _, p := range w.players.All() {
		if e.Owner != nil && e.Owner.IsOwner(p.ID) {
			continue
		}
		was := p.Cell().Overlaps(old)
		now := p.Cell().Overlaps(e.Cell)
		switch {
		case now && !was:
			if spawn == nil {
				spawn = serializeCharacter(e)
			}
			p.Send(spawn)
		case was && !now:
			p.Send(remove)
		}
	}
}

// onPlayerCellChange spawns and removes characters for p after its locus moved from old
func (w *World) onPlayerCellChange(p *Player, old CellComponent) {
	for _, e := range w.registry.View(hasCharacter) {
		if e.Owner.IsOwner(p.ID) {
			continue
		}
		was := old.Overlaps(e.Cell)
		now := p.Cell().Overlaps(e.Cell)
		switch {
		case now && !was:
			p.Send(serializeCharacter(e))
		case was && !now:
			p.Send(&NotifyRemoveCharacter{ServerID: uint32(e.Handle)})
		}
	}
}

// handleEnterCell moves the sender's locus
func (w *World) handleEnterCell(p *Player, req *EnterCellRequest) {
	cell := CellComponent{Cell: req.CellID, WorldSpaceID: req.WorldSpaceID}
	if !req.WorldSpaceID.IsZero() {
		cell.CenterCoords = CalculateGridCellCoords(req.Position.X, req.Position.Y)
	}
	w.movePlayer(p, cell)
}

func (w *World) movePlayer(p *Player, cell CellComponent) {
	old := p.Cell()
	if old == cell {
		return
	}
	p.SetCell(cell)
	w.onPlayerCellChange(p, old)
}
