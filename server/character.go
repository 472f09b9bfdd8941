package main

import (
	"log"
	"math"
)

const (
	playerBaseID   = 0x14           // base game form id of the player character
	temporaryModID = math.MaxUint32 // mod id reserved for runtime-created forms
)

// identityClass splits a reference id into player, temporary and managed identities
func identityClass(ref GameID) (isPlayer, isTemporary bool) {
	isTemporary = ref.ModID == temporaryModID
	isPlayer = ref.ModID == 0 && ref.BaseID == playerBaseID
	return isPlayer, isTemporary
}

// serializeCharacter builds the spawn message describing e
func serializeCharacter(e *Entity) *CharacterSpawnRequest {
	msg := &CharacterSpawnRequest{
		ServerID:     uint32(e.Handle),
		CellID:       e.Cell.Cell,
		WorldSpaceID: e.Cell.WorldSpaceID,
	}
	if c := e.Character; c != nil {
		msg.AppearanceBuffer = c.SaveBuffer
		msg.ChangeFlags = c.ChangeFlags
		msg.FaceTints = c.FaceTints
		msg.FactionsContent = c.Factions
		msg.IsDead = c.IsDead
		msg.BaseID = c.BaseID
	}
	if e.FormID != nil {
		msg.FormID = *e.FormID
	}
	if e.Inventory != nil {
		msg.InventoryContent = *e.Inventory
	}
	if e.ActorValues != nil {
		msg.InitialActorValues = *e.ActorValues
	}
	if m := e.Movement; m != nil {
		msg.Position = m.Position
		msg.Rotation = Vec2{X: m.Rotation.X, Y: m.Rotation.Z}
	}
	if a := e.Animation; a != nil {
		msg.LatestAction = a.CurrentAction
	}
	return msg
}

// findManaged returns the character entity with the managed identity id
func (w *World) findManaged(id GameID) *Entity {
	return w.registry.Find(func(e *Entity) bool {
		return e.FormID != nil && *e.FormID == id &&
			e.Character != nil && e.Movement != nil && e.ActorValues != nil
	})
}

// handleAssignCharacter answers an ownership acquisition request
func (w *World) handleAssignCharacter(p *Player, req *AssignCharacterRequest) {
	ref := req.ReferenceID
	isPlayer, isTemporary := identityClass(ref)
	isCustom := isPlayer || isTemporary

	if !isCustom {
		if !p.HasMod(ref.ModID) {
			w.violation(p, "assignment of %x:%x names a mod they did not load", ref.ModID, ref.BaseID)
			return
		}
		if e := w.findManaged(ref); e != nil {
			log.Printf("form %x:%x is already managed", ref.ModID, ref.BaseID)
			resp := &AssignCharacterResponse{
				Cookie:   req.Cookie,
				ServerID: uint32(e.Handle),
				Owner:    false,
				IsDead:   e.Character.IsDead,
				Position: e.Movement.Position,
				CellID:   e.Cell.Cell,
			}
			resp.AllActorValues = *e.ActorValues
			p.Send(resp)
			return
		}
	} else if !req.FormID.IsZero() && !isTemporary {
		w.violation(p, "unexpected npc id %x:%x on custom character, might be forging packets", req.FormID.ModID, req.FormID.BaseID)
		return
	}

	w.createCharacter(p, req, isPlayer, isCustom)
}

func (w *World) createCharacter(p *Player, req *AssignCharacterRequest, isPlayer, isCustom bool) {
	e := w.registry.Create()
	if !isCustom {
		id := req.ReferenceID
		e.FormID = &id
	}

	e.Owner = NewOwnership(p.ID)
	e.Cell = CellComponent{Cell: req.CellID}
	if !req.WorldSpaceID.IsZero() {
		e.Cell.WorldSpaceID = req.WorldSpaceID
		e.Cell.CenterCoords = CalculateGridCellCoords(req.Position.X, req.Position.Y)
	}

	e.Character = &Character{
		ChangeFlags: req.ChangeFlags,
		SaveBuffer:  req.AppearanceBuffer,
		BaseID:      req.FormID,
		FaceTints:   req.FaceTints,
		Factions:    req.FactionsContent,
		IsDead:      req.IsDead,
	}
	inv := req.InventoryContent
	e.Inventory = &inv
	av := req.AllActorValues
	e.ActorValues = &av
	e.Movement = &Movement{
		Tick:     w.tick,
		Position: req.Position,
		Rotation: Vec3{X: req.Rotation.X, Z: req.Rotation.Y},
		Sent:     false,
	}
	e.Animation = &Animation{CurrentAction: req.LatestAction}

	log.Printf("form %x:%x npc %x:%x assigned to %x as %x",
		req.ReferenceID.ModID, req.ReferenceID.BaseID, req.FormID.ModID, req.FormID.BaseID, p.ID, e.Handle)
	w.journal.Track(EvtAssigned, p.ID, e.Handle, "")

	if isPlayer {
		p.SetCharacter(e.Handle)
		w.movePlayer(p, e.Cell)
	}

	p.Send(&AssignCharacterResponse{
		Cookie:         req.Cookie,
		ServerID:       uint32(e.Handle),
		Owner:          true,
		AllActorValues: req.AllActorValues,
	})

	w.broadcastSpawn(e)
}

// handleReferencesMove applies movement of entities owned by p
func (w *World) handleReferencesMove(p *Player, req *ClientReferencesMoveRequest) {
	for _, id := range sortedIDs(req.Updates) {
		e := w.registry.Get(Handle(id))
		if e == nil || e.Movement == nil || e.Animation == nil || e.Owner == nil || !e.Owner.IsOwner(p.ID) {
			log.Printf("%x requested move of %x but does not own it", p.ID, id)
			continue
		}
		if req.Tick < e.Movement.Tick {
			continue
		}

		update := req.Updates[id]
		mv := update.UpdatedMovement
		snapshot := *e.Movement
		oldCell := e.Cell

		e.Movement.Tick = req.Tick
		e.Movement.Position = mv.Position
		e.Movement.Rotation = Vec3{X: mv.Rotation.X, Z: mv.Rotation.Y}
		e.Movement.Variables = mv.Variables
		e.Movement.Direction = mv.Direction

		e.Cell = CellComponent{Cell: mv.CellID, WorldSpaceID: mv.WorldSpaceID}
		if !mv.WorldSpaceID.IsZero() {
			e.Cell.CenterCoords = CalculateGridCellCoords(mv.Position.X, mv.Position.Y)
		}

		if canceled, reason := w.hook.HandleMove(p, e); canceled {
			log.Printf("move of %x by %x canceled: %s", e.Handle, p.ID, reason)
			*e.Movement = snapshot
			e.Cell = oldCell
		}

		for _, action := range update.ActionEvents {
			e.Animation.CurrentAction = action
			e.Animation.Actions = append(e.Animation.Actions, action)
		}
		e.Movement.Sent = false

		if e.Cell != oldCell {
			w.onEntityCellChange(e, oldCell)
			if c, ok := p.Character(); ok && c == e.Handle {
				w.movePlayer(p, e.Cell)
			}
		}
	}
}

// handleFactionsChanges stores faction content of characters owned by p
func (w *World) handleFactionsChanges(p *Player, req *RequestFactionsChanges) {
	for _, id := range sortedIDs(req.Changes) {
		factions := req.Changes[id]
		e := w.registry.Get(Handle(id))
		if e == nil || e.Character == nil || e.Owner == nil || !e.Owner.IsOwner(p.ID) {
			continue
		}
		e.Character.Factions = factions
		e.Character.FactionsDirty = true
	}
}

// handleSpawnData answers with the initial data of a character
func (w *World) handleSpawnData(p *Player, req *RequestSpawnData) {
	e := w.registry.Get(Handle(req.ID))
	if e == nil || e.ActorValues == nil || e.Inventory == nil {
		return
	}
	msg := &NotifySpawnData{
		ID:                 req.ID,
		InitialActorValues: *e.ActorValues,
		InitialInventory:   *e.Inventory,
	}
	if e.Character != nil {
		msg.IsDead = e.Character.IsDead
	}
	p.Send(msg)
}
