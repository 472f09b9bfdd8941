package main

import "time"

const (
	MovementInterval = time.Second / 50 // movement and animation snapshots
	FactionsInterval = 2 * time.Second  // faction content
)

// Cadence is a minimum-interval gate keyed on wall-clock time
type Cadence struct {
	Interval time.Duration
	last     time.Time
	fired    bool
}

// Ready reports whether at least Interval elapsed since the last firing, and if so
// records now as the new firing time.
func (c *Cadence) Ready(now time.Time) bool {
	if c.fired && now.Sub(c.last) < c.Interval {
		return false
	}
	c.last = now
	c.fired = true
	return true
}

// Scheduler owns the replication cadences of one world
type Scheduler struct {
	Movement Cadence
	Factions Cadence
}

// NewScheduler creates a Scheduler with the given intervals
func NewScheduler(movement, factions time.Duration) *Scheduler {
	return &Scheduler{
		Movement: Cadence{Interval: movement},
		Factions: Cadence{Interval: factions},
	}
}

func movementUpdate(e *Entity) ReferenceUpdate {
	m := e.Movement
	return ReferenceUpdate{
		UpdatedMovement: MovementSnapshot{
			Position:     m.Position,
			Rotation:     Vec2{X: m.Rotation.X, Y: m.Rotation.Z},
			Direction:    m.Direction,
			Variables:    m.Variables,
			CellID:       e.Cell.Cell,
			WorldSpaceID: e.Cell.WorldSpaceID,
		},
		ActionEvents: cloneActions(e.Animation.Actions),
	}
}

// processMovementChanges flushes unsent movement into one batch per player
func (w *World) processMovementChanges(now time.Time) {
	if !w.scheduler.Movement.Ready(now) {
		return
	}

	players := w.players.All()
	messages := make(map[ConnectionID]*ServerReferencesMoveRequest, len(players))
	for _, p := range players {
		messages[p.ID] = &ServerReferencesMoveRequest{
			Tick:    w.tick,
			Updates: make(map[uint32]ReferenceUpdate),
		}
	}

	for _, e := range w.registry.View(hasMovement) {
		if e.Movement.Sent {
			continue
		}
		update := movementUpdate(e)
		for _, p := range players {
			if !w.Visible(p, e) {
				continue
			}
			messages[p.ID].Updates[uint32(e.Handle)] = update
		}
	}

	for _, e := range w.registry.View(func(e *Entity) bool { return e.Movement != nil }) {
		if a := e.Animation; a != nil {
			if n := len(a.Actions); n > 0 {
				a.LastSerializedAction = a.Actions[n-1]
			}
			a.Actions = nil
		}
		e.Movement.Sent = true
	}

	for _, p := range players {
		if msg := messages[p.ID]; len(msg.Updates) > 0 {
			p.Send(msg)
		}
	}
}

// processFactionsChanges flushes dirty faction content into one batch per player
func (w *World) processFactionsChanges(now time.Time) {
	if !w.scheduler.Factions.Ready(now) {
		return
	}

	players := w.players.All()
	messages := make(map[ConnectionID]*NotifyFactionsChanges)

	for _, e := range w.registry.View(hasCharacter) {
		if !e.Character.FactionsDirty {
			continue
		}
		for _, p := range players {
			if !w.Visible(p, e) {
				continue
			}
			msg, ok := messages[p.ID]
			if !ok {
				msg = &NotifyFactionsChanges{Changes: make(map[uint32]Factions)}
				messages[p.ID] = msg
			}
			msg.Changes[uint32(e.Handle)] = e.Character.Factions
		}
		e.Character.FactionsDirty = false
	}

	for _, p := range players {
		if msg, ok := messages[p.ID]; ok && len(msg.Changes) > 0 {
			p.Send(msg)
		}
	}
}
