package main

// ConnectionID identifies a transport connection. Ownership records store this key,
// never the Player itself.
type ConnectionID uint32

// Broadcaster sends a server message to one connection
type Broadcaster interface {
	Send(msg ServerMessage)
}

// Player is the world-side record of a connected client
type Player struct {
	ID       ConnectionID
	Username string

	character *Handle
	cell      CellComponent
	mods      []string
	modIDs    map[uint32]bool

	out Broadcaster
}

// NewPlayer creates a player that has not yet spawned a character
func NewPlayer(id ConnectionID, username string, out Broadcaster) *Player {
	return &Player{
		ID:       id,
		Username: username,
		modIDs:   make(map[uint32]bool),
		out:      out,
	}
}

// Send delivers msg to the player's connection. Nil broadcasters drop silently.
func (p *Player) Send(msg ServerMessage) {
	if p.out == nil {
		return
	}
	p.out.Send(msg)
}

// Character returns the player's own character handle, if spawned
func (p *Player) Character() (Handle, bool) {
	if p.character == nil {
		return 0, false
	}
	return *p.character, true
}

// SetCharacter records the player's own character
func (p *Player) SetCharacter(h Handle) {
	p.character = &h
}

// ClearCharacter forgets the player's own character
func (p *Player) ClearCharacter() {
	p.character = nil
}

// Cell returns the player's current locus
func (p *Player) Cell() CellComponent {
	return p.cell
}

// SetCell moves the player's locus
func (p *Player) SetCell(c CellComponent) {
	p.cell = c
}

// Mods returns the mod names the player loaded
func (p *Player) Mods() []string {
	return p.mods
}

// SetMods records the player's loaded mods and their server mod ids
func (p *Player) SetMods(names []string, ids []uint32) {
	p.mods = append([]string(nil), names...)
	p.modIDs = make(map[uint32]bool, len(ids))
	for _, id := range ids {
		p.modIDs[id] = true
	}
}

// HasMod reports whether the player loaded the mod with server id modID
func (p *Player) HasMod(modID uint32) bool {
	return p.modIDs[modID]
}

// PlayerManager holds connected players in registration order
type PlayerManager struct {
	order []*Player
	byID  map[ConnectionID]*Player
}

// NewPlayerManager creates an empty PlayerManager
func NewPlayerManager() *PlayerManager {
	return &PlayerManager{
		byID: make(map[ConnectionID]*Player),
	}
}

// Add registers p at the end of the iteration order. Re-adding an id is ignored.
func (m *PlayerManager) Add(p *Player) bool {
	if _, ok := m.byID[p.ID]; ok {
		return false
	}
	m.byID[p.ID] = p
	m.order = append(m.order, p)
	return true
}

// Remove unregisters the player with id and returns it
func (m *PlayerManager) Remove(id ConnectionID) *Player {
	p, ok := m.byID[id]
	if !ok {
		return nil
	}
	delete(m.byID, id)
	for i, q := range m.order {
		if q == p {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return p
}

// Get returns the player with id, or nil
func (m *PlayerManager) Get(id ConnectionID) *Player {
	return m.byID[id]
}

// All returns players in registration order. The slice must not be modified.
func (m *PlayerManager) All() []*Player {
	return m.order
}

// Count returns the number of connected players
func (m *PlayerManager) Count() int {
	return len(m.order)
}
