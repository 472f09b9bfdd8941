package main

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const DefaultTickRate = 60 // simulation ticks per second

// WorldOptions tunes a World. Zero fields take defaults.
type WorldOptions struct {
	TickRate         int
	MovementInterval time.Duration
	FactionsInterval time.Duration
	Hook             MoveHook
	Journal          *Journal
}

type commandKind uint8

const (
	cmdJoin commandKind = iota
	cmdLeave
	cmdPacket
)

type command struct {
	kind   commandKind
	conn   ConnectionID
	player *Player
	mods   []string
	msg    ClientMessage
}

// WorldStats is a snapshot published once per tick for status endpoints
type WorldStats struct {
	Name     string `json:"name"`
	Tick     uint64 `json:"tick"`
	Players  int    `json:"players"`
	Entities int    `json:"entities"`
}

// World is one authoritative world instance. All state below the inbox is touched
// only by the goroutine calling Update.
type World struct {
	Name string

	inboxMu sync.Mutex
	inbox   []command

	registry  *Registry
	players   *PlayerManager
	modIDs    map[string]uint32
	transfers []Handle
	scheduler *Scheduler
	hook      MoveHook
	journal   *Journal

	objectInventories    *MergeCache[GameID, ObjectData]
	characterInventories *MergeCache[Handle, Inventory]

	tick     uint64
	tickRate int

	stop     chan struct{}
	stopOnce sync.Once

	statsMu sync.RWMutex
	stats   WorldStats
}

// NewWorld creates an empty World
func NewWorld(name string, opts WorldOptions) *World {
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	if opts.MovementInterval <= 0 {
		opts.MovementInterval = MovementInterval
	}
	if opts.FactionsInterval <= 0 {
		opts.FactionsInterval = FactionsInterval
	}
	if opts.Hook == nil {
		opts.Hook = finiteMoves{}
	}
	return &World{
		Name:                 name,
		registry:             NewRegistry(),
		players:              NewPlayerManager(),
		modIDs:               make(map[string]uint32),
		scheduler:            NewScheduler(opts.MovementInterval, opts.FactionsInterval),
		hook:                 opts.Hook,
		journal:              opts.Journal,
		objectInventories:    NewMergeCache[GameID, ObjectData](),
		characterInventories: NewMergeCache[Handle, Inventory](),
		tickRate:             opts.TickRate,
		stop:                 make(chan struct{}),
		stats:                WorldStats{Name: name},
	}
}

// Run drives Update at the world tick rate until Stop
func (w *World) Run() {
	ticker := time.NewTicker(time.Second / time.Duration(w.tickRate))
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			w.Update(now)
		case <-w.stop:
			return
		}
	}
}

// Stop terminates the world loop
func (w *World) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Join queues p to enter the world with its loaded mods
func (w *World) Join(p *Player, mods []string) {
	w.enqueue(command{kind: cmdJoin, conn: p.ID, player: p, mods: mods})
}

// Leave queues the departure of the connection
func (w *World) Leave(id ConnectionID) {
	w.enqueue(command{kind: cmdLeave, conn: id})
}

// Deliver queues an inbound request from the connection
func (w *World) Deliver(id ConnectionID, msg ClientMessage) {
	w.enqueue(command{kind: cmdPacket, conn: id, msg: msg})
}

func (w *World) enqueue(cmd command) {
	w.inboxMu.Lock()
	w.inbox = append(w.inbox, cmd)
	w.inboxMu.Unlock()
}

func (w *World) drainInbox() []command {
	w.inboxMu.Lock()
	defer w.inboxMu.Unlock()
	cmds := w.inbox
	w.inbox = nil
	return cmds
}

// Update runs one tick: inbound requests, inventory flush, then both replication cadences
func (w *World) Update(now time.Time) {
	w.tick++

	for _, cmd := range w.drainInbox() {
		w.handleCommand(cmd)
		w.processTransfers()
	}

	w.flushInventories()
	w.processFactionsChanges(now)
	w.processMovementChanges(now)

	w.statsMu.Lock()
	w.stats = WorldStats{
		Name:     w.Name,
		Tick:     w.tick,
		Players:  w.players.Count(),
		Entities: w.registry.Len(),
	}
	w.statsMu.Unlock()
}

// Stats returns the snapshot published by the last Update
func (w *World) Stats() WorldStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats
}

func (w *World) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		w.handleJoin(cmd.player, cmd.mods)
	case cmdLeave:
		w.handleLeave(cmd.conn)
	case cmdPacket:
		p := w.players.Get(cmd.conn)
		if p == nil {
			log.Printf("packet from unknown connection %x dropped", cmd.conn)
			return
		}
		w.dispatch(p, cmd.msg)
	}
}

func (w *World) dispatch(p *Player, msg ClientMessage) {
	switch m := msg.(type) {
	case *EnterCellRequest:
		w.handleEnterCell(p, m)
	case *AssignCharacterRequest:
		w.handleAssignCharacter(p, m)
	case *RequestOwnershipTransfer:
		w.handleOwnershipTransfer(p, m)
	case *RequestOwnershipClaim:
		w.handleOwnershipClaim(p, m)
	case *ClientReferencesMoveRequest:
		w.handleReferencesMove(p, m)
	case *RequestFactionsChanges:
		w.handleFactionsChanges(p, m)
	case *RequestSpawnData:
		w.handleSpawnData(p, m)
	case *RequestObjectInventoryChanges:
		w.handleObjectInventoryChanges(p, m)
	case *RequestCharacterInventoryChanges:
		w.handleCharacterInventoryChanges(p, m)
	default:
		w.violation(p, "unexpected message op %d", msg.ClientOpcode())
	}
}

func (w *World) handleJoin(p *Player, mods []string) {
	if !w.players.Add(p) {
		log.Printf("connection %x joined twice", p.ID)
		return
	}
	ids := make([]uint32, 0, len(mods))
	for _, name := range mods {
		id, ok := w.modIDs[name]
		if !ok {
			id = uint32(len(w.modIDs))
			w.modIDs[name] = id
		}
		ids = append(ids, id)
	}
	p.SetMods(mods, ids)
	log.Printf("player %x (%s) entered world %s", p.ID, p.Username, w.Name)
	w.journal.Track(EvtConnect, p.ID, 0, p.Username)
}

func (w *World) handleLeave(id ConnectionID) {
	p := w.players.Remove(id)
	if p == nil {
		return
	}
	log.Printf("player %x (%s) left world %s", p.ID, p.Username, w.Name)
	w.journal.Track(EvtDisconnect, p.ID, 0, p.Username)
	w.releaseOwnedEntities(p)
}

// violation logs and journals a dropped protocol-violating request
func (w *World) violation(p *Player, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("client %x: %s", p.ID, msg)
	w.journal.Track(EvtViolation, p.ID, 0, msg)
}

// ModID returns the server id assigned to a mod name
func (w *World) ModID(name string) (uint32, bool) {
	id, ok := w.modIDs[name]
	return id, ok
}
