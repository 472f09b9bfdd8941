package main

import "testing"

func TestOwnershipRecord(t *testing.T) {
	o := NewOwnership(1)
	if !o.IsOwner(1) || o.IsOwner(2) {
		t.Fatal("new record should be owned by 1")
	}

	o.Reject(1)
	o.Reject(1)
	o.Reject(3)
	if got := o.InvalidOwners(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("expected [1 3], got %v", got)
	}

	got := o.InvalidOwners()
	got[0] = 99
	if !o.IsInvalid(1) {
		t.Error("InvalidOwners should return a copy")
	}

	if o.Claim(2) {
		t.Error("non-owner claim should fail")
	}
	if !o.IsInvalid(3) {
		t.Error("failed claim should not clear the list")
	}

	o.SetOwner(2)
	if !o.Claim(2) {
		t.Error("owner claim should succeed")
	}
	if len(o.InvalidOwners()) != 0 {
		t.Error("claim should clear the list")
	}
}

func TestTransferToEligiblePlayer(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, exteriorAt(0, 0))
	b, mbB := joinPlayer(w, 2, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 10, 10)
	mbA.reset()
	mbB.reset()

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()

	if !e.Owner.IsOwner(b.ID) {
		t.Fatalf("expected B to own, got %x", e.Owner.Owner())
	}
	if inv := e.Owner.InvalidOwners(); len(inv) != 1 || inv[0] != a.ID {
		t.Errorf("expected invalid owners [A], got %v", inv)
	}
	if got := messagesOf[*NotifyOwnershipTransfer](mbB); len(got) != 1 || got[0].ServerID != uint32(e.Handle) {
		t.Errorf("B should be told it owns %x, got %+v", e.Handle, got)
	}
	if got := messagesOf[*NotifyRemoveCharacter](mbA); len(got) != 1 || got[0].ServerID != uint32(e.Handle) {
		t.Errorf("A should be told to drop %x, got %+v", e.Handle, got)
	}
	if len(messagesOf[*NotifyOwnershipTransfer](mbA)) != 0 {
		t.Error("A should not be told it owns anything")
	}
}

func TestTransferPicksFirstRegisteredPlayer(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 5, exteriorAt(0, 0))
	b, _ := joinPlayer(w, 9, exteriorAt(0, 0))
	c, _ := joinPlayer(w, 3, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()
	if !e.Owner.IsOwner(b.ID) {
		t.Fatalf("expected first registered eligible player %x, got %x", b.ID, e.Owner.Owner())
	}

	w.handleOwnershipTransfer(b, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()
	if !e.Owner.IsOwner(c.ID) {
		t.Fatalf("expected %x after A and B declined, got %x", c.ID, e.Owner.Owner())
	}
}

func TestTransferSkipsPlayersOutOfRange(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	joinPlayer(w, 2, exteriorAt(3*GridCellSize, 0))
	c, _ := joinPlayer(w, 3, exteriorAt(2*GridCellSize, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()
	if !e.Owner.IsOwner(c.ID) {
		t.Fatalf("expected in-range player %x, got %x", c.ID, e.Owner.Owner())
	}
}

func TestTransferWithoutCandidateDestroys(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, exteriorAt(0, 0))
	_, mbB := joinPlayer(w, 2, exteriorAt(10*GridCellSize, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)
	h := e.Handle
	mbA.reset()

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: uint32(h)})
	w.processTransfers()

	if w.registry.Get(h) != nil {
		t.Fatal("entity should be destroyed")
	}
	if mbA.count() != 0 {
		t.Errorf("prior owner should get nothing, got %d messages", mbA.count())
	}
	if got := messagesOf[*NotifyRemoveCharacter](mbB); len(got) != 1 || got[0].ServerID != uint32(h) {
		t.Errorf("other players should be told to drop %x, got %+v", h, got)
	}
}

func TestTransferChainUntilEveryoneDeclined(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, exteriorAt(0, 0))
	b, mbB := joinPlayer(w, 2, exteriorAt(0, 0))
	c, mbC := joinPlayer(w, 3, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)
	h := e.Handle

	for _, p := range []*Player{a, b, c} {
		w.handleOwnershipTransfer(p, &RequestOwnershipTransfer{ServerID: uint32(h)})
		w.processTransfers()
	}

	if w.registry.Get(h) != nil {
		t.Fatal("entity should be destroyed once every player declined")
	}
	last := func(mb *mockBroadcaster) *NotifyRemoveCharacter {
		got := messagesOf[*NotifyRemoveCharacter](mb)
		if len(got) == 0 {
			return nil
		}
		return got[len(got)-1]
	}
	// A and B were each removed once on hand-off, then again on destroy
	if n := len(messagesOf[*NotifyRemoveCharacter](mbA)); n != 2 {
		t.Errorf("A: expected 2 removals, got %d", n)
	}
	if n := len(messagesOf[*NotifyRemoveCharacter](mbB)); n != 2 {
		t.Errorf("B: expected 2 removals, got %d", n)
	}
	if last(mbC) != nil {
		t.Error("C was the last owner and should not be notified of the destroy")
	}
}

func TestClaimRestoresEligibility(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, exteriorAt(0, 0))
	b, _ := joinPlayer(w, 2, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()
	w.handleOwnershipClaim(b, &RequestOwnershipClaim{ServerID: uint32(e.Handle)})

	if len(e.Owner.InvalidOwners()) != 0 {
		t.Fatalf("claim should clear invalid owners, got %v", e.Owner.InvalidOwners())
	}

	w.handleOwnershipTransfer(b, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()
	if !e.Owner.IsOwner(a.ID) {
		t.Fatalf("A should be eligible again, owner is %x", e.Owner.Owner())
	}
	if len(messagesOf[*NotifyOwnershipTransfer](mbA)) != 1 {
		t.Error("A should be notified of ownership")
	}
}

func TestTransferRequiresOwnership(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	b, mbB := joinPlayer(w, 2, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)
	mbB.reset()

	w.handleOwnershipTransfer(b, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.handleOwnershipClaim(b, &RequestOwnershipClaim{ServerID: uint32(e.Handle)})
	w.processTransfers()

	if !e.Owner.IsOwner(a.ID) || len(e.Owner.InvalidOwners()) != 0 {
		t.Errorf("requests from a non-owner must not change anything: owner %x invalid %v",
			e.Owner.Owner(), e.Owner.InvalidOwners())
	}
	if mbB.count() != 0 {
		t.Errorf("violations get no reply, got %d messages", mbB.count())
	}
}

func TestTransferUnknownEntity(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, exteriorAt(0, 0))

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: 1234})
	w.handleOwnershipClaim(a, &RequestOwnershipClaim{ServerID: 1234})
	w.processTransfers()

	if mbA.count() != 0 || w.registry.Len() != 0 {
		t.Error("unknown entity requests should be dropped")
	}
}

func TestAtMostOneOwnerAfterWork(t *testing.T) {
	w := newTestWorld()
	players := make([]*Player, 0, 4)
	for i := ConnectionID(1); i <= 4; i++ {
		p, _ := joinPlayer(w, i, exteriorAt(0, 0))
		players = append(players, p)
	}
	var handles []Handle
	for i, p := range players {
		handles = append(handles, assignAt(t, w, p, npcRef(uint32(i+1)), 0, 0).Handle)
	}

	for round := 0; round < 3; round++ {
		for _, h := range handles {
			e := w.registry.Get(h)
			if e == nil {
				continue
			}
			owner := w.players.Get(e.Owner.Owner())
			w.handleOwnershipTransfer(owner, &RequestOwnershipTransfer{ServerID: uint32(h)})
			w.processTransfers()
		}
	}

	for _, e := range w.registry.View(nil) {
		if e.Owner == nil || w.players.Get(e.Owner.Owner()) == nil {
			t.Errorf("entity %x has no connected owner", e.Handle)
		}
		if e.Owner.IsInvalid(e.Owner.Owner()) {
			t.Errorf("owner of %x is on its own invalid list", e.Handle)
		}
	}
}

func TestDisconnectReleasesOwnedEntities(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	b, mbB := joinPlayer(w, 2, exteriorAt(0, 0))
	own := assignAt(t, w, a, GameID{BaseID: playerBaseID}, 0, 0)
	npc := assignAt(t, w, a, npcRef(1), 10, 10)
	ownHandle := own.Handle
	mbB.reset()

	w.handleLeave(a.ID)

	if w.registry.Get(ownHandle) != nil {
		t.Error("the leaving player's own character should be destroyed")
	}
	if got := messagesOf[*NotifyRemoveCharacter](mbB); len(got) != 1 || got[0].ServerID != uint32(ownHandle) {
		t.Errorf("B should be told to drop A's character, got %+v", got)
	}
	if !npc.Owner.IsOwner(b.ID) {
		t.Errorf("npc should pass to B, owner is %x", npc.Owner.Owner())
	}
	if _, ok := a.Character(); ok {
		t.Error("departed player should have no character")
	}
}

func TestTransferInteriorCell(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, CellComponent{Cell: testRoom})
	b, mbB := joinPlayer(w, 2, CellComponent{Cell: testRoom})
	w.handleAssignCharacter(a, &AssignCharacterRequest{ReferenceID: npcRef(1), CellID: testRoom})
	e := w.registry.Find(hasCharacter)
	if e == nil {
		t.Fatal("npc should exist")
	}
	mbA.reset()
	mbB.reset()

	w.handleOwnershipTransfer(a, &RequestOwnershipTransfer{ServerID: uint32(e.Handle)})
	w.processTransfers()

	if !e.Owner.IsOwner(b.ID) {
		t.Fatalf("B shares the cell and should own, got %x", e.Owner.Owner())
	}
	if len(messagesOf[*NotifyRemoveCharacter](mbA)) != 1 {
		t.Error("A should be told to drop the entity")
	}
	if len(messagesOf[*CharacterSpawnRequest](mbB)) != 0 || mbB.count() != 1 {
		t.Errorf("B should only get the ownership notice, got %d messages", mbB.count())
	}
}

func TestSelectOwnerIsDeterministic(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	joinPlayer(w, 2, exteriorAt(0, 0))
	joinPlayer(w, 3, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)
	e.Owner.Reject(a.ID)

	first := w.selectOwner(e)
	second := w.selectOwner(e)
	if first == nil || first != second {
		t.Errorf("resolution should be repeatable, got %v then %v", first, second)
	}
}
