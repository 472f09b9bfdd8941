package main

import "testing"

func TestOwnerNeverSeesOwnEntity(t *testing.T) {
	w := newTestWorld()
	a, mbA := joinPlayer(w, 1, exteriorAt(0, 0))
	_, mbB := joinPlayer(w, 2, exteriorAt(0, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)

	if w.Visible(a, e) {
		t.Error("owner should not see its own entity")
	}
	if len(messagesOf[*CharacterSpawnRequest](mbA)) != 0 {
		t.Error("owner should not receive a spawn")
	}
	spawns := messagesOf[*CharacterSpawnRequest](mbB)
	if len(spawns) != 1 || spawns[0].ServerID != uint32(e.Handle) {
		t.Fatalf("observer should receive one spawn, got %+v", spawns)
	}
}

func TestEntityMovingInAndOutOfRange(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	_, mbB := joinPlayer(w, 2, exteriorAt(20*GridCellSize, 0))
	e := assignAt(t, w, a, npcRef(1), 0, 0)

	if len(messagesOf[*CharacterSpawnRequest](mbB)) != 0 {
		t.Fatal("far observer should not receive a spawn")
	}

	move := func(tick uint64, x float32) {
		w.handleReferencesMove(a, &ClientReferencesMoveRequest{
			Tick: tick,
			Updates: map[uint32]ReferenceUpdate{
				uint32(e.Handle): {UpdatedMovement: MovementSnapshot{
					Position:     Vec3{X: x},
					CellID:       testCell,
					WorldSpaceID: testWorldSpace,
				}},
			},
		})
	}

	move(1, 19*GridCellSize)
	if got := messagesOf[*CharacterSpawnRequest](mbB); len(got) != 1 || got[0].ServerID != uint32(e.Handle) {
		t.Fatalf("entity entering range should spawn, got %+v", got)
	}

	move(2, 18*GridCellSize)
	if len(messagesOf[*CharacterSpawnRequest](mbB)) != 1 {
		t.Error("moving within range should not spawn again")
	}

	move(3, 0)
	if got := messagesOf[*NotifyRemoveCharacter](mbB); len(got) != 1 || got[0].ServerID != uint32(e.Handle) {
		t.Errorf("entity leaving range should be removed, got %+v", got)
	}
}

func TestPlayerEnteringCellSpawnsCharacters(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	b, mbB := joinPlayer(w, 2, CellComponent{Cell: testRoom})
	e := assignAt(t, w, a, npcRef(1), 0, 0)

	w.handleEnterCell(b, &EnterCellRequest{CellID: testCell, WorldSpaceID: testWorldSpace, Position: Vec3{X: 100, Y: 100}})
	if got := messagesOf[*CharacterSpawnRequest](mbB); len(got) != 1 || got[0].ServerID != uint32(e.Handle) {
		t.Fatalf("entering range should spawn %x, got %+v", e.Handle, got)
	}

	w.handleEnterCell(b, &EnterCellRequest{CellID: testCell, WorldSpaceID: testWorldSpace, Position: Vec3{X: 200, Y: 200}})
	if len(messagesOf[*CharacterSpawnRequest](mbB)) != 1 {
		t.Error("re-entering the same grid cell should not spawn again")
	}

	w.handleEnterCell(b, &EnterCellRequest{CellID: testRoom})
	if got := messagesOf[*NotifyRemoveCharacter](mbB); len(got) != 1 {
		t.Errorf("leaving range should remove, got %+v", got)
	}
}

func TestOwnCharacterMovesLocus(t *testing.T) {
	w := newTestWorld()
	a, _ := joinPlayer(w, 1, exteriorAt(0, 0))
	e := assignAt(t, w, a, GameID{BaseID: playerBaseID}, 0, 0)

	w.handleReferencesMove(a, &ClientReferencesMoveRequest{
		Tick: 1,
		Updates: map[uint32]ReferenceUpdate{
			uint32(e.Handle): {UpdatedMovement: MovementSnapshot{
				Position:     Vec3{X: 5 * GridCellSize},
				CellID:       testCell,
				WorldSpaceID: testWorldSpace,
			}},
		},
	})
	if got := a.Cell().CenterCoords; got != (GridCellCoords{5, 0}) {
		t.Errorf("locus should follow own character, got %+v", got)
	}
}
