package main

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestClientMessageRoundTrip(t *testing.T) {
	in := &ClientReferencesMoveRequest{
		Tick: 77,
		Updates: map[uint32]ReferenceUpdate{
			3: {
				UpdatedMovement: MovementSnapshot{Position: Vec3{X: 1, Y: 2, Z: 3}, CellID: testCell, WorldSpaceID: testWorldSpace},
				ActionEvents:    []ActionEvent{{ActionID: 9, EventName: "moveStart"}},
			},
		},
	}
	raw, err := EncodeClientMessage(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, ok := msg.(*ClientReferencesMoveRequest)
	if !ok {
		t.Fatalf("expected *ClientReferencesMoveRequest, got %T", msg)
	}
	u := out.Updates[3]
	if out.Tick != 77 || u.UpdatedMovement.Position.Z != 3 || u.ActionEvents[0].EventName != "moveStart" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	raw, err := EncodeServerMessage(&NotifyOwnershipTransfer{ServerID: 12})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeServerMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n, ok := msg.(*NotifyOwnershipTransfer); !ok || n.ServerID != 12 {
		t.Errorf("unexpected %#v", msg)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	raw, _ := msgpack.Marshal(&Envelope{Op: 200})
	if _, err := DecodeClientMessage(raw); err == nil {
		t.Error("expected error for unknown opcode")
	}
	if _, err := DecodeClientMessage([]byte{0xc1}); err == nil {
		t.Error("expected error for garbage")
	}
}

func TestObjectInventoryCountMasked(t *testing.T) {
	changes := make([]ObjectData, 300)
	for i := range changes {
		changes[i] = ObjectData{ID: GameID{BaseID: uint32(i + 1)}}
	}
	raw, err := EncodeClientMessage(&RequestObjectInventoryChanges{Changes: changes})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := msg.(*RequestObjectInventoryChanges).Changes
	if len(got) != 300&0xFF {
		t.Fatalf("expected %d entries, got %d", 300&0xFF, len(got))
	}
	if got[43].ID.BaseID != 44 {
		t.Errorf("expected the first entries to be kept, got %+v", got[43].ID)
	}
}

func TestCharacterInventoryIDsMasked(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.EncodeArrayLen(2)
	enc.Encode(&characterInventoryChange{ID: 0x1_0000_0005, Inventory: Inventory{Buffer: []byte("a")}})
	enc.Encode(&characterInventoryChange{ID: 6, Inventory: Inventory{Buffer: []byte("b")}})

	raw, _ := msgpack.Marshal(&Envelope{Op: OpCharacterInventoryChanges, Data: buf.Bytes()})
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := msg.(*RequestCharacterInventoryChanges).Changes
	if len(got) != 2 || string(got[5].Buffer) != "a" || string(got[6].Buffer) != "b" {
		t.Errorf("expected ids masked to 32 bits, got %+v", got)
	}
}
