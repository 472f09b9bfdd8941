package main

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Opcode identifies a payload inside an Envelope
type Opcode uint8

// Client -> Server opcodes
const (
	OpHello Opcode = iota + 1
	OpEnterCell
	OpAssignCharacter
	OpOwnershipTransfer
	OpOwnershipClaim
	OpReferencesMove
	OpFactionsChanges
	OpSpawnData
	OpObjectInventoryChanges
	OpCharacterInventoryChanges
)

// Server -> Client opcodes
const (
	OpHelloOK Opcode = iota + 64
	OpError
	OpAssignCharacterResponse
	OpCharacterSpawn
	OpRemoveCharacter
	OpOwnershipTransferred
	OpReferencesMoveUpdate
	OpFactionsUpdate
	OpSpawnDataUpdate
	OpObjectInventoryUpdate
	OpCharacterInventoryUpdate
)

const (
	maxChangeCount = 0xFF       // change list counts are one byte on the wire
	idMask         = 0xFFFFFFFF // ids are 32 bits on the wire
)

// Envelope wraps every message on the wire
type Envelope struct {
	Op   Opcode             `msgpack:"o"`
	Data msgpack.RawMessage `msgpack:"d,omitempty"`
}

// ClientMessage is a decoded inbound request
type ClientMessage interface {
	ClientOpcode() Opcode
}

// ServerMessage is an outbound notification
type ServerMessage interface {
	ServerOpcode() Opcode
}

// --- Client -> Server ---

// HelloRequest is the first message on a connection
type HelloRequest struct {
	Username string   `msgpack:"u"`
	Password string   `msgpack:"p,omitempty"`
	Token    string   `msgpack:"t,omitempty"`
	World    string   `msgpack:"w,omitempty"`
	Mods     []string `msgpack:"m,omitempty"`
}

// EnterCellRequest moves the sender's locus
type EnterCellRequest struct {
	CellID       GameID `msgpack:"c"`
	WorldSpaceID GameID `msgpack:"w"`
	Position     Vec3   `msgpack:"p"`
}

// AssignCharacterRequest asks for ownership of a character
type AssignCharacterRequest struct {
	Cookie           uint32      `msgpack:"k"`
	ReferenceID      GameID      `msgpack:"r"`
	FormID           GameID      `msgpack:"f"`
	CellID           GameID      `msgpack:"c"`
	WorldSpaceID     GameID      `msgpack:"w"`
	Position         Vec3        `msgpack:"p"`
	Rotation         Vec2        `msgpack:"rot"`
	ChangeFlags      uint32      `msgpack:"cf"`
	AppearanceBuffer []byte      `msgpack:"ab,omitempty"`
	FaceTints        []byte      `msgpack:"ft,omitempty"`
	FactionsContent  Factions    `msgpack:"fa"`
	InventoryContent Inventory   `msgpack:"inv"`
	AllActorValues   ActorValues `msgpack:"av"`
	IsDead           bool        `msgpack:"d"`
	LatestAction     ActionEvent `msgpack:"la"`
}

// RequestOwnershipTransfer gives up ownership of an entity
type RequestOwnershipTransfer struct {
	ServerID uint32 `msgpack:"s"`
}

// RequestOwnershipClaim confirms ownership of an entity
type RequestOwnershipClaim struct {
	ServerID uint32 `msgpack:"s"`
}

// MovementSnapshot is the movement part of a reference update
type MovementSnapshot struct {
	Position     Vec3               `msgpack:"p"`
	Rotation     Vec2               `msgpack:"r"`
	Direction    float32            `msgpack:"d"`
	Variables    AnimationVariables `msgpack:"v"`
	CellID       GameID             `msgpack:"c"`
	WorldSpaceID GameID             `msgpack:"w"`
}

// ReferenceUpdate is one entity's movement and actions
type ReferenceUpdate struct {
	UpdatedMovement MovementSnapshot `msgpack:"m"`
	ActionEvents    []ActionEvent    `msgpack:"a,omitempty"`
}

// ClientReferencesMoveRequest carries movement of entities owned by the sender
type ClientReferencesMoveRequest struct {
	Tick    uint64                     `msgpack:"t"`
	Updates map[uint32]ReferenceUpdate `msgpack:"u"`
}

// RequestFactionsChanges carries faction content of owned characters
type RequestFactionsChanges struct {
	Changes map[uint32]Factions `msgpack:"c"`
}

// RequestSpawnData asks for the initial data of a character
type RequestSpawnData struct {
	ID uint32 `msgpack:"i"`
}

// ObjectData is the replicated state of a world object
type ObjectData struct {
	ID               GameID         `msgpack:"i"`
	CellID           GameID         `msgpack:"c"`
	WorldSpaceID     GameID         `msgpack:"w"`
	CurrentCoords    GridCellCoords `msgpack:"g"`
	CurrentLockData  LockData       `msgpack:"l"`
	CurrentInventory Inventory      `msgpack:"inv"`
}

// RequestObjectInventoryChanges carries inventory changes of world objects
type RequestObjectInventoryChanges struct {
	Changes []ObjectData
}

// RequestCharacterInventoryChanges carries inventory changes of characters
type RequestCharacterInventoryChanges struct {
	Changes map[uint32]Inventory
}

type characterInventoryChange struct {
	ID        uint64    `msgpack:"i"`
	Inventory Inventory `msgpack:"inv"`
}

func (HelloRequest) ClientOpcode() Opcode                     { return OpHello }
func (EnterCellRequest) ClientOpcode() Opcode                 { return OpEnterCell }
func (AssignCharacterRequest) ClientOpcode() Opcode           { return OpAssignCharacter }
func (RequestOwnershipTransfer) ClientOpcode() Opcode         { return OpOwnershipTransfer }
func (RequestOwnershipClaim) ClientOpcode() Opcode            { return OpOwnershipClaim }
func (ClientReferencesMoveRequest) ClientOpcode() Opcode      { return OpReferencesMove }
func (RequestFactionsChanges) ClientOpcode() Opcode           { return OpFactionsChanges }
func (RequestSpawnData) ClientOpcode() Opcode                 { return OpSpawnData }
func (RequestObjectInventoryChanges) ClientOpcode() Opcode    { return OpObjectInventoryChanges }
func (RequestCharacterInventoryChanges) ClientOpcode() Opcode { return OpCharacterInventoryChanges }

// EncodeMsgpack writes the changes as an array
func (r RequestObjectInventoryChanges) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(r.Changes)); err != nil {
		return err
	}
	for i := range r.Changes {
		if err := enc.Encode(&r.Changes[i]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads every entry but keeps only the first count&0xFF
func (r *RequestObjectInventoryChanges) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n < 0 {
		n = 0
	}
	keep := n & maxChangeCount
	r.Changes = make([]ObjectData, 0, keep)
	for i := 0; i < n; i++ {
		var d ObjectData
		if err := dec.Decode(&d); err != nil {
			return err
		}
		if i < keep {
			r.Changes = append(r.Changes, d)
		}
	}
	return nil
}

// EncodeMsgpack writes the changes as an array sorted by id
func (r RequestCharacterInventoryChanges) EncodeMsgpack(enc *msgpack.Encoder) error {
	ids := sortedIDs(r.Changes)
	if err := enc.EncodeArrayLen(len(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		if err := enc.Encode(&characterInventoryChange{ID: uint64(id), Inventory: r.Changes[id]}); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads every entry but keeps only the first count&0xFF, ids masked to 32 bits
func (r *RequestCharacterInventoryChanges) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n < 0 {
		n = 0
	}
	keep := n & maxChangeCount
	r.Changes = make(map[uint32]Inventory, keep)
	for i := 0; i < n; i++ {
		var c characterInventoryChange
		if err := dec.Decode(&c); err != nil {
			return err
		}
		if i < keep {
			r.Changes[uint32(c.ID&idMask)] = c.Inventory
		}
	}
	return nil
}

// --- Server -> Client ---

// HelloResponse accepts a connection into a world
type HelloResponse struct {
	PlayerID   uint32 `msgpack:"p"`
	Token      string `msgpack:"t,omitempty"`
	World      string `msgpack:"w"`
	ServerTick uint64 `msgpack:"k"`
}

// ErrorMsg reports a rejected handshake
type ErrorMsg struct {
	Msg string `msgpack:"m"`
}

// AssignCharacterResponse answers an AssignCharacterRequest
type AssignCharacterResponse struct {
	Cookie         uint32      `msgpack:"k"`
	ServerID       uint32      `msgpack:"s"`
	Owner          bool        `msgpack:"o"`
	AllActorValues ActorValues `msgpack:"av"`
	IsDead         bool        `msgpack:"d"`
	Position       Vec3        `msgpack:"p"`
	CellID         GameID      `msgpack:"c"`
}

// CharacterSpawnRequest tells an observer to spawn a remote character
type CharacterSpawnRequest struct {
	ServerID           uint32      `msgpack:"s"`
	FormID             GameID      `msgpack:"f"`
	BaseID             GameID      `msgpack:"b"`
	CellID             GameID      `msgpack:"c"`
	WorldSpaceID       GameID      `msgpack:"w"`
	Position           Vec3        `msgpack:"p"`
	Rotation           Vec2        `msgpack:"r"`
	ChangeFlags        uint32      `msgpack:"cf"`
	AppearanceBuffer   []byte      `msgpack:"ab,omitempty"`
	FaceTints          []byte      `msgpack:"ft,omitempty"`
	FactionsContent    Factions    `msgpack:"fa"`
	InventoryContent   Inventory   `msgpack:"inv"`
	InitialActorValues ActorValues `msgpack:"av"`
	IsDead             bool        `msgpack:"d"`
	LatestAction       ActionEvent `msgpack:"la"`
}

// NotifyRemoveCharacter tells an observer to drop a remote entity
type NotifyRemoveCharacter struct {
	ServerID uint32 `msgpack:"s"`
}

// NotifyOwnershipTransfer tells a client it now owns an entity
type NotifyOwnershipTransfer struct {
	ServerID uint32 `msgpack:"s"`
}

// ServerReferencesMoveRequest is the batched movement update for one client
type ServerReferencesMoveRequest struct {
	Tick    uint64                     `msgpack:"t"`
	Updates map[uint32]ReferenceUpdate `msgpack:"u"`
}

// NotifyFactionsChanges is the batched faction update for one client
type NotifyFactionsChanges struct {
	Changes map[uint32]Factions `msgpack:"c"`
}

// NotifySpawnData answers a RequestSpawnData
type NotifySpawnData struct {
	ID                 uint32      `msgpack:"i"`
	InitialActorValues ActorValues `msgpack:"av"`
	InitialInventory   Inventory   `msgpack:"inv"`
	IsDead             bool        `msgpack:"d"`
}

// NotifyObjectInventoryChanges is the batched object inventory update for one client
type NotifyObjectInventoryChanges struct {
	Changes []ObjectData `msgpack:"c"`
}

// NotifyCharacterInventoryChanges is the batched character inventory update for one client
type NotifyCharacterInventoryChanges struct {
	Changes map[uint32]Inventory `msgpack:"c"`
}

func (HelloResponse) ServerOpcode() Opcode                   { return OpHelloOK }
func (ErrorMsg) ServerOpcode() Opcode                        { return OpError }
func (AssignCharacterResponse) ServerOpcode() Opcode         { return OpAssignCharacterResponse }
func (CharacterSpawnRequest) ServerOpcode() Opcode           { return OpCharacterSpawn }
func (NotifyRemoveCharacter) ServerOpcode() Opcode           { return OpRemoveCharacter }
func (NotifyOwnershipTransfer) ServerOpcode() Opcode         { return OpOwnershipTransferred }
func (ServerReferencesMoveRequest) ServerOpcode() Opcode     { return OpReferencesMoveUpdate }
func (NotifyFactionsChanges) ServerOpcode() Opcode           { return OpFactionsUpdate }
func (NotifySpawnData) ServerOpcode() Opcode                 { return OpSpawnDataUpdate }
func (NotifyObjectInventoryChanges) ServerOpcode() Opcode    { return OpObjectInventoryUpdate }
func (NotifyCharacterInventoryChanges) ServerOpcode() Opcode { return OpCharacterInventoryUpdate }

// --- Codec ---

// EncodeServerMessage wraps msg in an Envelope
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	return encodeEnvelope(msg.ServerOpcode(), msg)
}

// EncodeClientMessage wraps msg in an Envelope (used by bots and tests)
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	return encodeEnvelope(msg.ClientOpcode(), msg)
}

func encodeEnvelope(op Opcode, payload any) ([]byte, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode op %d: %w", op, err)
	}
	return msgpack.Marshal(&Envelope{Op: op, Data: data})
}

// DecodeClientMessage unwraps an inbound Envelope into its typed request
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var msg ClientMessage
	switch env.Op {
	case OpHello:
		msg = &HelloRequest{}
	case OpEnterCell:
		msg = &EnterCellRequest{}
	case OpAssignCharacter:
		msg = &AssignCharacterRequest{}
	case OpOwnershipTransfer:
		msg = &RequestOwnershipTransfer{}
	case OpOwnershipClaim:
		msg = &RequestOwnershipClaim{}
	case OpReferencesMove:
		msg = &ClientReferencesMoveRequest{}
	case OpFactionsChanges:
		msg = &RequestFactionsChanges{}
	case OpSpawnData:
		msg = &RequestSpawnData{}
	case OpObjectInventoryChanges:
		msg = &RequestObjectInventoryChanges{}
	case OpCharacterInventoryChanges:
		msg = &RequestCharacterInventoryChanges{}
	default:
		return nil, fmt.Errorf("unknown opcode %d", env.Op)
	}
	if len(env.Data) > 0 {
		if err := msgpack.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("decode op %d: %w", env.Op, err)
		}
	}
	return msg, nil
}

// DecodeServerMessage unwraps an outbound Envelope (used by bots and tests)
func DecodeServerMessage(raw []byte) (ServerMessage, error) {
	var env Envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var msg ServerMessage
	switch env.Op {
	case OpHelloOK:
		msg = &HelloResponse{}
	case OpError:
		msg = &ErrorMsg{}
	case OpAssignCharacterResponse:
		msg = &AssignCharacterResponse{}
	case OpCharacterSpawn:
		msg = &CharacterSpawnRequest{}
	case OpRemoveCharacter:
		msg = &NotifyRemoveCharacter{}
	case OpOwnershipTransferred:
		msg = &NotifyOwnershipTransfer{}
	case OpReferencesMoveUpdate:
		msg = &ServerReferencesMoveRequest{}
	case OpFactionsUpdate:
		msg = &NotifyFactionsChanges{}
	case OpSpawnDataUpdate:
		msg = &NotifySpawnData{}
	case OpObjectInventoryUpdate:
		msg = &NotifyObjectInventoryChanges{}
	case OpCharacterInventoryUpdate:
		msg = &NotifyCharacterInventoryChanges{}
	default:
		return nil, fmt.Errorf("unknown opcode %d", env.Op)
	}
	if len(env.Data) > 0 {
		if err := msgpack.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("decode op %d: %w", env.Op, err)
		}
	}
	return msg, nil
}
