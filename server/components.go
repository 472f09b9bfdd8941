package main

// Vec3 is a world-space vector
type Vec3 struct {
	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
	Z float32 `msgpack:"z"`
}

// Vec2 is the compact 2-component rotation sent on the wire
type Vec2 struct {
	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
}

// AnimationVariables are free-form animation graph variables
type AnimationVariables struct {
	Booleans uint64    `msgpack:"b"`
	Integers []uint32  `msgpack:"i,omitempty"`
	Floats   []float32 `msgpack:"f,omitempty"`
}

// ActionEvent is one animation action reported by the owner
type ActionEvent struct {
	Tick        uint64 `msgpack:"t"`
	ActionID    uint32 `msgpack:"a"`
	TargetID    uint32 `msgpack:"tg"`
	IdleID      uint32 `msgpack:"id"`
	State1      uint32 `msgpack:"s1"`
	State2      uint32 `msgpack:"s2"`
	Type        uint32 `msgpack:"ty"`
	EventName   string `msgpack:"e,omitempty"`
	TargetEvent string `msgpack:"te,omitempty"`
}

// Movement holds the latest movement state of an entity.
// Sent is false until the state has been folded into an outgoing batch.
type Movement struct {
	Tick      uint64
	Position  Vec3
	Rotation  Vec3
	Direction float32
	Variables AnimationVariables
	Sent      bool
}

// Animation tracks actions accumulated since the last movement flush
type Animation struct {
	CurrentAction        ActionEvent
	Actions              []ActionEvent
	LastSerializedAction ActionEvent
}

// Factions is an opaque faction content blob
type Factions struct {
	Buffer []byte `msgpack:"b"`
}

// Character is the appearance and faction state of a character entity
type Character struct {
	ChangeFlags   uint32
	SaveBuffer    []byte
	BaseID        GameID
	FaceTints     []byte
	Factions      Factions
	FactionsDirty bool
	IsDead        bool
}

// Inventory is an opaque inventory content blob
type Inventory struct {
	Buffer []byte `msgpack:"b"`
}

// ActorValues maps actor value ids to their current values
type ActorValues struct {
	Values    map[uint32]float32 `msgpack:"v,omitempty"`
	MaxValues map[uint32]float32 `msgpack:"m,omitempty"`
}

// LockData is the lock state of a world object
type LockData struct {
	IsLocked  bool  `msgpack:"l"`
	LockLevel uint8 `msgpack:"lv"`
}

// Object marks an entity as a persistent world object (container, door)
type Object struct {
	Lock LockData
}

func cloneActions(a []ActionEvent) []ActionEvent {
	if len(a) == 0 {
		return nil
	}
	out := make([]ActionEvent, len(a))
	copy(out, a)
	return out
}
