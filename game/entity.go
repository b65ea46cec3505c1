package game

import (
	"fmt"
	"math"
)

type (
	PlayerID = int32
	FoodID   = int32
	WallID   = int32
)

// Status is a player's life state. Dead is terminal.
type Status uint8

const (
	Alive Status = iota
	Dead
)

func (s Status) String() string {
	if s == Alive {
		return "Alive"
	}
	return "Dead"
}

// Vitals holds a player's energy and status.
type Vitals struct {
	Energy uint32
	Status Status
}

// MaxEnergy bounds every energy value so archives can hold it in an int32
// column.
const MaxEnergy uint32 = math.MaxInt32

// ClampEnergy saturates e at MaxEnergy.
func ClampEnergy(e uint64) uint32 {
	if e > uint64(MaxEnergy) {
		return MaxEnergy
	}
	return uint32(e)
}

// Gain adds e to the energy, saturating at MaxEnergy. Energy never drops.
func (v *Vitals) Gain(e uint32) {
	sum := uint64(v.Energy) + uint64(e)
	if sum > uint64(MaxEnergy) {
		sum = max(uint64(MaxEnergy), uint64(v.Energy))
	}
	v.Energy = uint32(sum)
}

// LOSMode selects the shape of a line-of-sight scan.
type LOSMode uint8

const (
	LOSStraight LOSMode = iota
)

// LineOfSight is a per-player scan depth and shape.
type LineOfSight struct {
	Length int32
	Mode   LOSMode
}

// Action is both an agent's intent for a tick and the action it is
// recorded as having taken (Idle when the attempt failed).
type Action uint8

const (
	Idle Action = iota
	MoveForward
	MoveBackward
	TurnLeft
	TurnRight
	Eat
	Kill
	BuildWall
	ScanLOS

	NumActions = int(ScanLOS) + 1
)

var actionNames = [...]string{
	"Idle", "MoveForward", "MoveBackward", "TurnLeft", "TurnRight",
	"Eat", "Kill", "BuildWall", "ScanLOS",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", a)
}

func (a Action) Valid() bool { return int(a) < NumActions }

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown action %q", s)
}

// AllActions lists every action in declaration order.
func AllActions() []Action {
	out := make([]Action, NumActions)
	for i := range out {
		out[i] = Action(i)
	}
	return out
}

type Player struct {
	ID         PlayerID
	Pos        Point
	Facing     Facing
	Vitals     Vitals
	LOS        LineOfSight
	LastAction Action
	// OnBoard is false once the player has been killed and its cell reused.
	// Starved players stay on the board as inert bodies.
	OnBoard bool
}

func (p *Player) Alive() bool { return p.Vitals.Status == Alive }

// FoodKind distinguishes spawned food from corpses left by kills.
type FoodKind uint8

const (
	Plant FoodKind = iota
	DeadMeat
)

func (k FoodKind) String() string {
	if k == DeadMeat {
		return "DeadMeat"
	}
	return "Plant"
}

func ParseFoodKind(s string) (FoodKind, error) {
	switch s {
	case "Plant":
		return Plant, nil
	case "DeadMeat":
		return DeadMeat, nil
	}
	return Plant, fmt.Errorf("unknown food kind %q", s)
}

type Food struct {
	ID     FoodID
	Pos    Point
	Energy uint32
	Kind   FoodKind
}

type Wall struct {
	ID  WallID
	Pos Point
}
