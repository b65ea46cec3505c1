package game

import (
	"errors"
	"fmt"
)

// Point is a board coordinate. (0,0) is bottom-left; Up is +Y.
type Point struct {
	X int32
	Y int32
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Facing is one of the four cardinal directions an agent can face.
type Facing uint8

const (
	Up Facing = iota
	Down
	Left
	Right
)

var facingNames = [...]string{"Up", "Down", "Left", "Right"}

func (f Facing) String() string {
	if int(f) < len(facingNames) {
		return facingNames[f]
	}
	return fmt.Sprintf("Facing(%d)", f)
}

// ParseFacing is the inverse of Facing.String.
func ParseFacing(s string) (Facing, error) {
	for i, name := range facingNames {
		if name == s {
			return Facing(i), nil
		}
	}
	return Up, fmt.Errorf("unknown facing %q", s)
}

// Delta returns the unit step for f.
func (f Facing) Delta() (dx, dy int32) {
	switch f {
	case Up:
		return 0, 1
	case Down:
		return 0, -1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

func (f Facing) Opposite() Facing {
	switch f {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Rotation is a 90 degree turn. Only left and right turns exist.
type Rotation uint8

const (
	RotateLeft Rotation = iota
	RotateRight
)

func (r Rotation) String() string {
	if r == RotateLeft {
		return "Left"
	}
	return "Right"
}

// ErrIllegalTurn is returned when a turn command names Up or Down.
var ErrIllegalTurn = errors.New("can only turn left or right")

// RotationFromFacing converts a facing-typed turn command into a Rotation.
func RotationFromFacing(f Facing) (Rotation, error) {
	switch f {
	case Left:
		return RotateLeft, nil
	case Right:
		return RotateRight, nil
	}
	return 0, fmt.Errorf("turn %s: %w", f, ErrIllegalTurn)
}

// Rotate returns the facing after a 90 degree turn.
// Left is counter-clockwise: Up -> Left -> Down -> Right -> Up.
func (f Facing) Rotate(r Rotation) Facing {
	if r == RotateLeft {
		switch f {
		case Up:
			return Left
		case Left:
			return Down
		case Down:
			return Right
		default:
			return Up
		}
	}
	switch f {
	case Up:
		return Right
	case Right:
		return Down
	case Down:
		return Left
	default:
		return Up
	}
}

// Step returns p moved one cell along f. The result may be off the board.
func (p Point) Step(f Facing) Point {
	dx, dy := f.Delta()
	return Point{X: p.X + dx, Y: p.Y + dy}
}
