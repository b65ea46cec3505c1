package game

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds   = errors.New("position out of bounds")
	ErrCellOccupied  = errors.New("cell already occupied")
	ErrUnknownEntity = errors.New("unknown entity")
)

// OccupantKind tags what sits in a board cell.
type OccupantKind uint8

const (
	Empty OccupantKind = iota
	PlayerOccupant
	FoodOccupant
	WallOccupant
)

var occupantNames = [...]string{"Empty", "Player", "Food", "Wall"}

func (k OccupantKind) String() string {
	if int(k) < len(occupantNames) {
		return occupantNames[k]
	}
	return fmt.Sprintf("OccupantKind(%d)", k)
}

// Occupant is the value stored in a cell. ID is a handle into the owning
// arena of State (Players, Food or Walls) and is meaningless for Empty.
type Occupant struct {
	Kind OccupantKind
	ID   int32
}

func (o Occupant) IsEmpty() bool { return o.Kind == Empty }

func (o Occupant) String() string {
	if o.Kind == Empty {
		return "Empty"
	}
	return fmt.Sprintf("%s(%d)", o.Kind, o.ID)
}

// Board maps every cell of a Width x Height grid to its occupant.
// Cells are stored row-major; every cell has an explicit entry.
type Board struct {
	Width  int32
	Height int32
	cells  []Occupant
}

func NewBoard(width, height int32) *Board {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Board{
		Width:  width,
		Height: height,
		cells:  make([]Occupant, int(width)*int(height)),
	}
}

func (b *Board) InBounds(p Point) bool {
	return p.X >= 0 && p.X < b.Width && p.Y >= 0 && p.Y < b.Height
}

func (b *Board) index(p Point) int {
	return int(p.Y)*int(b.Width) + int(p.X)
}

// OccupantAt returns the occupant at p.
func (b *Board) OccupantAt(p Point) (Occupant, error) {
	if !b.InBounds(p) {
		return Occupant{}, fmt.Errorf("occupant at %s: %w", p, ErrOutOfBounds)
	}
	return b.cells[b.index(p)], nil
}

// SetOccupant writes o at p without checking what was there.
// Callers own the one-occupant-per-cell invariant.
func (b *Board) SetOccupant(p Point, o Occupant) error {
	if !b.InBounds(p) {
		return fmt.Errorf("set occupant at %s: %w", p, ErrOutOfBounds)
	}
	b.cells[b.index(p)] = o
	return nil
}

// LookingAt returns the cell one step from p along f.
// ok is false when that cell is off the board.
func (b *Board) LookingAt(p Point, f Facing) (target Point, occ Occupant, ok bool) {
	target = p.Step(f)
	if !b.InBounds(target) {
		return Point{}, Occupant{}, false
	}
	return target, b.cells[b.index(target)], true
}

// DisengageTo walks from p away from f for at most maxSteps cells and
// returns the farthest empty cell reached before hitting an occupied cell
// or the edge. ok is false when the very first step is blocked.
func (b *Board) DisengageTo(p Point, f Facing, maxSteps int) (target Point, occ Occupant, ok bool) {
	back := f.Opposite()
	cur := p
	for i := 0; i < maxSteps; i++ {
		next, o, inside := b.LookingAt(cur, back)
		if !inside || !o.IsEmpty() {
			break
		}
		cur = next
		target, occ, ok = next, o, true
	}
	return target, occ, ok
}

// EmptyCells returns every empty cell in row-major order.
func (b *Board) EmptyCells() []Point {
	out := make([]Point, 0, len(b.cells))
	for y := int32(0); y < b.Height; y++ {
		for x := int32(0); x < b.Width; x++ {
			if b.cells[int(y)*int(b.Width)+int(x)].IsEmpty() {
				out = append(out, Point{X: x, Y: y})
			}
		}
	}
	return out
}

// Each calls fn for every cell in row-major order.
func (b *Board) Each(fn func(p Point, o Occupant)) {
	for y := int32(0); y < b.Height; y++ {
		for x := int32(0); x < b.Width; x++ {
			fn(Point{X: x, Y: y}, b.cells[int(y)*int(b.Width)+int(x)])
		}
	}
}

func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := &Board{Width: b.Width, Height: b.Height, cells: make([]Occupant, len(b.cells))}
	copy(out.cells, b.cells)
	return out
}
