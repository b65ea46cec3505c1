// Package game defines the core state types for the survival simulation.
//
// State bundles the board, the entity arenas and the turn counter. Entities
// are referenced from the board by integer handles, never by pointer, so the
// whole state can be cloned cheaply for snapshots and archives.
package game

import (
	"fmt"
	"sort"
)

// State is the complete simulation state for one generation.
type State struct {
	Board   *Board
	Players []Player // indexed by PlayerID
	Food    map[FoodID]Food
	Walls   []Wall // indexed by WallID
	Turn    int32

	nextFoodID FoodID
}

func NewState(width, height int32) *State {
	return &State{
		Board: NewBoard(width, height),
		Food:  make(map[FoodID]Food),
	}
}

// Player returns a pointer to the player with id, or nil.
func (s *State) Player(id PlayerID) *Player {
	if id < 0 || int(id) >= len(s.Players) {
		return nil
	}
	return &s.Players[id]
}

// AddPlayer places a new player on an empty cell.
func (s *State) AddPlayer(pos Point, facing Facing, energy uint32, los LineOfSight) (PlayerID, error) {
	occ, err := s.Board.OccupantAt(pos)
	if err != nil {
		return -1, err
	}
	if !occ.IsEmpty() {
		return -1, fmt.Errorf("add player at %s (holds %s): %w", pos, occ, ErrCellOccupied)
	}
	id := PlayerID(len(s.Players))
	s.Players = append(s.Players, Player{
		ID:      id,
		Pos:     pos,
		Facing:  facing,
		Vitals:  Vitals{Energy: ClampEnergy(uint64(energy)), Status: Alive},
		LOS:     los,
		OnBoard: true,
	})
	_ = s.Board.SetOccupant(pos, Occupant{Kind: PlayerOccupant, ID: id})
	return id, nil
}

// PlaceFood creates a food entity on an empty cell.
func (s *State) PlaceFood(pos Point, energy uint32, kind FoodKind) (FoodID, error) {
	occ, err := s.Board.OccupantAt(pos)
	if err != nil {
		return -1, err
	}
	if !occ.IsEmpty() {
		return -1, fmt.Errorf("place %s at %s (holds %s): %w", kind, pos, occ, ErrCellOccupied)
	}
	id := s.nextFoodID
	s.nextFoodID++
	s.Food[id] = Food{ID: id, Pos: pos, Energy: ClampEnergy(uint64(energy)), Kind: kind}
	_ = s.Board.SetOccupant(pos, Occupant{Kind: FoodOccupant, ID: id})
	return id, nil
}

// RemoveFood destroys a food entity and empties its cell.
func (s *State) RemoveFood(id FoodID) (Food, error) {
	f, ok := s.Food[id]
	if !ok {
		return Food{}, fmt.Errorf("remove food %d: %w", id, ErrUnknownEntity)
	}
	delete(s.Food, id)
	if err := s.Board.SetOccupant(f.Pos, Occupant{}); err != nil {
		return f, err
	}
	return f, nil
}

// BuildWall creates a permanent wall on an empty cell.
func (s *State) BuildWall(pos Point) (WallID, error) {
	occ, err := s.Board.OccupantAt(pos)
	if err != nil {
		return -1, err
	}
	if !occ.IsEmpty() {
		return -1, fmt.Errorf("build wall at %s (holds %s): %w", pos, occ, ErrCellOccupied)
	}
	id := WallID(len(s.Walls))
	s.Walls = append(s.Walls, Wall{ID: id, Pos: pos})
	_ = s.Board.SetOccupant(pos, Occupant{Kind: WallOccupant, ID: id})
	return id, nil
}

// AliveCount returns the number of players whose status is Alive.
func (s *State) AliveCount() int {
	n := 0
	for i := range s.Players {
		if s.Players[i].Alive() {
			n++
		}
	}
	return n
}

// FoodIDs returns food handles in ascending order.
func (s *State) FoodIDs() []FoodID {
	ids := make([]FoodID, 0, len(s.Food))
	for id := range s.Food {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone performs a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Board:      s.Board.Clone(),
		Turn:       s.Turn,
		nextFoodID: s.nextFoodID,
		Food:       make(map[FoodID]Food, len(s.Food)),
	}
	if len(s.Players) > 0 {
		out.Players = make([]Player, len(s.Players))
		copy(out.Players, s.Players)
	}
	if len(s.Walls) > 0 {
		out.Walls = make([]Wall, len(s.Walls))
		copy(out.Walls, s.Walls)
	}
	for id, f := range s.Food {
		out.Food[id] = f
	}
	return out
}

// Validate checks that the board and the entity arenas agree: every
// non-empty cell names a live entity whose position is that cell, and every
// on-board entity is recorded at its position.
func (s *State) Validate() error {
	var firstErr error
	fail := func(format string, args ...any) {
		if firstErr == nil {
			firstErr = fmt.Errorf(format, args...)
		}
	}

	s.Board.Each(func(p Point, o Occupant) {
		switch o.Kind {
		case Empty:
		case PlayerOccupant:
			pl := s.Player(o.ID)
			if pl == nil || !pl.OnBoard {
				fail("cell %s references player %d not on board", p, o.ID)
			} else if pl.Pos != p {
				fail("cell %s references player %d at %s", p, o.ID, pl.Pos)
			}
		case FoodOccupant:
			f, ok := s.Food[o.ID]
			if !ok {
				fail("cell %s references missing food %d", p, o.ID)
			} else if f.Pos != p {
				fail("cell %s references food %d at %s", p, o.ID, f.Pos)
			}
		case WallOccupant:
			if o.ID < 0 || int(o.ID) >= len(s.Walls) {
				fail("cell %s references missing wall %d", p, o.ID)
			} else if s.Walls[o.ID].Pos != p {
				fail("cell %s references wall %d at %s", p, o.ID, s.Walls[o.ID].Pos)
			}
		default:
			fail("cell %s has unknown occupant kind %d", p, o.Kind)
		}
	})

	expect := func(p Point, want Occupant) {
		got, err := s.Board.OccupantAt(p)
		if err != nil {
			fail("%s: %v", want, err)
			return
		}
		if got != want {
			fail("%s recorded at %s but cell holds %s", want, p, got)
		}
	}
	for i := range s.Players {
		if s.Players[i].OnBoard {
			expect(s.Players[i].Pos, Occupant{Kind: PlayerOccupant, ID: s.Players[i].ID})
		}
	}
	for id, f := range s.Food {
		expect(f.Pos, Occupant{Kind: FoodOccupant, ID: id})
	}
	for _, w := range s.Walls {
		expect(w.Pos, Occupant{Kind: WallOccupant, ID: w.ID})
	}
	return firstErr
}
