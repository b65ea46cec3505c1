package game

import (
	"errors"
	"testing"
)

func TestState_PlacementAndValidate(t *testing.T) {
	s := NewState(4, 4)
	a, err := s.AddPlayer(Point{X: 0, Y: 0}, Right, 10, LineOfSight{Length: 3})
	if err != nil {
		t.Fatalf("add player: %v", err)
	}
	if _, err := s.AddPlayer(Point{X: 0, Y: 0}, Up, 10, LineOfSight{Length: 3}); !errors.Is(err, ErrCellOccupied) {
		t.Fatalf("double placement err=%v want ErrCellOccupied", err)
	}
	fid, err := s.PlaceFood(Point{X: 2, Y: 0}, 5, Plant)
	if err != nil {
		t.Fatalf("place food: %v", err)
	}
	if _, err := s.BuildWall(Point{X: 2, Y: 0}); !errors.Is(err, ErrCellOccupied) {
		t.Fatalf("wall on food err=%v want ErrCellOccupied", err)
	}
	if _, err := s.BuildWall(Point{X: 3, Y: 3}); err != nil {
		t.Fatalf("build wall: %v", err)
	}
	t.Logf("board:\n%s", dumpBoard(s.Board))
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if _, err := s.RemoveFood(fid); err != nil {
		t.Fatalf("remove food: %v", err)
	}
	if _, err := s.RemoveFood(fid); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("double remove err=%v want ErrUnknownEntity", err)
	}
	if s.Player(a).Pos != (Point{X: 0, Y: 0}) {
		t.Fatalf("player pos=%s", s.Player(a).Pos)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate after remove: %v", err)
	}
}

func TestState_ValidateDetectsMismatch(t *testing.T) {
	s := NewState(4, 4)
	id, _ := s.AddPlayer(Point{X: 1, Y: 1}, Up, 3, LineOfSight{Length: 1})
	s.Players[id].Pos = Point{X: 2, Y: 2}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected mismatch error")
	}

	s = NewState(4, 4)
	_ = s.Board.SetOccupant(Point{X: 0, Y: 0}, Occupant{Kind: FoodOccupant, ID: 42})
	if err := s.Validate(); err == nil {
		t.Fatalf("expected dangling food handle error")
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	s := NewState(3, 3)
	_, _ = s.AddPlayer(Point{X: 0, Y: 0}, Up, 3, LineOfSight{Length: 1})
	_, _ = s.PlaceFood(Point{X: 1, Y: 1}, 4, Plant)

	c := s.Clone()
	c.Players[0].Vitals.Energy = 99
	_, _ = c.BuildWall(Point{X: 2, Y: 2})
	for id := range c.Food {
		_, _ = c.RemoveFood(id)
	}

	if s.Players[0].Vitals.Energy != 3 {
		t.Fatalf("clone shares players")
	}
	if len(s.Food) != 1 || len(s.Walls) != 0 {
		t.Fatalf("clone shares arenas: food=%d walls=%d", len(s.Food), len(s.Walls))
	}
	if o, _ := s.Board.OccupantAt(Point{X: 2, Y: 2}); !o.IsEmpty() {
		t.Fatalf("clone shares board")
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("original invalid: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("clone invalid: %v", err)
	}
}

func TestVitals_GainSaturates(t *testing.T) {
	v := Vitals{Energy: MaxEnergy - 3}
	v.Gain(10)
	if v.Energy != MaxEnergy {
		t.Fatalf("energy=%d want %d", v.Energy, MaxEnergy)
	}

	over := Vitals{Energy: 4_000_000_000}
	over.Gain(400_000_000)
	if over.Energy != 4_000_000_000 {
		t.Fatalf("gain lowered energy to %d", over.Energy)
	}

	s := NewState(2, 1)
	id, err := s.AddPlayer(Point{X: 0, Y: 0}, Right, 3_000_000_000, LineOfSight{Length: 1})
	if err != nil {
		t.Fatalf("add player: %v", err)
	}
	if e := s.Player(id).Vitals.Energy; e != MaxEnergy {
		t.Fatalf("start energy=%d want clamp to %d", e, MaxEnergy)
	}
}
