package rules

import (
	"testing"

	"github.com/brensch/runger/game"
)

func TestLOSTiles_StopsAtEdge(t *testing.T) {
	b := game.NewBoard(5, 5)
	tiles := LOSTiles(b, game.Point{X: 2, Y: 2}, game.Right, game.LineOfSight{Length: 10})
	want := []game.Point{{X: 3, Y: 2}, {X: 4, Y: 2}}
	if len(tiles) != len(want) {
		t.Fatalf("tiles=%v want %v", tiles, want)
	}
	for i := range want {
		if tiles[i] != want[i] {
			t.Fatalf("tiles=%v want %v", tiles, want)
		}
	}

	tiles = LOSTiles(b, game.Point{X: 0, Y: 0}, game.Up, game.LineOfSight{Length: 3})
	if len(tiles) != 3 || tiles[2] != (game.Point{X: 0, Y: 3}) {
		t.Fatalf("tiles=%v", tiles)
	}
	if got := LOSTiles(b, game.Point{X: 0, Y: 0}, game.Down, game.LineOfSight{Length: 3}); len(got) != 0 {
		t.Fatalf("looking off board: %v", got)
	}
}

func TestScanLOS_FirstHitOnly(t *testing.T) {
	s := game.NewState(6, 1)
	scanner, _ := s.AddPlayer(game.Point{X: 0, Y: 0}, game.Right, 10, game.LineOfSight{Length: 4})
	_, _ = s.PlaceFood(game.Point{X: 2, Y: 0}, 3, game.Plant)
	_, _ = s.BuildWall(game.Point{X: 3, Y: 0})

	r := NewResolver(DefaultConfig, nil)
	sighting, ok := r.ScanLOS(s, scanner)
	if !ok {
		t.Fatalf("no sighting:\n%s", dumpState(s))
	}
	if sighting.Kind != game.FoodOccupant || sighting.Pos != (game.Point{X: 2, Y: 0}) || sighting.Distance != 2 {
		t.Fatalf("sighting=%+v", sighting)
	}
	if s.Player(scanner).LastAction != game.ScanLOS {
		t.Fatalf("last action=%s", s.Player(scanner).LastAction)
	}
}

func TestScanLOS_OutOfRangeReportsNothing(t *testing.T) {
	s := game.NewState(8, 1)
	scanner, _ := s.AddPlayer(game.Point{X: 0, Y: 0}, game.Right, 10, game.LineOfSight{Length: 2})
	_, _ = s.BuildWall(game.Point{X: 5, Y: 0})

	rep := NewResolver(DefaultConfig, nil).Resolve(s, []Intent{{Player: scanner, Action: game.ScanLOS}})
	if len(rep.Sightings) != 0 {
		t.Fatalf("sightings=%+v want none", rep.Sightings)
	}
	if rep.Outcomes[0].Taken != game.ScanLOS {
		t.Fatalf("scan without hit taken=%s", rep.Outcomes[0].Taken)
	}
}

func TestScanLOS_IdempotentAndReadOnly(t *testing.T) {
	s := game.NewState(5, 5)
	scanner, _ := s.AddPlayer(game.Point{X: 2, Y: 0}, game.Up, 10, game.LineOfSight{Length: 5})
	_, _ = s.AddPlayer(game.Point{X: 2, Y: 3}, game.Down, 10, game.LineOfSight{Length: 5})

	before := s.Clone()
	first, ok1 := Scan(s, scanner)
	second, ok2 := Scan(s, scanner)
	if ok1 != ok2 || first != second {
		t.Fatalf("scans differ: %+v/%v vs %+v/%v", first, ok1, second, ok2)
	}
	if first.Kind != game.PlayerOccupant || first.Distance != 3 {
		t.Fatalf("sighting=%+v", first)
	}

	before.Board.Each(func(p game.Point, o game.Occupant) {
		now, _ := s.Board.OccupantAt(p)
		if now != o {
			t.Fatalf("scan mutated %s: %s -> %s", p, o, now)
		}
	})
}
