package rules

import (
	"math/rand"
	"testing"

	"github.com/brensch/runger/game"
)

func TestApplyFoodRules_TopsUpToMinimum(t *testing.T) {
	s := game.NewState(5, 5)
	_, _ = s.AddPlayer(game.Point{X: 0, Y: 0}, game.Up, 10, game.LineOfSight{Length: 1})

	rng := rand.New(rand.NewSource(1))
	ids := ApplyFoodRules(s, rng, FoodSettings{MinimumFood: 4, FoodSpawnChance: 0, FoodEnergy: 6})
	if len(ids) != 4 || len(s.Food) != 4 {
		t.Fatalf("placed=%d food=%d want 4", len(ids), len(s.Food))
	}
	for _, f := range s.Food {
		if f.Energy != 6 || f.Kind != game.Plant {
			t.Fatalf("food=%+v", f)
		}
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("invariant: %v", err)
	}

	if ids := ApplyFoodRules(s, rng, FoodSettings{MinimumFood: 4, FoodSpawnChance: 0, FoodEnergy: 6}); len(ids) != 0 {
		t.Fatalf("spawned %d above minimum", len(ids))
	}
	if ids := ApplyFoodRules(s, rng, FoodSettings{MinimumFood: 0, FoodSpawnChance: 100, FoodEnergy: 6}); len(ids) != 1 {
		t.Fatalf("certain extra spawn placed %d", len(ids))
	}
}

func TestApplyFoodRules_FullBoard(t *testing.T) {
	s := game.NewState(2, 1)
	_, _ = s.AddPlayer(game.Point{X: 0, Y: 0}, game.Up, 10, game.LineOfSight{Length: 1})
	_, _ = s.BuildWall(game.Point{X: 1, Y: 0})

	if ids := ApplyFoodRules(s, nil, FoodSettings{MinimumFood: 3, FoodSpawnChance: 100}); len(ids) != 0 {
		t.Fatalf("placed food on a full board: %v", ids)
	}
}

func TestApplyFoodRules_DeterministicWithoutRng(t *testing.T) {
	build := func() *game.State {
		s := game.NewState(6, 6)
		_, _ = s.AddPlayer(game.Point{X: 1, Y: 1}, game.Up, 10, game.LineOfSight{Length: 1})
		return s
	}
	a, b := build(), build()
	settings := FoodSettings{InitialFood: 5, MinimumFood: 5, FoodSpawnChance: 50, FoodEnergy: 3}
	PlaceInitialFood(a, nil, settings)
	PlaceInitialFood(b, nil, settings)
	ApplyFoodRules(a, nil, settings)
	ApplyFoodRules(b, nil, settings)

	if len(a.Food) != len(b.Food) {
		t.Fatalf("food counts differ: %d vs %d", len(a.Food), len(b.Food))
	}
	for id, f := range a.Food {
		if b.Food[id].Pos != f.Pos {
			t.Fatalf("food %d at %s vs %s", id, f.Pos, b.Food[id].Pos)
		}
	}
}
