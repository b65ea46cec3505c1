package rules

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/brensch/runger/game"
)

// FoodSettings controls food placement:
//   - InitialFood: pieces placed when a generation starts
//   - MinimumFood: top up to at least this many pieces after each tick
//   - FoodSpawnChance: percentage chance (0-100) to spawn one extra piece each tick
//   - FoodEnergy: energy value of a spawned piece
//
// Functions here take an rng so callers can choose true randomness or, by
// passing nil, a pseudo-random stream derived from the state itself.
type FoodSettings struct {
	InitialFood     int    `json:"initial_food"`
	MinimumFood     int    `json:"minimum_food"`
	FoodSpawnChance int    `json:"food_spawn_chance"`
	FoodEnergy      uint32 `json:"food_energy"`
}

var DefaultFoodSettings = FoodSettings{InitialFood: 24, MinimumFood: 8, FoodSpawnChance: 25, FoodEnergy: 10}

func (fs FoodSettings) normalized() FoodSettings {
	if fs.InitialFood < 0 {
		fs.InitialFood = 0
	}
	if fs.MinimumFood < 0 {
		fs.MinimumFood = 0
	}
	if fs.FoodSpawnChance < 0 {
		fs.FoodSpawnChance = 0
	}
	if fs.FoodSpawnChance > 100 {
		fs.FoodSpawnChance = 100
	}
	if fs.FoodEnergy == 0 {
		fs.FoodEnergy = 1
	}
	return fs
}

// PlaceInitialFood places settings.InitialFood pieces on random empty cells.
func PlaceInitialFood(state *game.State, rng *rand.Rand, settings FoodSettings) []game.FoodID {
	settings = settings.normalized()
	if rng == nil {
		rng = derivedRand(state, 0x464F4F445F494E49) // "FOOD_INI"
	}
	return spawnFood(state, rng, settings.InitialFood, settings.FoodEnergy)
}

// ApplyFoodRules tops food up to the minimum and rolls for one extra piece.
func ApplyFoodRules(state *game.State, rng *rand.Rand, settings FoodSettings) []game.FoodID {
	return applyFoodRules(state, rng, settings, 0x464F4F445F544943) // "FOOD_TIC"
}

func applyFoodRules(state *game.State, rng *rand.Rand, settings FoodSettings, salt uint64) []game.FoodID {
	if state == nil || state.Board == nil || state.Board.Width <= 0 || state.Board.Height <= 0 {
		return nil
	}
	settings = settings.normalized()

	// Decide how much to spawn before scanning the board.
	deficit := settings.MinimumFood - len(state.Food)
	if deficit < 0 {
		deficit = 0
	}

	spawnExtra := false
	if settings.FoodSpawnChance > 0 {
		if rng != nil {
			spawnExtra = rng.Intn(100) < settings.FoodSpawnChance
		} else {
			spawnExtra = int(deterministicU64Fast(state, salt)%100) < settings.FoodSpawnChance
		}
	}

	toSpawn := deficit
	if spawnExtra {
		toSpawn++
	}
	if toSpawn == 0 {
		return nil
	}

	if rng == nil {
		rng = derivedRand(state, salt)
	}
	return spawnFood(state, rng, toSpawn, settings.FoodEnergy)
}

func spawnFood(state *game.State, rng *rand.Rand, n int, energy uint32) []game.FoodID {
	if n <= 0 {
		return nil
	}
	available := state.Board.EmptyCells()
	placed := make([]game.FoodID, 0, n)
	for ; n > 0 && len(available) > 0; n-- {
		i := rng.Intn(len(available))
		id, err := state.PlaceFood(available[i], energy, game.Plant)
		// remove chosen slot
		available[i] = available[len(available)-1]
		available = available[:len(available)-1]
		if err != nil {
			continue
		}
		placed = append(placed, id)
	}
	return placed
}

// SpawnFood applies the per-tick food rules and notifies the observer of
// every piece placed.
func (r *Resolver) SpawnFood(state *game.State, rng *rand.Rand, settings FoodSettings) []game.FoodID {
	ids := ApplyFoodRules(state, rng, settings)
	r.notifyFood(state, ids)
	return ids
}

// SpawnInitialFood places the starting food and notifies the observer.
func (r *Resolver) SpawnInitialFood(state *game.State, rng *rand.Rand, settings FoodSettings) []game.FoodID {
	ids := PlaceInitialFood(state, rng, settings)
	r.notifyFood(state, ids)
	return ids
}

func (r *Resolver) notifyFood(state *game.State, ids []game.FoodID) {
	for _, id := range ids {
		f := state.Food[id]
		r.notify(state, Notification{Kind: FoodPlaced, Player: -1, Pos: f.Pos, Occupant: game.Occupant{Kind: game.FoodOccupant, ID: id}})
	}
}

func derivedRand(state *game.State, salt uint64) *rand.Rand {
	seed := int64(deterministicU64Fast(state, salt))
	if seed == 0 {
		seed = 1
	}
	return rand.New(rand.NewSource(seed))
}

func deterministicU64Fast(state *game.State, salt uint64) uint64 {
	// Mix board size, turn, salt, food count and live player positions.
	h := fnv.New64a()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(uint32(state.Board.Width))|(uint64(uint32(state.Board.Height))<<32))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(uint32(state.Turn)))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], salt)
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(len(state.Food)))
	_, _ = h.Write(buf[:])

	for i := range state.Players {
		p := &state.Players[i]
		if !p.Alive() {
			continue
		}
		binary.LittleEndian.PutUint64(buf[:], (uint64(uint32(p.Pos.X))<<32)|uint64(uint32(p.Pos.Y)))
		_, _ = h.Write(buf[:])
	}

	return h.Sum64()
}
