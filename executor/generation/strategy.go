package generation

import (
	"context"
	"math/rand"

	"github.com/brensch/runger/game"
)

// Strategy picks one action for a live agent. The state is a read-only view
// of the start of the tick.
type Strategy interface {
	Choose(state *game.State, id game.PlayerID) game.Action
}

// BatchStrategy picks actions for every listed agent from the same snapshot.
// Implementations may fan out across goroutines but must not mutate state.
// The returned slice is aligned with ids.
type BatchStrategy interface {
	Strategy
	ChooseAll(ctx context.Context, state *game.State, ids []game.PlayerID) ([]game.Action, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(state *game.State, id game.PlayerID) game.Action

func (f StrategyFunc) Choose(state *game.State, id game.PlayerID) game.Action { return f(state, id) }

// UniformStrategy draws uniformly from a fixed action set. It is not safe for
// concurrent use because it shares one rng.
type UniformStrategy struct {
	actions []game.Action
	rng     *rand.Rand
}

func NewUniformStrategy(actions []game.Action, rng *rand.Rand) *UniformStrategy {
	if len(actions) == 0 {
		actions = game.AllActions()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &UniformStrategy{actions: append([]game.Action(nil), actions...), rng: rng}
}

func (u *UniformStrategy) Choose(_ *game.State, _ game.PlayerID) game.Action {
	return u.actions[u.rng.Intn(len(u.actions))]
}

func (u *UniformStrategy) Actions() []game.Action {
	return append([]game.Action(nil), u.actions...)
}

// SampleAction draws an index from a probability distribution. Weights need
// not sum to one.
func SampleAction(rng *rand.Rand, probs []float32) int {
	var total float32
	for _, p := range probs {
		if p > 0 {
			total += p
		}
	}
	if total <= 0 {
		return rng.Intn(len(probs))
	}
	r := rng.Float32() * total
	sum := float32(0)
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		sum += p
		if r < sum {
			return i
		}
	}
	return len(probs) - 1
}

func Argmax(probs []float32) int {
	bestIdx := -1
	bestVal := float32(-1)
	for i, p := range probs {
		if bestIdx < 0 || p > bestVal {
			bestVal = p
			bestIdx = i
		}
	}
	return bestIdx
}
