package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/game"
)

// Predictor evaluates one agent's view. OnnxClient and OnnxPool satisfy it.
type Predictor interface {
	Predict(state *game.State, id game.PlayerID) (policy []float32, value float32, err error)
}

// PolicyStrategy picks actions from a policy network. Disabled actions are
// masked out before choosing.
type PolicyStrategy struct {
	predictor Predictor
	enabled   [game.NumActions]bool
	sample    bool
	rng       *rand.Rand
	logger    *slog.Logger
}

type PolicyOption func(*PolicyStrategy)

// WithSampling draws actions from the policy distribution instead of taking
// the most likely one.
func WithSampling(rng *rand.Rand) PolicyOption {
	return func(s *PolicyStrategy) {
		s.sample = true
		s.rng = rng
	}
}

func WithPolicyLogger(l *slog.Logger) PolicyOption {
	return func(s *PolicyStrategy) { s.logger = l }
}

func NewPolicyStrategy(p Predictor, actions []game.Action, opts ...PolicyOption) *PolicyStrategy {
	s := &PolicyStrategy{predictor: p, logger: slog.Default()}
	if len(actions) == 0 {
		actions = game.AllActions()
	}
	for _, a := range actions {
		if a.Valid() {
			s.enabled[a] = true
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sample && s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	return s
}

// Choose evaluates a single agent. Prediction errors fall back to Idle.
func (s *PolicyStrategy) Choose(state *game.State, id game.PlayerID) game.Action {
	policy, _, err := s.predictor.Predict(state, id)
	if err != nil {
		s.logger.Warn("policy prediction failed", "player", id, "error", err)
		return game.Idle
	}
	var rng *rand.Rand
	if s.sample {
		rng = s.rng
	}
	return s.pick(policy, rng)
}

// ChooseAll evaluates every agent concurrently against the same state. The
// first prediction error aborts the tick.
func (s *PolicyStrategy) ChooseAll(ctx context.Context, state *game.State, ids []game.PlayerID) ([]game.Action, error) {
	actions := make([]game.Action, len(ids))

	// Per-agent rngs are seeded up front so results do not depend on
	// goroutine scheduling.
	var rngs []*rand.Rand
	if s.sample {
		rngs = make([]*rand.Rand, len(ids))
		for i := range rngs {
			rngs[i] = rand.New(rand.NewSource(s.rng.Int63()))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id game.PlayerID) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			policy, _, err := s.predictor.Predict(state, id)
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("player %d: %w", id, err)
					cancel()
				})
				return
			}
			var rng *rand.Rand
			if rngs != nil {
				rng = rngs[i]
			}
			actions[i] = s.pick(policy, rng)
		}(i, id)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

func (s *PolicyStrategy) pick(policy []float32, rng *rand.Rand) game.Action {
	masked := make([]float32, game.NumActions)
	positive := false
	for i := 0; i < game.NumActions && i < len(policy); i++ {
		if s.enabled[i] {
			masked[i] = policy[i]
			if policy[i] > 0 {
				positive = true
			}
		}
	}
	if !positive {
		// Degenerate output; spread evenly over the enabled actions.
		for i := range masked {
			if s.enabled[i] {
				masked[i] = 1
			}
		}
	}
	if rng != nil {
		return game.Action(generation.SampleAction(rng, masked))
	}
	return game.Action(generation.Argmax(masked))
}
