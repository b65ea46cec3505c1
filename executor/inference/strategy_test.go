package inference

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/game"
)

// fakePredictor prefers one action per player and counts calls.
type fakePredictor struct {
	prefer func(id game.PlayerID) game.Action
	fail   game.PlayerID
	calls  atomic.Int64
}

func (f *fakePredictor) Predict(_ *game.State, id game.PlayerID) ([]float32, float32, error) {
	f.calls.Add(1)
	if id == f.fail {
		return nil, 0, errors.New("boom")
	}
	policy := make([]float32, PolicySize)
	for i := range policy {
		policy[i] = 0.01
	}
	policy[f.prefer(id)] = 0.5
	policy[game.Kill] = 0.4
	return policy, 0, nil
}

func testState(t *testing.T, n int) (*game.State, []game.PlayerID) {
	t.Helper()
	s := game.NewState(8, 8)
	ids := make([]game.PlayerID, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.AddPlayer(game.Point{X: int32(i), Y: 0}, game.Up, 10, game.LineOfSight{Length: 2})
		if err != nil {
			t.Fatalf("add player: %v", err)
		}
		ids = append(ids, id)
	}
	return s, ids
}

func TestPolicyStrategy_ChooseAllArgmax(t *testing.T) {
	s, ids := testState(t, 6)
	fake := &fakePredictor{fail: -1, prefer: func(id game.PlayerID) game.Action {
		if id%2 == 0 {
			return game.Eat
		}
		return game.TurnLeft
	}}
	var strat generation.BatchStrategy = NewPolicyStrategy(fake, nil)

	actions, err := strat.ChooseAll(context.Background(), s, ids)
	if err != nil {
		t.Fatalf("choose all: %v", err)
	}
	if fake.calls.Load() != int64(len(ids)) {
		t.Fatalf("calls=%d", fake.calls.Load())
	}
	for i, id := range ids {
		want := game.TurnLeft
		if id%2 == 0 {
			want = game.Eat
		}
		if actions[i] != want {
			t.Fatalf("player %d: %s want %s", id, actions[i], want)
		}
	}
}

func TestPolicyStrategy_MasksDisabledActions(t *testing.T) {
	s, ids := testState(t, 3)
	fake := &fakePredictor{fail: -1, prefer: func(game.PlayerID) game.Action { return game.Eat }}
	strat := NewPolicyStrategy(fake, []game.Action{game.Idle, game.Kill})

	for _, id := range ids {
		if got := strat.Choose(s, id); got != game.Kill {
			t.Fatalf("player %d chose %s, want Kill", id, got)
		}
	}
}

func TestPolicyStrategy_SamplingStaysEnabled(t *testing.T) {
	s, ids := testState(t, 8)
	fake := &fakePredictor{fail: -1, prefer: func(game.PlayerID) game.Action { return game.MoveForward }}
	enabled := []game.Action{game.MoveForward, game.ScanLOS}
	strat := NewPolicyStrategy(fake, enabled, WithSampling(rand.New(rand.NewSource(3))))

	for round := 0; round < 20; round++ {
		actions, err := strat.ChooseAll(context.Background(), s, ids)
		if err != nil {
			t.Fatalf("choose all: %v", err)
		}
		for _, a := range actions {
			if a != game.MoveForward && a != game.ScanLOS {
				t.Fatalf("sampled disabled action %s", a)
			}
		}
	}
}

func TestPolicyStrategy_SamplingIsReproducible(t *testing.T) {
	s, ids := testState(t, 8)
	run := func() []game.Action {
		fake := &fakePredictor{fail: -1, prefer: func(game.PlayerID) game.Action { return game.Eat }}
		strat := NewPolicyStrategy(fake, nil, WithSampling(rand.New(rand.NewSource(11))))
		actions, err := strat.ChooseAll(context.Background(), s, ids)
		if err != nil {
			t.Fatalf("choose all: %v", err)
		}
		return actions
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("agent %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestPolicyStrategy_ErrorAbortsTick(t *testing.T) {
	s, ids := testState(t, 4)
	fake := &fakePredictor{fail: ids[2], prefer: func(game.PlayerID) game.Action { return game.Eat }}
	strat := NewPolicyStrategy(fake, nil)

	if _, err := strat.ChooseAll(context.Background(), s, ids); err == nil {
		t.Fatalf("prediction error swallowed")
	}
	if got := strat.Choose(s, ids[2]); got != game.Idle {
		t.Fatalf("single choose fallback=%s want Idle", got)
	}
}

func TestPolicyStrategy_DrivesGeneration(t *testing.T) {
	cfg := generation.DefaultConfig()
	cfg.GridSize = 8
	cfg.Agents = 5
	cfg.GenerationLength = 10
	cfg.Seed = 5
	fake := &fakePredictor{fail: -1, prefer: func(game.PlayerID) game.Action { return game.TurnRight }}

	g, err := generation.New(cfg, NewPolicyStrategy(fake, nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := g.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, o := range res.Report.Outcomes {
		if o.Attempted != game.TurnRight {
			t.Fatalf("outcome=%+v", o)
		}
	}
}
