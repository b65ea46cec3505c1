// Package generation schedules ticks of one simulation run.
//
// A Generation is Running until its turn counter reaches the configured
// length, then Finished. Each tick every live agent gets exactly one intent
// drawn from a view of the state at the start of the tick; the intents are
// then resolved sequentially by the rules package.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/rules"
)

var ErrGenerationFinished = errors.New("generation finished")

type Phase uint8

const (
	Running Phase = iota
	Finished
)

func (p Phase) String() string {
	if p == Finished {
		return "Finished"
	}
	return "Running"
}

// Summary is the survival report for a generation. Fraction is Alive/Total.
type Summary struct {
	GenerationID string
	Turns        int32
	Total        int
	Alive        int
	Fraction     float64
	Kills        int
	FoodEaten    int
	WallsBuilt   int
	Starved      int
}

// TickResult describes one resolved tick.
type TickResult struct {
	Turn       int32
	Intents    []rules.Intent
	Report     rules.TickReport
	FoodPlaced []game.FoodID
	Finished   bool
}

type Generation struct {
	id       string
	cfg      Config
	seed     int64
	state    *game.State
	resolver *rules.Resolver
	strategy Strategy
	rng      *rand.Rand
	logger   *slog.Logger
	obs      rules.Observer

	phase   Phase
	started time.Time
	ended   time.Time
	totals  Summary
}

type Option func(*Generation)

func WithObserver(obs rules.Observer) Option {
	return func(g *Generation) { g.obs = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Generation) { g.logger = l }
}

func WithID(id string) Option {
	return func(g *Generation) { g.id = id }
}

// New builds a generation: agents are placed on random distinct cells with a
// random facing, starting energy and line of sight, then initial food is
// placed. A nil strategy draws uniformly from cfg's enabled actions.
func New(cfg Config, strategy Strategy, opts ...Option) (*Generation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rcfg, err := cfg.RulesConfig()
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generation{
		cfg:    cfg,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
		logger: slog.Default(),
		phase:  Running,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.id == "" {
		g.id = fmt.Sprintf("gen_%d_%d", time.Now().UnixNano(), seed)
	}
	g.resolver = rules.NewResolver(rcfg, g.obs)

	if strategy == nil {
		actions, err := cfg.Actions()
		if err != nil {
			return nil, err
		}
		strategy = NewUniformStrategy(actions, g.rng)
	}
	g.strategy = strategy

	g.state = game.NewState(cfg.GridSize, cfg.GridSize)
	if err := g.placeAgents(); err != nil {
		return nil, err
	}
	g.resolver.SpawnInitialFood(g.state, g.rng, cfg.Food)
	g.started = time.Now()
	return g, nil
}

func (g *Generation) placeAgents() error {
	cells := g.state.Board.EmptyCells()
	g.rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })

	facings := []game.Facing{game.Up, game.Down, game.Left, game.Right}
	energySpan := int64(g.cfg.MaxStartEnergy-g.cfg.MinStartEnergy) + 1
	losSpan := int64(g.cfg.MaxLOS-g.cfg.MinLOS) + 1

	for i := 0; i < g.cfg.Agents; i++ {
		energy := g.cfg.MinStartEnergy + uint32(g.rng.Int63n(energySpan))
		los := game.LineOfSight{Length: g.cfg.MinLOS + int32(g.rng.Int63n(losSpan)), Mode: game.LOSStraight}
		facing := facings[g.rng.Intn(len(facings))]
		if _, err := g.state.AddPlayer(cells[i], facing, energy, los); err != nil {
			return fmt.Errorf("place agent %d: %w", i, err)
		}
	}
	return nil
}

func (g *Generation) ID() string                { return g.id }
func (g *Generation) Seed() int64               { return g.seed }
func (g *Generation) Config() Config            { return g.cfg }
func (g *Generation) Phase() Phase              { return g.phase }
func (g *Generation) Turn() int32               { return g.state.Turn }
func (g *Generation) Started() time.Time        { return g.started }
func (g *Generation) Ended() time.Time          { return g.ended }
func (g *Generation) Resolver() *rules.Resolver { return g.resolver }

// State returns the live state. Callers must not mutate it.
func (g *Generation) State() *game.State { return g.state }

// Tick runs one turn. Ticking a finished generation returns
// ErrGenerationFinished and changes nothing.
func (g *Generation) Tick(ctx context.Context) (TickResult, error) {
	if g.phase == Finished {
		return TickResult{}, ErrGenerationFinished
	}
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}

	intents, err := g.gatherIntents(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("turn %d: choose actions: %w", g.state.Turn, err)
	}

	turn := g.state.Turn
	report := g.resolver.Resolve(g.state, intents)
	for _, err := range report.Errors {
		g.logger.Warn("tick error", "generation", g.id, "turn", turn, "error", err)
	}
	food := g.resolver.SpawnFood(g.state, g.rng, g.cfg.Food)

	g.totals.Kills += report.Kills
	g.totals.FoodEaten += report.FoodEaten
	g.totals.WallsBuilt += report.WallsBuilt
	g.totals.Starved += report.Starved

	g.state.Turn++
	if g.state.Turn >= g.cfg.GenerationLength || (g.cfg.EndOnExtinction && g.state.AliveCount() == 0) {
		g.finish()
	}

	return TickResult{
		Turn:       turn,
		Intents:    intents,
		Report:     report,
		FoodPlaced: food,
		Finished:   g.phase == Finished,
	}, nil
}

// gatherIntents asks the strategy for one action per live agent before any
// of them is applied. Intent order is shuffled each tick so no agent always
// moves first.
func (g *Generation) gatherIntents(ctx context.Context) ([]rules.Intent, error) {
	ids := make([]game.PlayerID, 0, len(g.state.Players))
	for i := range g.state.Players {
		if g.state.Players[i].Alive() {
			ids = append(ids, g.state.Players[i].ID)
		}
	}

	actions := make([]game.Action, len(ids))
	if batch, ok := g.strategy.(BatchStrategy); ok && len(ids) > 0 {
		got, err := batch.ChooseAll(ctx, g.state, ids)
		if err != nil {
			return nil, err
		}
		if len(got) != len(ids) {
			return nil, fmt.Errorf("strategy returned %d actions for %d agents", len(got), len(ids))
		}
		copy(actions, got)
	} else {
		for i, id := range ids {
			actions[i] = g.strategy.Choose(g.state, id)
		}
	}

	intents := make([]rules.Intent, len(ids))
	for i, id := range ids {
		intents[i] = rules.Intent{Player: id, Action: actions[i]}
	}
	g.rng.Shuffle(len(intents), func(i, j int) { intents[i], intents[j] = intents[j], intents[i] })
	return intents, nil
}

func (g *Generation) finish() {
	if g.phase == Finished {
		return
	}
	g.phase = Finished
	g.ended = time.Now()
	s := g.Summary()
	g.logger.Info("generation finished",
		"generation", s.GenerationID,
		"turns", s.Turns,
		"alive", s.Alive,
		"total", s.Total,
		"survival_pct", fmt.Sprintf("%.1f", s.Fraction*100),
		"kills", s.Kills,
		"food_eaten", s.FoodEaten,
		"walls_built", s.WallsBuilt,
		"starved", s.Starved,
		"elapsed", g.ended.Sub(g.started).Round(time.Millisecond),
	)
}

// Summary reports survival over every agent spawned at the start.
func (g *Generation) Summary() Summary {
	s := g.totals
	s.GenerationID = g.id
	s.Turns = g.state.Turn
	s.Total = len(g.state.Players)
	s.Alive = g.state.AliveCount()
	if s.Total > 0 {
		s.Fraction = float64(s.Alive) / float64(s.Total)
	}
	return s
}

// Run ticks until the generation finishes or ctx is cancelled. onTick, if
// set, is called after every tick; an error from it stops the run.
func (g *Generation) Run(ctx context.Context, onTick func(*Generation, TickResult) error) (Summary, error) {
	for g.phase == Running {
		res, err := g.Tick(ctx)
		if err != nil {
			return g.Summary(), err
		}
		if onTick != nil {
			if err := onTick(g, res); err != nil {
				return g.Summary(), err
			}
		}
	}
	return g.Summary(), nil
}
