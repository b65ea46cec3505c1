// Package rules resolves agent intents into state mutations.
//
// A tick is resolved in a fixed category order: turns, moves, eats, kills,
// wall builds, line-of-sight scans, then vitals. Later categories observe the
// board as left by earlier ones, never a half-applied category.
package rules

import (
	"errors"
	"fmt"

	"github.com/brensch/runger/game"
)

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrDuplicateIntent = errors.New("duplicate intent")
)

// CostTable maps each action to the energy it costs, indexed by game.Action.
type CostTable [game.NumActions]uint32

// DefaultCosts makes fighting and building far more expensive than moving.
var DefaultCosts = CostTable{
	game.Idle:         1,
	game.MoveForward:  2,
	game.MoveBackward: 3,
	game.TurnLeft:     1,
	game.TurnRight:    1,
	game.Eat:          1,
	game.Kill:         12,
	game.BuildWall:    8,
	game.ScanLOS:      1,
}

func (c CostTable) Cost(a game.Action) uint32 {
	if !a.Valid() {
		return c[game.Idle]
	}
	return c[a]
}

type Config struct {
	// MaxDisengage bounds how far a backward move can retreat.
	MaxDisengage int
	// CorpseEnergyPercent scales a victim's remaining energy into the
	// corpse left behind. Corpses are always worth at least 1. Zero means 100.
	CorpseEnergyPercent int
	Costs               CostTable
}

var DefaultConfig = Config{
	MaxDisengage:        3,
	CorpseEnergyPercent: 100,
	Costs:               DefaultCosts,
}

// Intent is one agent's chosen action for a tick.
type Intent struct {
	Player game.PlayerID
	Action game.Action
}

// Outcome records what an intent actually did.
type Outcome struct {
	Player    game.PlayerID
	Attempted game.Action
	Taken     game.Action
}

// TickReport summarises one resolved tick.
type TickReport struct {
	Outcomes  []Outcome
	Sightings []Sighting
	// Errors holds invariant violations. The offending action is
	// downgraded to Idle and the tick carries on.
	Errors []error

	Kills      int
	FoodEaten  int
	WallsBuilt int
	Starved    int
}

// Resolver applies intents to a state.
type Resolver struct {
	cfg Config
	obs Observer
}

func NewResolver(cfg Config, obs Observer) *Resolver {
	if cfg.MaxDisengage < 0 {
		cfg.MaxDisengage = 0
	}
	// Zero selects the default; negative percents leave minimum corpses.
	if cfg.CorpseEnergyPercent == 0 {
		cfg.CorpseEnergyPercent = 100
	}
	return &Resolver{cfg: cfg, obs: obs}
}

func (r *Resolver) Config() Config { return r.cfg }

func (r *Resolver) notify(s *game.State, n Notification) {
	if r.obs == nil {
		return
	}
	n.Turn = s.Turn
	r.obs.Notify(n)
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseTurn
	phaseMove
	phaseEat
	phaseKill
	phaseBuild
	phaseScan
	numPhases
)

func phaseOf(a game.Action) phase {
	switch a {
	case game.TurnLeft, game.TurnRight:
		return phaseTurn
	case game.MoveForward, game.MoveBackward:
		return phaseMove
	case game.Eat:
		return phaseEat
	case game.Kill:
		return phaseKill
	case game.BuildWall:
		return phaseBuild
	case game.ScanLOS:
		return phaseScan
	}
	return phaseIdle
}

// Resolve applies one tick worth of intents. Every accepted intent also gets
// exactly one vitals update after all action categories have run.
func (r *Resolver) Resolve(s *game.State, intents []Intent) TickReport {
	var report TickReport

	byPhase := make([][]int, numPhases)
	seen := make(map[game.PlayerID]bool, len(intents))
	accepted := make([]bool, len(intents))
	taken := make([]game.Action, len(intents))

	for i, in := range intents {
		p := s.Player(in.Player)
		switch {
		case p == nil:
			report.Errors = append(report.Errors, fmt.Errorf("intent for player %d: %w", in.Player, game.ErrUnknownEntity))
			continue
		case seen[in.Player]:
			report.Errors = append(report.Errors, fmt.Errorf("player %d: %w", in.Player, ErrDuplicateIntent))
			continue
		case !in.Action.Valid():
			report.Errors = append(report.Errors, fmt.Errorf("player %d action %d: %w", in.Player, in.Action, ErrUnknownAction))
			seen[in.Player] = true
			accepted[i] = true
			taken[i] = game.Idle
			p.LastAction = game.Idle
			continue
		}
		seen[in.Player] = true
		if !p.Alive() {
			continue
		}
		accepted[i] = true
		ph := phaseOf(in.Action)
		byPhase[ph] = append(byPhase[ph], i)
	}

	for ph := phase(0); ph < numPhases; ph++ {
		for _, i := range byPhase[ph] {
			in := intents[i]
			p := s.Player(in.Player)
			if !p.Alive() {
				// Killed earlier this tick.
				p.LastAction = game.Idle
				taken[i] = game.Idle
				continue
			}
			ok := false
			switch ph {
			case phaseIdle:
			case phaseTurn:
				rot := game.RotateLeft
				if in.Action == game.TurnRight {
					rot = game.RotateRight
				}
				ok = r.Turn(s, in.Player, rot)
			case phaseMove:
				ok = r.Move(s, in.Player, in.Action == game.MoveForward)
			case phaseEat:
				ok = r.Eat(s, in.Player)
				if ok {
					report.FoodEaten++
				}
			case phaseKill:
				var err error
				ok, err = r.Kill(s, in.Player)
				if err != nil {
					report.Errors = append(report.Errors, err)
				}
				if ok {
					report.Kills++
				}
			case phaseBuild:
				ok = r.BuildWall(s, in.Player)
				if ok {
					report.WallsBuilt++
				}
			case phaseScan:
				if sighting, found := r.ScanLOS(s, in.Player); found {
					report.Sightings = append(report.Sightings, sighting)
				}
				ok = true
			}
			if ok {
				taken[i] = in.Action
			} else {
				taken[i] = game.Idle
				p.LastAction = game.Idle
			}
		}
	}

	for i, in := range intents {
		if !accepted[i] {
			continue
		}
		report.Outcomes = append(report.Outcomes, Outcome{Player: in.Player, Attempted: in.Action, Taken: taken[i]})
		if r.UpdateVitals(s, in.Player) {
			report.Starved++
		}
	}
	return report
}

// Turn rotates a player's facing. It always succeeds for a live player.
func (r *Resolver) Turn(s *game.State, id game.PlayerID, rot game.Rotation) bool {
	p := s.Player(id)
	if p == nil || !p.Alive() {
		return false
	}
	p.Facing = p.Facing.Rotate(rot)
	if rot == game.RotateLeft {
		p.LastAction = game.TurnLeft
	} else {
		p.LastAction = game.TurnRight
	}
	r.notify(s, Notification{Kind: Turned, Player: id, Pos: p.Pos, Facing: p.Facing, Occupant: playerOcc(id), Status: p.Vitals.Status})
	return true
}

// Move steps a player one cell forward, or retreats it up to MaxDisengage
// cells backwards. The target must be on the board and empty.
func (r *Resolver) Move(s *game.State, id game.PlayerID, forward bool) bool {
	p := s.Player(id)
	if p == nil || !p.Alive() || !p.OnBoard {
		return false
	}

	var (
		target game.Point
		occ    game.Occupant
		ok     bool
	)
	if forward {
		target, occ, ok = s.Board.LookingAt(p.Pos, p.Facing)
	} else {
		target, occ, ok = s.Board.DisengageTo(p.Pos, p.Facing, r.cfg.MaxDisengage)
	}
	if !ok || !occ.IsEmpty() {
		p.LastAction = game.Idle
		return false
	}

	mover, err := s.Board.OccupantAt(p.Pos)
	if err != nil {
		p.LastAction = game.Idle
		return false
	}
	_ = s.Board.SetOccupant(p.Pos, game.Occupant{})
	_ = s.Board.SetOccupant(target, mover)
	p.Pos = target
	if forward {
		p.LastAction = game.MoveForward
	} else {
		p.LastAction = game.MoveBackward
	}
	r.notify(s, Notification{Kind: Moved, Player: id, Pos: target, Facing: p.Facing, Occupant: mover, Status: p.Vitals.Status})
	return true
}

// Eat consumes the food directly ahead of a player.
func (r *Resolver) Eat(s *game.State, id game.PlayerID) bool {
	p := s.Player(id)
	if p == nil || !p.Alive() {
		return false
	}
	p.LastAction = game.Idle

	_, occ, ok := s.Board.LookingAt(p.Pos, p.Facing)
	if !ok || occ.Kind != game.FoodOccupant {
		return false
	}
	food, err := s.RemoveFood(occ.ID)
	if err != nil {
		return false
	}
	p.Vitals.Gain(food.Energy)
	p.LastAction = game.Eat
	r.notify(s, Notification{Kind: Ate, Player: id, Pos: food.Pos, Facing: p.Facing, Occupant: occ, Status: p.Vitals.Status})
	return true
}

// Kill removes the live player directly ahead and leaves a corpse worth
// the victim's remaining energy in its cell.
func (r *Resolver) Kill(s *game.State, id game.PlayerID) (bool, error) {
	p := s.Player(id)
	if p == nil || !p.Alive() {
		return false, nil
	}
	p.LastAction = game.Idle

	victimPos, occ, ok := s.Board.LookingAt(p.Pos, p.Facing)
	if !ok || occ.Kind != game.PlayerOccupant {
		return false, nil
	}
	victim := s.Player(occ.ID)
	if victim == nil || !victim.Alive() {
		return false, nil
	}

	remaining := victim.Vitals.Energy
	_ = s.Board.SetOccupant(victimPos, game.Occupant{})
	victim.OnBoard = false
	victim.Vitals.Status = game.Dead
	victim.Vitals.Energy = 0
	victim.LastAction = game.Idle
	r.notify(s, Notification{Kind: Killed, Player: victim.ID, Pos: victimPos, Facing: victim.Facing, Occupant: occ, Status: game.Dead})

	pct := uint64(min(max(r.cfg.CorpseEnergyPercent, 0), 1<<30))
	corpse := game.ClampEnergy(uint64(remaining) * pct / 100)
	if corpse == 0 {
		corpse = 1
	}
	fid, err := s.PlaceFood(victimPos, corpse, game.DeadMeat)
	if err != nil {
		return false, fmt.Errorf("player %d kill at %s: %w", id, victimPos, err)
	}
	r.notify(s, Notification{Kind: FoodPlaced, Player: -1, Pos: victimPos, Occupant: game.Occupant{Kind: game.FoodOccupant, ID: fid}})

	p.LastAction = game.Kill
	return true, nil
}

// BuildWall places a permanent wall in the empty cell ahead of a player.
func (r *Resolver) BuildWall(s *game.State, id game.PlayerID) bool {
	p := s.Player(id)
	if p == nil || !p.Alive() {
		return false
	}
	p.LastAction = game.Idle

	target, occ, ok := s.Board.LookingAt(p.Pos, p.Facing)
	if !ok || !occ.IsEmpty() {
		return false
	}
	wid, err := s.BuildWall(target)
	if err != nil {
		return false
	}
	p.LastAction = game.BuildWall
	r.notify(s, Notification{Kind: WallBuilt, Player: id, Pos: target, Occupant: game.Occupant{Kind: game.WallOccupant, ID: wid}})
	return true
}

// ScanLOS scans a player's line of sight. The board is not modified; only
// the scanner's last action changes.
func (r *Resolver) ScanLOS(s *game.State, id game.PlayerID) (Sighting, bool) {
	p := s.Player(id)
	if p == nil || !p.Alive() {
		return Sighting{}, false
	}
	sighting, found := Scan(s, id)
	p.LastAction = game.ScanLOS
	if found {
		r.notify(s, Notification{Kind: Sighted, Player: id, Pos: sighting.Pos, Facing: p.Facing, Occupant: game.Occupant{Kind: sighting.Kind, ID: -1}, Status: p.Vitals.Status})
	}
	return sighting, found
}

// UpdateVitals charges a live player for its last action. It reports true
// when the charge starved the player.
func (r *Resolver) UpdateVitals(s *game.State, id game.PlayerID) bool {
	p := s.Player(id)
	if p == nil || !p.Alive() {
		return false
	}
	cost := r.cfg.Costs.Cost(p.LastAction)
	if p.Vitals.Energy > cost {
		p.Vitals.Energy -= cost
	} else {
		p.Vitals.Energy = 0
	}
	if p.Vitals.Energy > 0 {
		return false
	}
	p.Vitals.Status = game.Dead
	r.notify(s, Notification{Kind: Died, Player: id, Pos: p.Pos, Facing: p.Facing, Occupant: playerOcc(id), Status: game.Dead})
	return true
}

func playerOcc(id game.PlayerID) game.Occupant {
	return game.Occupant{Kind: game.PlayerOccupant, ID: id}
}
