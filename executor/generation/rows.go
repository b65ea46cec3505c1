package generation

import (
	"fmt"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/store"
)

// TickRow snapshots the state after a tick for archiving. Agents without an
// intent this tick (already dead) have an empty Attempted.
func (g *Generation) TickRow(res TickResult, source string) store.TickRow {
	s := g.state
	row := store.TickRow{
		GenerationID: g.id,
		Turn:         res.Turn,
		Width:        s.Board.Width,
		Height:       s.Board.Height,
		Sightings:    int32(len(res.Report.Sightings)),
		Errors:       int32(len(res.Report.Errors)),
		Source:       source,
	}

	if len(s.Food) > 0 {
		ids := s.FoodIDs()
		row.FoodX = make([]int32, 0, len(ids))
		row.FoodY = make([]int32, 0, len(ids))
		row.FoodEnergy = make([]int32, 0, len(ids))
		row.FoodKind = make([]string, 0, len(ids))
		for _, id := range ids {
			f := s.Food[id]
			row.FoodX = append(row.FoodX, f.Pos.X)
			row.FoodY = append(row.FoodY, f.Pos.Y)
			row.FoodEnergy = append(row.FoodEnergy, energyColumn(f.Energy))
			row.FoodKind = append(row.FoodKind, f.Kind.String())
		}
	}

	if len(s.Walls) > 0 {
		row.WallX = make([]int32, 0, len(s.Walls))
		row.WallY = make([]int32, 0, len(s.Walls))
		for _, w := range s.Walls {
			row.WallX = append(row.WallX, w.Pos.X)
			row.WallY = append(row.WallY, w.Pos.Y)
		}
	}

	outcomes := make(map[game.PlayerID]int, len(res.Report.Outcomes))
	for i, o := range res.Report.Outcomes {
		outcomes[o.Player] = i
	}

	row.Players = make([]store.PlayerRow, 0, len(s.Players))
	for i := range s.Players {
		p := &s.Players[i]
		pr := store.PlayerRow{
			ID:      p.ID,
			X:       p.Pos.X,
			Y:       p.Pos.Y,
			Facing:  p.Facing.String(),
			Energy:  energyColumn(p.Vitals.Energy),
			Alive:   p.Alive(),
			OnBoard: p.OnBoard,
			LOS:     p.LOS.Length,
			Taken:   game.Idle.String(),
		}
		if j, ok := outcomes[p.ID]; ok {
			o := res.Report.Outcomes[j]
			pr.Attempted = o.Attempted.String()
			pr.Taken = o.Taken.String()
		}
		row.Players = append(row.Players, pr)
	}
	return row
}

// GenerationRow converts the current summary for archiving.
func (g *Generation) GenerationRow(source string) store.GenerationRow {
	s := g.Summary()
	row := store.GenerationRow{
		GenerationID: s.GenerationID,
		Seed:         g.seed,
		Width:        g.state.Board.Width,
		Height:       g.state.Board.Height,
		Turns:        s.Turns,
		Agents:       int32(s.Total),
		Alive:        int32(s.Alive),
		Fraction:     s.Fraction,
		Kills:        int32(s.Kills),
		FoodEaten:    int32(s.FoodEaten),
		WallsBuilt:   int32(s.WallsBuilt),
		Starved:      int32(s.Starved),
		StartedNs:    g.started.UnixNano(),
		Source:       source,
	}
	if !g.ended.IsZero() {
		row.FinishedNs = g.ended.UnixNano()
	}
	return row
}

func energyColumn(e uint32) int32 {
	return int32(min(e, game.MaxEnergy))
}

// StateFromTick rebuilds the state archived in row. Food ids are
// renumbered; everything else round-trips.
func StateFromTick(row store.TickRow) (*game.State, error) {
	if row.Width <= 0 || row.Height <= 0 {
		return nil, fmt.Errorf("tick %s/%d: bad size %dx%d", row.GenerationID, row.Turn, row.Width, row.Height)
	}
	s := game.NewState(row.Width, row.Height)
	s.Turn = row.Turn

	for i, pr := range row.Players {
		if int(pr.ID) != i {
			return nil, fmt.Errorf("tick %s/%d: player %d at index %d", row.GenerationID, row.Turn, pr.ID, i)
		}
		facing, err := game.ParseFacing(pr.Facing)
		if err != nil {
			return nil, err
		}
		p := game.Player{
			ID:      pr.ID,
			Pos:     game.Point{X: pr.X, Y: pr.Y},
			Facing:  facing,
			Vitals:  game.Vitals{Energy: uint32(max(pr.Energy, 0)), Status: game.Dead},
			LOS:     game.LineOfSight{Length: pr.LOS, Mode: game.LOSStraight},
			OnBoard: pr.OnBoard,
		}
		if pr.Alive {
			p.Vitals.Status = game.Alive
		}
		if pr.Taken != "" {
			if a, err := game.ParseAction(pr.Taken); err == nil {
				p.LastAction = a
			}
		}
		s.Players = append(s.Players, p)
		if !p.OnBoard {
			continue
		}
		occ, err := s.Board.OccupantAt(p.Pos)
		if err != nil {
			return nil, fmt.Errorf("player %d: %w", p.ID, err)
		}
		if !occ.IsEmpty() {
			return nil, fmt.Errorf("player %d at %s: %w", p.ID, p.Pos, game.ErrCellOccupied)
		}
		_ = s.Board.SetOccupant(p.Pos, game.Occupant{Kind: game.PlayerOccupant, ID: p.ID})
	}

	for i := 0; i < len(row.WallX) && i < len(row.WallY); i++ {
		if _, err := s.BuildWall(game.Point{X: row.WallX[i], Y: row.WallY[i]}); err != nil {
			return nil, err
		}
	}

	for i := 0; i < len(row.FoodX) && i < len(row.FoodY); i++ {
		energy := uint32(1)
		if i < len(row.FoodEnergy) && row.FoodEnergy[i] > 0 {
			energy = uint32(row.FoodEnergy[i])
		}
		kind := game.Plant
		if i < len(row.FoodKind) {
			k, err := game.ParseFoodKind(row.FoodKind[i])
			if err != nil {
				return nil, err
			}
			kind = k
		}
		if _, err := s.PlaceFood(game.Point{X: row.FoodX[i], Y: row.FoodY[i]}, energy, kind); err != nil {
			return nil, err
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("tick %s/%d: %w", row.GenerationID, row.Turn, err)
	}
	return s, nil
}
