// visualize.go - Console visualization for debugging generations.
//
// RenderBoard draws the grid with y growing upwards, one glyph per cell:
// agents show their facing (^ v < >), starved bodies x, plants f, corpses m,
// walls #.
package generation

import (
	"fmt"
	"log"
	"strings"

	"github.com/brensch/runger/game"
)

var facingGlyph = map[game.Facing]string{
	game.Up:    "^",
	game.Down:  "v",
	game.Left:  "<",
	game.Right: ">",
}

func RenderBoard(state *game.State) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n=== Turn %d (alive %d/%d, food %d, walls %d) ===\n",
		state.Turn, state.AliveCount(), len(state.Players), len(state.Food), len(state.Walls)))

	b := state.Board
	for y := b.Height - 1; y >= 0; y-- {
		for x := int32(0); x < b.Width; x++ {
			occ, _ := b.OccupantAt(game.Point{X: x, Y: y})
			sb.WriteString(glyph(state, occ))
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func glyph(state *game.State, occ game.Occupant) string {
	switch occ.Kind {
	case game.PlayerOccupant:
		p := state.Player(occ.ID)
		if p == nil || !p.Alive() {
			return "x"
		}
		return facingGlyph[p.Facing]
	case game.FoodOccupant:
		if f, ok := state.Food[occ.ID]; ok && f.Kind == game.DeadMeat {
			return "m"
		}
		return "f"
	case game.WallOccupant:
		return "#"
	}
	return "."
}

// RenderAgents lists every agent with its vitals and last action.
func RenderAgents(state *game.State) string {
	var sb strings.Builder
	for i := range state.Players {
		p := &state.Players[i]
		where := p.Pos.String()
		if !p.OnBoard {
			where = "removed"
		}
		sb.WriteString(fmt.Sprintf("  #%-3d %-8s %-5s energy=%-4d los=%-2d %-6s last=%s\n",
			p.ID, where, p.Facing, p.Vitals.Energy, p.LOS.Length, p.Vitals.Status, p.LastAction))
	}
	return sb.String()
}

func PrintBoard(state *game.State) {
	log.Print(RenderBoard(state) + RenderAgents(state))
}
