// Package convert encodes a state from one agent's point of view into the
// float32 planes consumed by the policy network.
//
// The view is a square window centred on the agent and rotated so the agent
// always faces up: row Radius+1 is the cell it is looking at. Cells off the
// board read as walls.
package convert

import (
	"sync"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/rules"
)

const (
	Radius    = 5
	Width     = 2*Radius + 1
	Height    = 2*Radius + 1
	Channels  = 8
	FloatSize = Channels * Width * Height

	// EnergyScale normalizes energy values into roughly [0,1].
	EnergyScale = 100
)

// Channel layout.
const (
	ChanInBounds = iota
	ChanWall
	ChanPlant
	ChanDeadMeat
	ChanLivePlayer
	ChanDeadPlayer
	ChanEgoEnergy
	ChanSight
)

var ChannelNames = [Channels]string{
	"in_bounds", "wall", "plant", "dead_meat", "live_player", "dead_player", "ego_energy", "sight",
}

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, FloatSize)
		return &b
	},
}

func GetFloatBuffer() *[]float32 {
	return floatPool.Get().(*[]float32)
}

func PutFloatBuffer(b *[]float32) {
	floatPool.Put(b)
}

// Index returns the offset of (c, x, y) in a (C, H, W) buffer, where x and y
// are view coordinates with the agent at (Radius, Radius).
func Index(c, x, y int) int {
	return c*Height*Width + y*Width + x
}

// ViewToWorld maps view coordinates to the board for an agent at pos facing f.
func ViewToWorld(pos game.Point, f game.Facing, x, y int) game.Point {
	fdx, fdy := f.Delta()
	rdx, rdy := f.Rotate(game.RotateRight).Delta()
	ex := int32(x - Radius)
	ey := int32(y - Radius)
	return game.Point{
		X: pos.X + ex*rdx + ey*fdx,
		Y: pos.Y + ex*rdy + ey*fdy,
	}
}

// StateToFloat32 encodes state from the perspective of player id into a
// pooled buffer with shape (C, H, W). The caller must return it with
// PutFloatBuffer. Unknown ids yield an all-zero buffer.
func StateToFloat32(state *game.State, id game.PlayerID) *[]float32 {
	dataPtr := GetFloatBuffer()
	data := *dataPtr
	clear(data)

	ego := state.Player(id)
	if ego == nil {
		return dataPtr
	}
	EncodeInto(data, state, ego)
	return dataPtr
}

// EncodeInto writes ego's view into data, which must hold FloatSize values
// and be zeroed.
func EncodeInto(data []float32, state *game.State, ego *game.Player) {
	b := state.Board
	energy := clamp01(float32(ego.Vitals.Energy) / EnergyScale)

	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			data[Index(ChanEgoEnergy, x, y)] = energy

			p := ViewToWorld(ego.Pos, ego.Facing, x, y)
			occ, err := b.OccupantAt(p)
			if err != nil {
				data[Index(ChanWall, x, y)] = 1
				continue
			}
			data[Index(ChanInBounds, x, y)] = 1

			switch occ.Kind {
			case game.WallOccupant:
				data[Index(ChanWall, x, y)] = 1
			case game.FoodOccupant:
				f := state.Food[occ.ID]
				c := ChanPlant
				if f.Kind == game.DeadMeat {
					c = ChanDeadMeat
				}
				data[Index(c, x, y)] = clamp01(float32(f.Energy) / EnergyScale)
			case game.PlayerOccupant:
				if occ.ID == ego.ID {
					continue
				}
				if pl := state.Player(occ.ID); pl != nil && pl.Alive() {
					data[Index(ChanLivePlayer, x, y)] = 1
				} else {
					data[Index(ChanDeadPlayer, x, y)] = 1
				}
			}
		}
	}

	// Sight: straight ahead from the agent, i.e. column Radius upwards.
	tiles := rules.LOSTiles(b, ego.Pos, ego.Facing, ego.LOS)
	for i := range tiles {
		y := Radius + 1 + i
		if y >= Height {
			break
		}
		data[Index(ChanSight, Radius, y)] = 1
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
