package rules

import "github.com/brensch/runger/game"

// LOSTiles returns the cells an agent at pos facing f can see, nearest first.
// The ray is built by chaining LookingAt and stops at the board edge, so it
// holds at most los.Length points.
func LOSTiles(b *game.Board, pos game.Point, f game.Facing, los game.LineOfSight) []game.Point {
	if los.Length <= 0 {
		return nil
	}
	switch los.Mode {
	case game.LOSStraight:
		return straightRay(b, pos, f, los.Length)
	}
	return nil
}

func straightRay(b *game.Board, pos game.Point, f game.Facing, length int32) []game.Point {
	out := make([]game.Point, 0, length)
	cur := pos
	for i := int32(0); i < length; i++ {
		next, _, ok := b.LookingAt(cur, f)
		if !ok {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

// FirstHit returns the first non-empty cell along tiles and its 1-based
// distance in the sequence.
func FirstHit(b *game.Board, tiles []game.Point) (pos game.Point, occ game.Occupant, distance int32, ok bool) {
	for i, p := range tiles {
		o, err := b.OccupantAt(p)
		if err != nil {
			continue
		}
		if !o.IsEmpty() {
			return p, o, int32(i + 1), true
		}
	}
	return game.Point{}, game.Occupant{}, 0, false
}

// Sighting is the result of a line-of-sight scan. It carries the kind of
// occupant seen, not a handle to it.
type Sighting struct {
	Scanner  game.PlayerID
	Kind     game.OccupantKind
	Pos      game.Point
	Distance int32
}

// Scan runs a line-of-sight scan for a player without touching any state.
func Scan(s *game.State, id game.PlayerID) (Sighting, bool) {
	p := s.Player(id)
	if p == nil {
		return Sighting{}, false
	}
	tiles := LOSTiles(s.Board, p.Pos, p.Facing, p.LOS)
	pos, occ, dist, ok := FirstHit(s.Board, tiles)
	if !ok {
		return Sighting{}, false
	}
	return Sighting{Scanner: id, Kind: occ.Kind, Pos: pos, Distance: dist}, true
}
