package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < 0 {
		return def
	}
	return n
}

func parseInt64Query(r *http.Request, key string, def int64) int64 {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func zipPoints(xs, ys []int32) []Point {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Point{X: xs[i], Y: ys[i]})
	}
	return out
}

// zipFood pairs the parallel food columns. Missing energy or kind entries
// are left zero.
func zipFood(xs, ys, energy []int32, kinds []string) []Food {
	pts := zipPoints(xs, ys)
	out := make([]Food, 0, len(pts))
	for i, p := range pts {
		f := Food{X: p.X, Y: p.Y}
		if i < len(energy) {
			f.Energy = energy[i]
		}
		if i < len(kinds) {
			f.Kind = kinds[i]
		}
		out = append(out, f)
	}
	return out
}

func asInt32Slice(v any) []int32 {
	if v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []int32:
		return vv
	case []int64:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(x))
		}
		return out
	case []any:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(asInt64(x)))
		}
		return out
	default:
		return nil
	}
}

func asStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			out = append(out, asString(x))
		}
		return out
	default:
		return nil
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case uint32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int32:
		return t != 0
	default:
		return false
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// asPlayers decodes the players list column, which DuckDB returns as a
// slice of maps keyed by parquet field name.
func asPlayers(v any) []Player {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	players := make([]Player, 0, len(list))
	for _, it := range list {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		players = append(players, Player{
			ID:        int32(asInt64(m["id"])),
			X:         int32(asInt64(m["x"])),
			Y:         int32(asInt64(m["y"])),
			Facing:    asString(m["facing"]),
			Energy:    int32(asInt64(m["energy"])),
			Alive:     asBool(m["alive"]),
			OnBoard:   asBool(m["on_board"]),
			LOS:       int32(asInt64(m["los"])),
			Attempted: asString(m["attempted"]),
			Taken:     asString(m["taken"]),
		})
	}
	return players
}
