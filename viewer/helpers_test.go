package main

import (
	"net/http/httptest"
	"testing"
)

func TestParseIntQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/generations?limit=25&offset=-3&bad=x", nil)
	if got := parseIntQuery(r, "limit", 10); got != 25 {
		t.Fatalf("limit: got %d", got)
	}
	if got := parseIntQuery(r, "offset", 7); got != 7 {
		t.Fatalf("negative offset should fall back: got %d", got)
	}
	if got := parseIntQuery(r, "bad", 4); got != 4 {
		t.Fatalf("bad value should fall back: got %d", got)
	}
	if got := parseIntQuery(r, "missing", 9); got != 9 {
		t.Fatalf("missing: got %d", got)
	}
}

func TestParseTicksPath(t *testing.T) {
	cases := []struct {
		path    string
		id      string
		turn    int32
		hasTurn bool
		ok      bool
	}{
		{"/api/generations/gen_1_2/ticks", "gen_1_2", 0, false, true},
		{"/api/generations/gen_1_2/ticks/", "gen_1_2", 0, false, true},
		{"/api/generations/gen_1_2/ticks/14", "gen_1_2", 14, true, true},
		{"/api/generations/gen%201/ticks", "gen 1", 0, false, true},
		{"/api/generations/gen_1_2/ticks/-1", "", 0, false, false},
		{"/api/generations/gen_1_2/ticks/x", "", 0, false, false},
		{"/api/generations/gen_1_2", "", 0, false, false},
		{"/api/generations//ticks", "", 0, false, false},
	}
	for _, tc := range cases {
		id, turn, hasTurn, ok := parseTicksPath(tc.path)
		if id != tc.id || turn != tc.turn || hasTurn != tc.hasTurn || ok != tc.ok {
			t.Fatalf("%s: got (%q, %d, %v, %v)", tc.path, id, turn, hasTurn, ok)
		}
	}
}

func TestDecodeNestedColumns(t *testing.T) {
	food := zipFood(asInt32Slice([]any{int32(1), int32(2)}), asInt32Slice([]any{int32(3), int32(4)}),
		asInt32Slice([]any{int32(10)}), asStringSlice([]any{"plant", "dead_meat"}))
	if len(food) != 2 {
		t.Fatalf("food: got %d", len(food))
	}
	if food[0] != (Food{X: 1, Y: 3, Energy: 10, Kind: "plant"}) {
		t.Fatalf("food[0]: %+v", food[0])
	}
	if food[1].Energy != 0 || food[1].Kind != "dead_meat" {
		t.Fatalf("food[1]: %+v", food[1])
	}

	players := asPlayers([]any{
		map[string]any{"id": int32(3), "x": int32(1), "y": int32(2), "facing": "Left", "energy": int32(17),
			"alive": true, "on_board": true, "los": int32(4), "attempted": "Kill", "taken": "Idle"},
		"garbage",
	})
	if len(players) != 1 {
		t.Fatalf("players: got %d", len(players))
	}
	want := Player{ID: 3, X: 1, Y: 2, Facing: "Left", Energy: 17, Alive: true, OnBoard: true, LOS: 4, Attempted: "Kill", Taken: "Idle"}
	if players[0] != want {
		t.Fatalf("player: got %+v want %+v", players[0], want)
	}
	if asPlayers(nil) != nil {
		t.Fatalf("nil players column should decode to nil")
	}
}

func TestPaginateGenerations(t *testing.T) {
	gens := []GenerationSummary{
		{GenerationID: "a", StartedNs: 3, Fraction: 0.5, Kills: 1},
		{GenerationID: "b", StartedNs: 1, Fraction: 0.9, Kills: 4},
		{GenerationID: "c", StartedNs: 2, Fraction: 0.1, Kills: 2},
	}

	got := paginateGenerations(gens, 10, 0, "", "")
	if got[0].GenerationID != "a" || got[2].GenerationID != "b" {
		t.Fatalf("default sort should be newest first: %+v", got)
	}
	got = paginateGenerations(gens, 10, 0, "survival", "asc")
	if got[0].GenerationID != "c" || got[2].GenerationID != "b" {
		t.Fatalf("survival asc: %+v", got)
	}
	got = paginateGenerations(gens, 1, 1, "kills", "desc")
	if len(got) != 1 || got[0].GenerationID != "c" {
		t.Fatalf("kills desc page 2: %+v", got)
	}
	if got := paginateGenerations(gens, 5, 10, "", ""); len(got) != 0 {
		t.Fatalf("offset past end: %+v", got)
	}
	if gens[0].GenerationID != "a" {
		t.Fatalf("input slice was reordered")
	}
}

func TestMakeRelativeToRoots(t *testing.T) {
	got := makeRelativeToRoots("/data/generated/ticks_1.parquet", []string{"/data/generated", "/elsewhere"})
	if got != "/data/generated/ticks_1.parquet" {
		t.Fatalf("got %q", got)
	}
	got = makeRelativeToRoots("/data/generated/sub/../ticks_1.parquet", []string{"/data/generated"})
	if got != "/data/generated/ticks_1.parquet" {
		t.Fatalf("got %q", got)
	}
	if got := makeRelativeToRoots("  ", nil); got != "" {
		t.Fatalf("blank: got %q", got)
	}
}

func TestParseDataRoots(t *testing.T) {
	got := parseDataRoots(" a, b ,,a,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
}
