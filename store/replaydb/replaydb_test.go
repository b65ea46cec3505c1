package replaydb

import (
	"path/filepath"
	"testing"

	"github.com/brensch/runger/store"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "replays.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ticksFor(id string, n int) []store.TickRow {
	out := make([]store.TickRow, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, store.TickRow{
			GenerationID: id,
			Turn:         int32(i),
			Width:        4,
			Height:       4,
			FoodX:        []int32{1},
			FoodY:        []int32{2},
			Players:      []store.PlayerRow{{ID: 0, X: 3, Y: 3, Facing: "Left", Energy: 9, Alive: true, OnBoard: true, Attempted: "Eat"}},
			Source:       "test",
		})
	}
	return out
}

func TestInsertAndReadBack(t *testing.T) {
	db := openTemp(t)

	if err := db.InsertGeneration(store.GenerationRow{GenerationID: "gen_1_0", Seed: 5, Turns: 3, Agents: 1, Alive: 1}, ticksFor("gen_1_0", 3)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// A second insert of the same generation is ignored.
	if err := db.InsertGeneration(store.GenerationRow{GenerationID: "gen_1_0", Seed: 99}, ticksFor("gen_1_0", 1)); err != nil {
		t.Fatalf("reinsert: %v", err)
	}

	ok, err := db.GenerationExists("gen_1_0")
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
	ok, err = db.GenerationExists("missing")
	if err != nil || ok {
		t.Fatalf("missing exists: %v %v", ok, err)
	}

	ticks, err := db.GetTicks("gen_1_0")
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 3 {
		t.Fatalf("ticks: got %d want 3", len(ticks))
	}
	for i, tk := range ticks {
		if tk.Turn != int32(i) {
			t.Fatalf("tick %d has turn %d", i, tk.Turn)
		}
		if len(tk.Players) != 1 || tk.Players[0].Facing != "Left" || tk.Players[0].Attempted != "Eat" {
			t.Fatalf("players not preserved: %+v", tk.Players)
		}
	}

	gens, err := db.GetUnexported(10)
	if err != nil {
		t.Fatalf("unexported: %v", err)
	}
	if len(gens) != 1 || gens[0].Seed != 5 || gens[0].Source != "test" {
		t.Fatalf("unexported: %+v", gens)
	}
}

func TestMarkExported(t *testing.T) {
	db := openTemp(t)
	for _, id := range []string{"a", "b"} {
		if err := db.InsertGeneration(store.GenerationRow{GenerationID: id}, ticksFor(id, 2)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if err := db.MarkExported("a"); err != nil {
		t.Fatalf("mark: %v", err)
	}

	gens, err := db.GetUnexported(10)
	if err != nil {
		t.Fatalf("unexported: %v", err)
	}
	if len(gens) != 1 || gens[0].ID != "b" {
		t.Fatalf("unexported: %+v", gens)
	}

	total, exported, frames, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if total != 2 || exported != 1 || frames != 4 {
		t.Fatalf("stats: total=%d exported=%d frames=%d", total, exported, frames)
	}
}

func TestInsertRequiresID(t *testing.T) {
	db := openTemp(t)
	if err := db.InsertGeneration(store.GenerationRow{}, nil); err == nil {
		t.Fatal("expected error for empty id")
	}
}
