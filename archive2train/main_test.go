package main

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/runger/executor/convert"
	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/store"
	"github.com/brensch/runger/store/replaydb"
)

func playGeneration(t *testing.T) []store.TickRow {
	t.Helper()
	cfg := generation.DefaultConfig()
	cfg.GridSize = 8
	cfg.Agents = 6
	cfg.GenerationLength = 15
	cfg.Seed = 3
	g, err := generation.New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var rows []store.TickRow
	if _, err := g.Run(context.Background(), func(g *generation.Generation, res generation.TickResult) error {
		rows = append(rows, g.TickRow(res, "test"))
		return nil
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	return rows
}

func TestTrainingRowsPairsStateWithNextIntent(t *testing.T) {
	ticks := playGeneration(t)

	want := 0
	for _, tk := range ticks[1:] {
		for _, p := range tk.Players {
			if p.Attempted != "" {
				want++
			}
		}
	}

	rows, err := trainingRows(ticks)
	if err != nil {
		t.Fatalf("training rows: %v", err)
	}
	if len(rows) != want {
		t.Fatalf("rows: got %d want %d", len(rows), want)
	}

	final := ticks[len(ticks)-1]
	for _, r := range rows {
		if r.Turn == ticks[0].Turn {
			t.Fatalf("first archived turn has no prior state but produced a row")
		}
		if len(r.X) != 4*convert.FloatSize {
			t.Fatalf("x bytes: got %d want %d", len(r.X), 4*convert.FloatSize)
		}
		alive := final.Players[r.Player].Alive
		if (r.Value == 1) != alive || (r.Value != 1 && r.Value != -1) {
			t.Fatalf("player %d value=%v alive=%v", r.Player, r.Value, alive)
		}
		// The ego cell is always in bounds.
		off := 4 * convert.Index(convert.ChanInBounds, convert.Radius, convert.Radius)
		if v := math.Float32frombits(binary.LittleEndian.Uint32(r.X[off:])); v != 1 {
			t.Fatalf("ego in-bounds plane: got %v", v)
		}
	}
}

func TestTrainingRowsSkipsGaps(t *testing.T) {
	ticks := playGeneration(t)
	// Drop a middle turn; the pair spanning the gap is not usable.
	gapped := append(append([]store.TickRow(nil), ticks[:5]...), ticks[6:]...)

	full, err := trainingRows(ticks)
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	rows, err := trainingRows(gapped)
	if err != nil {
		t.Fatalf("gapped: %v", err)
	}
	for _, r := range rows {
		if r.Turn == ticks[5].Turn || r.Turn == ticks[6].Turn {
			t.Fatalf("row for turn %d spans the gap", r.Turn)
		}
	}
	if len(rows) >= len(full) {
		t.Fatalf("gap did not remove rows: %d vs %d", len(rows), len(full))
	}
}

func TestConvertOneWritesParquet(t *testing.T) {
	dir := t.TempDir()
	in, err := store.WriteTicksBatchAtomic(dir, playGeneration(t))
	if err != nil {
		t.Fatalf("write ticks: %v", err)
	}
	if got := findTickFiles(dir); len(got) != 1 || got[0] != in {
		t.Fatalf("find: %v", got)
	}

	out := filepath.Join(dir, "out", "x.train.parquet")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	n, err := convertOne(in, out)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if n == 0 {
		t.Fatalf("no rows written")
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestExportFromReplayDBMarksExported(t *testing.T) {
	dir := t.TempDir()
	db, err := replaydb.New(filepath.Join(dir, "replays.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ticks := playGeneration(t)
	if err := db.InsertGeneration(store.GenerationRow{GenerationID: ticks[0].GenerationID}, ticks); err != nil {
		t.Fatalf("insert: %v", err)
	}

	want, err := trainingRows(ticks)
	if err != nil {
		t.Fatalf("training rows: %v", err)
	}

	out := filepath.Join(dir, "replays.train.parquet")
	n, gens, err := exportFromReplayDB(db, out, 10)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != len(want) || gens != 1 {
		t.Fatalf("export: rows=%d gens=%d want rows=%d", n, gens, len(want))
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}

	// Nothing is left to export on a second pass.
	n, gens, err = exportFromReplayDB(db, filepath.Join(dir, "again.train.parquet"), 10)
	if err != nil || n != 0 || gens != 0 {
		t.Fatalf("second export: rows=%d gens=%d err=%v", n, gens, err)
	}
}
