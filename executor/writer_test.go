package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/brensch/runger/store"
	"github.com/brensch/runger/store/replaydb"
)

func TestArchiveWriterLoopRotates(t *testing.T) {
	dir := t.TempDir()
	summaries, err := store.OpenSummaryLog(filepath.Join(dir, "summaries.jsonl"))
	if err != nil {
		t.Fatalf("open summary log: %v", err)
	}
	defer summaries.Close()

	in := make(chan generationWriteRequest, 8)
	for i, id := range []string{"gen_a", "gen_b", "gen_c", "gen_a"} {
		in <- generationWriteRequest{
			ticks:   []store.TickRow{{GenerationID: id, Turn: 0}, {GenerationID: id, Turn: int32(i + 1)}},
			summary: store.GenerationRow{GenerationID: id, StartedNs: int64(i)},
		}
	}
	close(in)

	replays, err := replaydb.New(filepath.Join(dir, "replays.db"))
	if err != nil {
		t.Fatalf("open replay db: %v", err)
	}
	defer replays.Close()

	archiveWriterLoop(dir, 2, summaries, replays, slog.New(slog.NewTextHandler(io.Discard, nil)), in)

	ticks, err := filepath.Glob(filepath.Join(dir, "ticks_*.parquet"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("tick files: got %d want 2", len(ticks))
	}
	gens, err := filepath.Glob(filepath.Join(dir, "generations", "generations_*.parquet"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("generation files: got %d want 2", len(gens))
	}

	// gen_a was sent twice; the duplicate is skipped once it is logged.
	if got := summaries.Count(); got != 3 {
		t.Fatalf("summary log count: got %d want 3", got)
	}
	total, _, frames, err := replays.Stats()
	if err != nil {
		t.Fatalf("replay stats: %v", err)
	}
	if total != 3 || frames != 6 {
		t.Fatalf("replay db: generations=%d frames=%d", total, frames)
	}

	rowCount := 0
	for _, p := range ticks {
		rows, err := store.ReadTicks(p)
		if err != nil {
			t.Fatalf("read ticks: %v", err)
		}
		rowCount += len(rows)
	}
	if rowCount != 6 {
		t.Fatalf("tick rows: got %d want 6", rowCount)
	}
}
