package main

import (
	"log/slog"

	"github.com/brensch/runger/store"
	"github.com/brensch/runger/store/replaydb"
)

// generationWriteRequest carries one finished generation to the writer.
type generationWriteRequest struct {
	ticks   []store.TickRow
	summary store.GenerationRow
}

// archiveWriterLoop streams tick rows into a BatchWriter and rotates it every
// generationsPerFlush generations. Summaries are written alongside each tick
// file and appended to the summary log once their ticks are on disk. When
// replays is non-nil every generation is also recorded there.
func archiveWriterLoop(outDir string, generationsPerFlush int, summaries *store.SummaryLog, replays *replaydb.DB, logger *slog.Logger, in <-chan generationWriteRequest) {
	if generationsPerFlush <= 0 {
		generationsPerFlush = 50
	}

	var bw *store.BatchWriter
	pending := make([]store.GenerationRow, 0, generationsPerFlush)

	flush := func(reason string) {
		if bw == nil {
			return
		}
		outPath, rows, gens, err := bw.Finalize()
		bw = nil
		if err != nil {
			logger.Error("tick archive flush failed", "reason", reason, "generations", gens, "rows", rows, "error", err)
			pending = pending[:0]
			return
		}
		logger.Info("tick archive flushed", "reason", reason, "path", outPath, "generations", gens, "rows", rows)

		if len(pending) == 0 {
			return
		}
		sumPath, err := store.WriteGenerationsBatchAtomic(outDir, pending)
		if err != nil {
			logger.Error("generation summary flush failed", "generations", len(pending), "error", err)
		} else {
			logger.Info("generation summaries flushed", "path", sumPath, "generations", len(pending))
		}
		if summaries != nil {
			for _, row := range pending {
				if err := summaries.Add(row); err != nil {
					logger.Warn("summary log append failed", "generation", row.GenerationID, "error", err)
				}
			}
		}
		pending = pending[:0]
	}

	for req := range in {
		if len(req.ticks) == 0 {
			continue
		}
		if summaries != nil && summaries.Has(req.summary.GenerationID) {
			logger.Warn("generation already archived", "generation", req.summary.GenerationID)
			continue
		}
		if bw == nil {
			w, err := store.NewBatchWriter(outDir)
			if err != nil {
				logger.Error("open tick archive failed", "error", err)
				continue
			}
			bw = w
		}
		if err := bw.WriteRows(req.ticks); err != nil {
			logger.Error("write ticks failed", "generation", req.summary.GenerationID, "error", err)
			continue
		}
		if err := bw.EndGeneration(); err != nil {
			logger.Error("end generation failed", "generation", req.summary.GenerationID, "error", err)
			continue
		}
		pending = append(pending, req.summary)

		if replays != nil {
			if err := replays.InsertGeneration(req.summary, req.ticks); err != nil {
				logger.Warn("replay db insert failed", "generation", req.summary.GenerationID, "error", err)
			}
		}

		if bw.BufferedGenerations() >= generationsPerFlush {
			flush("count")
		}
	}
	flush("final")
}
