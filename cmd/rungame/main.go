package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/executor/inference"
	"github.com/brensch/runger/rules"
	"github.com/brensch/runger/store"
	"github.com/brensch/runger/store/replaydb"
)

func main() {
	configPath := flag.String("config", "", "Optional JSON generation config file")
	modelPath := flag.String("model", "", "ONNX policy model. Empty uses the uniform random strategy")
	cuda := flag.Bool("cuda", false, "Enable CUDA for inference")
	outDir := flag.String("out-dir", filepath.Join("data", "debug"), "Output directory for the generation archive")
	seed := flag.Int64("seed", 0, "Seed. 0 picks a time-based seed")
	board := flag.Bool("board", true, "Print the board after every tick")
	replayPath := flag.String("replay-db", "", "Optional SQLite replay db to record the generation in")
	viewerHost := flag.String("viewer", "http://localhost:8080", "Viewer base URL")
	flag.Parse()

	cfg := generation.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = generation.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	var strategy generation.Strategy
	source := "uniform"
	if *modelPath != "" {
		log.Printf("Loading model: %s", *modelPath)
		pool, err := inference.NewOnnxClientPoolWithConfig(*modelPath, 1, inference.OnnxClientConfig{UseCUDA: *cuda})
		if err != nil {
			log.Fatalf("Failed to load model: %v", err)
		}
		defer pool.Close()
		actions, err := cfg.Actions()
		if err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		strategy = inference.NewPolicyStrategy(pool, actions)
		source = "policy"
	}

	// Deaths and kills are printed as they resolve.
	obs := rules.ObserverFunc(func(n rules.Notification) {
		switch n.Kind {
		case rules.Killed, rules.Died:
			fmt.Printf("    %s player=%d at %s\n", n.Kind, n.Player, n.Pos)
		}
	})

	g, err := generation.New(cfg, strategy, generation.WithObserver(obs))
	if err != nil {
		log.Fatalf("Failed to create generation: %v", err)
	}
	log.Printf("Running generation %s (seed %d, %dx%d, %d agents, %d ticks)",
		g.ID(), g.Seed(), cfg.GridSize, cfg.GridSize, cfg.Agents, cfg.GenerationLength)
	if *board {
		generation.PrintBoard(g.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rows := make([]store.TickRow, 0, cfg.GenerationLength)
	summary, err := g.Run(ctx, func(g *generation.Generation, res generation.TickResult) error {
		fmt.Printf("  Turn %3d | %d alive | %d sightings | %d errors\n",
			res.Turn, g.State().AliveCount(), len(res.Report.Sightings), len(res.Report.Errors))
		if *board {
			generation.PrintBoard(g.State())
		}
		row := g.TickRow(res, source)
		row.ModelPath = *modelPath
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		log.Fatalf("Generation aborted: %v", err)
	}

	log.Printf("Generation complete: %d ticks, %d/%d alive (%.1f%%), kills=%d eaten=%d walls=%d starved=%d",
		summary.Turns, summary.Alive, summary.Total, summary.Fraction*100,
		summary.Kills, summary.FoodEaten, summary.WallsBuilt, summary.Starved)

	tickPath := filepath.Join(*outDir, "ticks_"+g.ID()+".parquet")
	if err := store.WriteTicksParquet(tickPath, rows); err != nil {
		log.Fatalf("Failed to write ticks: %v", err)
	}
	sumPath, err := store.WriteGenerationsBatchAtomic(*outDir, []store.GenerationRow{g.GenerationRow(source)})
	if err != nil {
		log.Fatalf("Failed to write summary: %v", err)
	}
	log.Printf("Ticks written to: %s", tickPath)
	log.Printf("Summary written to: %s", sumPath)

	if *replayPath != "" {
		db, err := replaydb.New(*replayPath)
		if err != nil {
			log.Fatalf("Failed to open replay db: %v", err)
		}
		defer db.Close()
		if err := db.InsertGeneration(g.GenerationRow(source), rows); err != nil {
			log.Fatalf("Failed to record replay: %v", err)
		}
		log.Printf("Replay recorded in: %s", *replayPath)
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Generation archived. Inspect it with the viewer:\n")
	fmt.Printf("  %s/api/generations/%s/ticks\n", *viewerHost, g.ID())
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
