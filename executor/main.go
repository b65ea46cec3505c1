package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/executor/inference"
	"github.com/brensch/runger/logging"
	"github.com/brensch/runger/store"
	"github.com/brensch/runger/store/replaydb"
	"github.com/brensch/runger/stream"
	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	configPath := flag.String("config", getEnvOrDefault("RUNGER_CONFIG", ""), "Optional JSON generation config file")
	writeConfig := flag.String("write-config", "", "Write the effective generation config to this path and exit")
	outDir := flag.String("out-dir", getEnvOrDefault("RUNGER_OUT_DIR", "data/generated"), "Output directory for tick and generation parquet files")
	summaryPath := flag.String("summary-log", getEnvOrDefault("RUNGER_SUMMARY_LOG", "data/generated/summaries.jsonl"), "Append-only log of archived generation summaries")
	replayPath := flag.String("replay-db", getEnvOrDefault("RUNGER_REPLAY_DB", ""), "Optional SQLite file that also records every archived generation")
	workers := flag.Int("workers", getEnvIntOrDefault("RUNGER_WORKERS", 4), "Number of generations run in parallel")
	maxGenerations := flag.Int64("generations", int64(getEnvIntOrDefault("RUNGER_GENERATIONS", 0)), "If > 0, stop after this many generations (across all workers)")
	perFlush := flag.Int("generations-per-flush", getEnvIntOrDefault("RUNGER_GENERATIONS_PER_FLUSH", 50), "Generations buffered per parquet file")
	modelPath := flag.String("model", getEnvOrDefault("RUNGER_MODEL", ""), "ONNX policy model. Empty uses the uniform random strategy")
	sample := flag.Bool("sample", getEnvBoolOrDefault("RUNGER_SAMPLE", true), "Sample actions from the policy instead of taking the argmax")
	onnxSessions := flag.Int("onnx-sessions", getEnvIntOrDefault("RUNGER_ONNX_SESSIONS", 1), "Number of ONNX Runtime sessions to run in parallel")
	onnxBatchSize := flag.Int("onnx-batch-size", getEnvIntOrDefault("RUNGER_ONNX_BATCH_SIZE", inference.DefaultBatchSize), "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", getEnvDurationOrDefault("RUNGER_ONNX_BATCH_TIMEOUT", inference.DefaultBatchTimeout), "Max time to wait for filling an ONNX batch")
	onnxCUDA := flag.Bool("onnx-cuda", getEnvBoolOrDefault("RUNGER_ONNX_CUDA", false), "Use the CUDA execution provider")
	listen := flag.String("listen", getEnvOrDefault("RUNGER_LISTEN", ""), "If set, serve a websocket feed of worker 0's generations at ws://<listen>/ws")
	tui := flag.Bool("tui", getEnvBoolOrDefault("RUNGER_TUI", false), "Show a live dashboard instead of periodic log lines")
	logFormat := flag.String("log-format", getEnvOrDefault("RUNGER_LOG_FORMAT", logging.FormatText), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", getEnvOrDefault("RUNGER_LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	cf := registerConfigFlags(flag.CommandLine)
	flag.Parse()

	// The dashboard owns the terminal, so logs go to a file.
	var logOut io.Writer = os.Stderr
	if *tui {
		f, err := os.OpenFile("executor.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
		logOut = f
	}
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Bad -log-level: %v", err)
	}
	logger, err := logging.NewLogger(logOut, *logFormat, level)
	if err != nil {
		log.Fatalf("Bad -log-format: %v", err)
	}
	slog.SetDefault(logger)

	cfg, err := loadBaseConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg = cf.apply(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if *writeConfig != "" {
		if err := generation.SaveConfig(*writeConfig, cfg); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Printf("Wrote config to %s", *writeConfig)
		return
	}
	actions, err := cfg.Actions()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	baseSeed := cfg.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var pool *inference.OnnxPool
	source := "uniform"
	if *modelPath != "" {
		if _, err := os.Stat(*modelPath); os.IsNotExist(err) {
			log.Fatalf("Model file not found: %s", *modelPath)
		}
		pool, err = inference.NewOnnxClientPoolWithConfig(*modelPath, *onnxSessions, inference.OnnxClientConfig{
			BatchSize:    *onnxBatchSize,
			BatchTimeout: *onnxBatchTimeout,
			UseCUDA:      *onnxCUDA,
			Logger:       logger,
		})
		if err != nil {
			log.Fatalf("Failed to create ONNX client pool: %v", err)
		}
		defer pool.Close()
		source = "policy"
		// Every agent of a generation has a request in flight at once.
		if maxInflight := (*workers) * cfg.Agents; *onnxBatchSize > maxInflight {
			log.Printf("NOTE: onnx-batch-size=%d > max in-flight (~workers*agents=%d); batches will rarely fill", *onnxBatchSize, maxInflight)
		}
	}

	var hub *stream.Hub
	var srv *http.Server
	if *listen != "" {
		hub = stream.NewHub(logger.With("component", "stream"))
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv = &http.Server{
			Addr:              *listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("stream server stopped", "error", err)
			}
		}()
		log.Printf("Streaming worker 0 on ws://%s/ws", *listen)
	}

	summaries, err := store.OpenSummaryLog(*summaryPath)
	if err != nil {
		log.Fatalf("Failed to open summary log: %v", err)
	}
	defer summaries.Close()

	var replays *replaydb.DB
	if *replayPath != "" {
		replays, err = replaydb.New(*replayPath)
		if err != nil {
			log.Fatalf("Failed to open replay db: %v", err)
		}
		defer replays.Close()
	}

	log.Printf("Starting runger executor")
	log.Printf("  Out Dir: %s", *outDir)
	log.Printf("  Summary Log: %s (%d already)", *summaryPath, summaries.Count())
	if replays != nil {
		log.Printf("  Replay DB: %s", *replayPath)
	}
	log.Printf("  Workers: %d", *workers)
	log.Printf("  Grid: %dx%d, Agents: %d, Length: %d", cfg.GridSize, cfg.GridSize, cfg.Agents, cfg.GenerationLength)
	log.Printf("  Strategy: %s", source)
	log.Printf("  Base Seed: %d", baseSeed)

	updates := make(chan GenerationUpdate, *workers)
	writeReqs := make(chan generationWriteRequest, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		archiveWriterLoop(*outDir, *perFlush, summaries, replays, logger.With("component", "writer"), writeReqs)
		close(writerDone)
	}()

	var next atomic.Int64
	var workerWG sync.WaitGroup
	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			wlog := logger.With("worker", workerID)
			wlog.Debug("worker started")
			for {
				if ctx.Err() != nil {
					return
				}
				idx := next.Add(1) - 1
				if *maxGenerations > 0 && idx >= *maxGenerations {
					return
				}

				gcfg := cfg
				gcfg.Seed = baseSeed + idx

				var strategy generation.Strategy
				if pool != nil {
					var popts []inference.PolicyOption
					if *sample {
						popts = append(popts, inference.WithSampling(rand.New(rand.NewSource(gcfg.Seed))))
					}
					popts = append(popts, inference.WithPolicyLogger(wlog))
					strategy = inference.NewPolicyStrategy(pool, actions, popts...)
				}

				opts := []generation.Option{generation.WithLogger(wlog)}
				streaming := hub != nil && workerID == 0
				if streaming {
					opts = append(opts, generation.WithObserver(hub))
				}

				g, err := generation.New(gcfg, strategy, opts...)
				if err != nil {
					wlog.Error("generation setup failed", "error", err)
					return
				}

				rows := make([]store.TickRow, 0, gcfg.GenerationLength)
				summary, err := g.Run(ctx, func(g *generation.Generation, res generation.TickResult) error {
					totalTicks.Add(1)
					row := g.TickRow(res, source)
					if pool != nil {
						row.ModelPath = *modelPath
					}
					rows = append(rows, row)
					if streaming {
						hub.Flush(g.ID(), g.State(), res.Turn)
					}
					return nil
				})
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						wlog.Error("generation aborted", "generation", g.ID(), "error", err)
					}
					// Unfinished generations are not archived.
					continue
				}

				totalGenerations.Add(1)
				totalAgents.Add(int64(summary.Total))
				totalSurvivors.Add(int64(summary.Alive))
				if streaming {
					hub.Publish(stream.Frame{Type: "summary", Generation: g.ID(), Turn: summary.Turns, Alive: summary.Alive, Summary: summary})
				}

				writeReqs <- generationWriteRequest{ticks: rows, summary: g.GenerationRow(source)}

				// Avoid blocking shutdown if the UI loop stops consuming.
				select {
				case updates <- GenerationUpdate{WorkerID: workerID, Summary: summary, Rows: len(rows)}:
				default:
				}
			}
		}(i)
	}

	workersDone := make(chan struct{})
	go func() {
		workerWG.Wait()
		close(workersDone)
	}()

	if *tui {
		p := tea.NewProgram(initialModel(updates, cancel), tea.WithAltScreen())
		go func() {
			select {
			case <-ctx.Done():
			case <-workersDone:
			}
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			log.Printf("Dashboard error: %v", err)
		}
		cancel()
	} else {
		logProgress(ctx, workersDone, updates, pool)
	}

	log.Printf("Shutdown requested; waiting for workers to finish current generations...")
	<-workersDone
	close(writeReqs)
	<-writerDone
	if hub != nil {
		hub.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		done()
	}
	log.Printf("Shutdown complete: final parquet flush done (generations=%d)", totalGenerations.Load())
}

// logProgress prints finished generations and throughput until the workers
// stop or ctx is cancelled.
func logProgress(ctx context.Context, workersDone <-chan struct{}, updates <-chan GenerationUpdate, pool *inference.OnnxPool) {
	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-workersDone:
			return
		case u := <-updates:
			log.Printf("Worker %d: %s survived %d/%d (%.1f%%) after %d ticks",
				u.WorkerID, u.Summary.GenerationID, u.Summary.Alive, u.Summary.Total, u.Summary.Fraction*100, u.Summary.Turns)
		case <-ticker.C:
			secs := time.Since(startTime).Seconds()
			ticksPerSec := float64(totalTicks.Load()) / secs
			gensPerSec := float64(totalGenerations.Load()) / secs
			if pool != nil {
				st := pool.Stats()
				log.Printf("Stats: Ticks/s: %.2f, Generations/s: %.3f | batch avg=%.1f last=%d q=%d run avg=%.2fms",
					ticksPerSec, gensPerSec, st.AvgBatchSize, st.LastBatchSize, st.QueueLen, st.AvgRunMs)
			} else {
				log.Printf("Stats: Ticks/s: %.2f, Generations/s: %.3f", ticksPerSec, gensPerSec)
			}
		}
	}
}
