package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brensch/runger/executor/convert"
	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/game"
	"github.com/brensch/runger/store"
	"github.com/brensch/runger/store/replaydb"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const trainingSchema = "training_row_v1"

// TrainingRow is one agent decision: the egocentric planes the agent saw,
// the action it attempted and whether it was alive when the generation ended.
type TrainingRow struct {
	GenerationID string `parquet:"generation_id,dict"`
	Turn         int32  `parquet:"turn"`
	Player       int32  `parquet:"player"`

	// X holds C*H*W little-endian float32 values.
	X []byte `parquet:"x"`

	Action     int32   `parquet:"action"`
	ActionName string  `parquet:"action_name,dict"`
	Value      float32 `parquet:"value"`

	XC int32 `parquet:"x_c"`
	XH int32 `parquet:"x_h"`
	XW int32 `parquet:"x_w"`

	Source string `parquet:"source,dict"`
}

func main() {
	inDir := flag.String("in-dir", "", "Directory containing tick parquet files")
	replayDB := flag.String("replay-db", "", "Read unexported generations from this SQLite replay db instead of -in-dir")
	maxGenerations := flag.Int("max-generations", 1000, "With -replay-db, export at most this many generations")
	outDir := flag.String("out-dir", "", "Output directory for training parquet files")
	flag.Parse()

	if (*inDir == "" && *replayDB == "") || *outDir == "" {
		fmt.Fprintln(os.Stderr, "-out-dir and one of -in-dir or -replay-db are required")
		os.Exit(2)
	}

	absOut, _ := filepath.Abs(*outDir)
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create out-dir: %v\n", err)
		os.Exit(2)
	}

	if *replayDB != "" {
		db, err := replaydb.New(*replayDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open replay db: %v\n", err)
			os.Exit(2)
		}
		defer db.Close()

		outPath := filepath.Join(absOut, fmt.Sprintf("replays_%d.train.parquet", time.Now().UnixNano()))
		rows, gens, err := exportFromReplayDB(db, outPath, *maxGenerations)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
		if rows == 0 {
			fmt.Fprintln(os.Stderr, "no output written (no unexported generations)")
			os.Exit(1)
		}
		fmt.Printf("%s: %d rows from %d generations\n", outPath, rows, gens)
		return
	}

	absIn, _ := filepath.Abs(*inDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}

	// Clean old outputs to avoid unbounded growth.
	_ = filepath.WalkDir(absOut, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".train.parquet") {
			_ = os.Remove(path)
		}
		return nil
	})

	inputs := findTickFiles(absIn)
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "no tick parquet inputs found")
		os.Exit(1)
	}

	convertedFiles := 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := convertOne(inPath, outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "convert %s: %v\n", inPath, err)
			continue
		}
		if n > 0 {
			convertedFiles++
			fmt.Printf("%s: %d rows\n", outPath, n)
		}
	}

	if convertedFiles == 0 {
		fmt.Fprintln(os.Stderr, "no output written (no convertible rows)")
		os.Exit(1)
	}
}

// exportFromReplayDB converts up to maxGenerations unexported generations
// into one training file and marks each converted generation as exported.
// Generations that fail to convert stay unexported.
func exportFromReplayDB(db *replaydb.DB, outPath string, maxGenerations int) (rows int, generations int, err error) {
	gens, err := db.GetUnexported(maxGenerations)
	if err != nil {
		return 0, 0, fmt.Errorf("list unexported: %w", err)
	}

	var all []TrainingRow
	done := make([]string, 0, len(gens))
	for _, g := range gens {
		ticks, err := db.GetTicks(g.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", g.ID, err)
			continue
		}
		converted, err := trainingRows(ticks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "convert %s: %v\n", g.ID, err)
			continue
		}
		all = append(all, converted...)
		done = append(done, g.ID)
	}
	if len(all) == 0 {
		return 0, 0, nil
	}

	if err := writeTrainingFile(outPath, all); err != nil {
		return 0, 0, err
	}
	for _, id := range done {
		if err := db.MarkExported(id); err != nil {
			fmt.Fprintf(os.Stderr, "mark %s exported: %v\n", id, err)
		}
	}
	return len(all), len(done), nil
}

func findTickFiles(root string) []string {
	inputs := make([]string, 0, 1024)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tmp" || name == "generations") {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "ticks_") && strings.HasSuffix(name, ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	sort.Strings(inputs)
	return inputs
}

func convertOne(inPath string, outPath string) (int, error) {
	ticks, err := store.ReadTicks(inPath)
	if err != nil {
		return 0, err
	}
	rows, err := trainingRows(ticks)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := writeTrainingFile(outPath, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func writeTrainingFile(outPath string, rows []TrainingRow) error {
	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	if err := parquet.WriteFile(outTmp, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", trainingSchema),
	); err != nil {
		_ = os.Remove(outTmp)
		return err
	}
	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return err
	}
	return nil
}

// trainingRows pairs each archived state with the intents submitted on the
// following tick. Turns whose predecessor is missing are skipped.
func trainingRows(ticks []store.TickRow) ([]TrainingRow, error) {
	byGen := make(map[string][]store.TickRow)
	order := make([]string, 0)
	for _, t := range ticks {
		if _, ok := byGen[t.GenerationID]; !ok {
			order = append(order, t.GenerationID)
		}
		byGen[t.GenerationID] = append(byGen[t.GenerationID], t)
	}

	var out []TrainingRow
	buf := convert.GetFloatBuffer()
	defer convert.PutFloatBuffer(buf)

	for _, id := range order {
		gen := byGen[id]
		sort.Slice(gen, func(i, j int) bool { return gen[i].Turn < gen[j].Turn })

		final := gen[len(gen)-1]
		survived := make(map[int32]bool, len(final.Players))
		for _, p := range final.Players {
			survived[p.ID] = p.Alive
		}

		for k := 0; k+1 < len(gen); k++ {
			prev, next := gen[k], gen[k+1]
			if next.Turn != prev.Turn+1 {
				continue
			}
			state, err := generation.StateFromTick(prev)
			if err != nil {
				return nil, err
			}
			for _, p := range next.Players {
				if p.Attempted == "" {
					continue
				}
				action, err := game.ParseAction(p.Attempted)
				if err != nil {
					return nil, fmt.Errorf("generation %s turn %d player %d: %w", id, next.Turn, p.ID, err)
				}
				ego := state.Player(p.ID)
				if ego == nil {
					continue
				}
				clear(*buf)
				convert.EncodeInto(*buf, state, ego)

				value := float32(-1)
				if survived[p.ID] {
					value = 1
				}
				out = append(out, TrainingRow{
					GenerationID: id,
					Turn:         next.Turn,
					Player:       p.ID,
					X:            floatsToBytes(*buf),
					Action:       int32(action),
					ActionName:   action.String(),
					Value:        value,
					XC:           int32(convert.Channels),
					XH:           int32(convert.Height),
					XW:           int32(convert.Width),
					Source:       next.Source,
				})
			}
		}
	}
	return out, nil
}

func floatsToBytes(data []float32) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}
