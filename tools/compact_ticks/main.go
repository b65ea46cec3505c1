package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brensch/runger/executor/generation"
	"github.com/brensch/runger/store"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

func main() {
	inDir := flag.String("in-dir", "data/debug", "Directory containing tick parquet files to compact")
	outDir := flag.String("out-dir", "data/compacted", "Output directory for the compacted file")
	removeInputs := flag.Bool("remove-inputs", false, "Delete input files after a successful compaction")
	flag.Parse()

	absIn, err := filepath.Abs(*inDir)
	if err != nil {
		die("abs in-dir: %v", err)
	}
	absOut, err := filepath.Abs(*outDir)
	if err != nil {
		die("abs out-dir: %v", err)
	}
	if absIn == absOut {
		die("out-dir must be different from in-dir")
	}

	inputs := make([]string, 0, 1024)
	if err := filepath.WalkDir(absIn, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != absIn && d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "ticks_") && strings.HasSuffix(d.Name(), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	}); err != nil {
		die("walk in-dir: %v", err)
	}
	if len(inputs) == 0 {
		die("no tick files found in %s", absIn)
	}
	sort.Strings(inputs)

	if err := os.MkdirAll(filepath.Join(absOut, "tmp"), 0o755); err != nil {
		die("create out-dir: %v", err)
	}
	name := fmt.Sprintf("ticks_%d.parquet", time.Now().UnixNano())
	outPath := filepath.Join(absOut, name)
	tmpOut := filepath.Join(absOut, "tmp", name)

	st, err := compact(inputs, tmpOut)
	if err != nil {
		_ = os.Remove(tmpOut)
		die("compact: %v", err)
	}
	if st.written == 0 {
		_ = os.Remove(tmpOut)
		die("no rows survived compaction")
	}
	if err := os.Rename(tmpOut, outPath); err != nil {
		_ = os.Remove(tmpOut)
		die("rename %s -> %s: %v", tmpOut, outPath, err)
	}

	fmt.Fprintf(os.Stderr, "done: files=%d read=%d written=%d duplicates=%d invalid=%d -> %s\n",
		len(inputs), st.read, st.written, st.duplicates, st.invalid, outPath)

	if *removeInputs {
		for _, in := range inputs {
			if err := os.Remove(in); err != nil {
				fmt.Fprintf(os.Stderr, "remove %s: %v\n", in, err)
			}
		}
	}
}

type stats struct {
	read       int
	written    int
	duplicates int
	invalid    int
}

type tickKey struct {
	generation string
	turn       int32
}

// compact streams every row of inputs into outPath. The first copy of each
// (generation, turn) wins; rows whose state cannot be rebuilt are dropped.
func compact(inputs []string, outPath string) (stats, error) {
	var st stats

	outF, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return st, err
	}
	defer func() {
		_ = outF.Close()
	}()

	writer := parquet.NewGenericWriter[store.TickRow](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	writer.SetKeyValueMetadata("schema", store.TickSchema)
	defer writer.Close()

	seen := make(map[tickKey]bool)
	for _, inPath := range inputs {
		if err := compactOne(inPath, writer, seen, &st); err != nil {
			return st, fmt.Errorf("%s: %w", inPath, err)
		}
	}

	if err := writer.Close(); err != nil {
		return st, err
	}
	if err := outF.Sync(); err != nil {
		return st, err
	}
	return st, outF.Close()
}

func compactOne(inPath string, writer *parquet.GenericWriter[store.TickRow], seen map[tickKey]bool, st *stats) error {
	inF, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[store.TickRow](inF)
	defer reader.Close()

	buf := make([]store.TickRow, 512)
	keep := make([]store.TickRow, 0, len(buf))
	for {
		n, readErr := reader.Read(buf)
		keep = keep[:0]
		for i := 0; i < n; i++ {
			st.read++
			row := buf[i]
			k := tickKey{row.GenerationID, row.Turn}
			if seen[k] {
				st.duplicates++
				continue
			}
			if _, err := generation.StateFromTick(row); err != nil {
				st.invalid++
				continue
			}
			seen[k] = true
			keep = append(keep, row)
		}
		if len(keep) > 0 {
			if _, err := writer.Write(keep); err != nil {
				return err
			}
			st.written += len(keep)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
