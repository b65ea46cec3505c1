package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// ErrMixedGenerations is returned when rows of a second generation are
// written before the open one is ended.
var ErrMixedGenerations = errors.New("rows from more than one generation")

// GenerationsKey is the footer metadata key holding the number of
// generations in a tick file.
const GenerationsKey = "generations"

// BatchWriter streams tick rows of many generations into one parquet file
// under outDir/tmp and moves it into outDir on Finalize. Each generation is
// closed into its own row group, so readers can skip whole generations.
type BatchWriter struct {
	outDir string
	tmpDir string

	name    string
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TickRow]

	// open is the generation whose rows are not yet flushed.
	open string

	bufferedGenerations int
	bufferedRows        int
}

func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("ticks_%d.parquet", time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name)
	outPath := filepath.Join(absOut, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TickRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", TickSchema)

	return &BatchWriter{
		outDir:  absOut,
		tmpDir:  tmpDir,
		name:    name,
		tmpPath: tmpPath,
		outPath: outPath,
		file:    f,
		writer:  w,
	}, nil
}

func (b *BatchWriter) TmpPath() string          { return b.tmpPath }
func (b *BatchWriter) OutPath() string          { return b.outPath }
func (b *BatchWriter) BufferedGenerations() int { return b.bufferedGenerations }
func (b *BatchWriter) BufferedRows() int        { return b.bufferedRows }

// WriteRows appends rows to the open generation. All rows must belong to
// one generation until EndGeneration is called.
func (b *BatchWriter) WriteRows(rows []TickRow) error {
	if b.writer == nil || b.file == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	id := b.open
	if id == "" {
		id = rows[0].GenerationID
	}
	for _, r := range rows {
		if r.GenerationID != id {
			return fmt.Errorf("row of %s in open generation %s: %w", r.GenerationID, id, ErrMixedGenerations)
		}
	}
	if _, err := b.writer.Write(rows); err != nil {
		return err
	}
	b.open = id
	b.bufferedRows += len(rows)
	return nil
}

// EndGeneration flushes the open generation into its own row group. It is a
// no-op when no rows were written since the last call.
func (b *BatchWriter) EndGeneration() error {
	if b.writer == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if b.open == "" {
		return nil
	}
	if err := b.writer.Flush(); err != nil {
		return fmt.Errorf("flush generation %s: %w", b.open, err)
	}
	b.open = ""
	b.bufferedGenerations++
	return nil
}

// Finalize closes the parquet writer and moves the file from tmp/ to outDir.
// If no rows were written, the tmp file is removed and outPath is returned empty.
func (b *BatchWriter) Finalize() (outPath string, rows int, generations int, err error) {
	if b.writer == nil && b.file == nil {
		return "", 0, 0, nil
	}

	rows = b.bufferedRows
	generations = b.bufferedGenerations
	outPath = b.outPath

	var closeErr error
	if b.writer != nil {
		if b.open != "" {
			generations++
			b.open = ""
		}
		b.writer.SetKeyValueMetadata(GenerationsKey, strconv.Itoa(generations))
		closeErr = b.writer.Close()
		b.writer = nil
	}
	var fileErr error
	if b.file != nil {
		_ = b.file.Sync()
		fileErr = b.file.Close()
		b.file = nil
	}
	if closeErr != nil {
		return "", 0, 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, 0, fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, rows, generations, nil
}
