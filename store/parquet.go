package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const (
	TickSchema       = "tick_row_v1"
	GenerationSchema = "generation_row_v1"
)

var ErrNoRows = errors.New("no rows")

// WriteTicksParquet writes rows to outPath through a tmp file and rename.
func WriteTicksParquet(outPath string, rows []TickRow) error {
	return writeAtomic(outPath, outPath+".tmp", rows, TickSchema)
}

// WriteTicksBatchAtomic writes rows into outDir/tmp and then moves the file
// into outDir, so readers never observe a partial file.
func WriteTicksBatchAtomic(outDir string, rows []TickRow) (string, error) {
	return writeBatchAtomic(outDir, "ticks", rows, TickSchema)
}

// WriteGenerationsBatchAtomic is WriteTicksBatchAtomic for summaries.
// Summary files live under outDir/generations.
func WriteGenerationsBatchAtomic(outDir string, rows []GenerationRow) (string, error) {
	return writeBatchAtomic(filepath.Join(outDir, "generations"), "generations", rows, GenerationSchema)
}

func writeBatchAtomic[T any](outDir, prefix string, rows []T, schema string) (string, error) {
	if len(rows) == 0 {
		return "", ErrNoRows
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.parquet", prefix, time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	if err := writeAtomic(finalPath, tmpPath, rows, schema); err != nil {
		return "", err
	}
	return finalPath, nil
}

func writeAtomic[T any](outPath, tmpPath string, rows []T, schema string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

func ReadTicks(path string) ([]TickRow, error) {
	rows, err := parquet.ReadFile[TickRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func ReadGenerations(path string) ([]GenerationRow, error) {
	rows, err := parquet.ReadFile[GenerationRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
