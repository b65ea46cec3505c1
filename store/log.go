package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SummaryLog records finished generations in an append-only JSON lines file,
// one GenerationRow per line.
//
// On open the existing file is read into memory. A partial final line left
// by a crash is skipped. Add appends and fsyncs.
type SummaryLog struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	entries map[string]GenerationRow
}

func OpenSummaryLog(path string) (*SummaryLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}

	entries := make(map[string]GenerationRow)
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var row GenerationRow
			if err := json.Unmarshal(line, &row); err != nil || row.GenerationID == "" {
				continue
			}
			entries[row.GenerationID] = row
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &SummaryLog{
		path:    path,
		file:    file,
		entries: entries,
	}, nil
}

func (l *SummaryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *SummaryLog) Has(generationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[generationID]
	return ok
}

func (l *SummaryLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Rows returns every logged summary ordered by start time.
func (l *SummaryLog) Rows() []GenerationRow {
	l.mu.RLock()
	out := make([]GenerationRow, 0, len(l.entries))
	for _, row := range l.entries {
		out = append(out, row)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedNs != out[j].StartedNs {
			return out[i].StartedNs < out[j].StartedNs
		}
		return out[i].GenerationID < out[j].GenerationID
	})
	return out
}

// Add appends a summary. Generations already in the log are ignored.
func (l *SummaryLog) Add(row GenerationRow) error {
	if row.GenerationID == "" {
		return fmt.Errorf("generation id is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[row.GenerationID]; ok {
		return nil
	}
	if l.file == nil {
		return fmt.Errorf("log file is closed")
	}

	line, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}

	l.entries[row.GenerationID] = row
	return nil
}
