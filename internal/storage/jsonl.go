package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"taostats/internal/model"
)

// JsonlJournal appends outcomes to a JSONL file. Pool snapshots go to a
// sibling file with a ".pools" suffix before the extension.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

// Path is the outcome file.
func (s *JsonlJournal) Path() string {
	return s.path
}

// PoolsPath is the pool snapshot file.
func (s *JsonlJournal) PoolsPath() string {
	ext := filepath.Ext(s.path)
	return strings.TrimSuffix(s.path, ext) + ".pools" + ext
}

// Record appends one outcome as a JSON line.
func (s *JsonlJournal) Record(_ context.Context, rec model.OutcomeRecord) error {
	return s.appendLines(s.path, []any{rec})
}

// PutPoolSnapshots appends a batch of pool readings as JSON lines.
func (s *JsonlJournal) PutPoolSnapshots(_ context.Context, snaps []model.PoolSnapshotRecord) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]any, len(snaps))
	for i := range snaps {
		rows[i] = snaps[i]
	}
	return s.appendLines(s.PoolsPath(), rows)
}

func (s *JsonlJournal) appendLines(path string, rows []any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// ReadOutcomes loads every outcome in the journal, oldest first.
func (s *JsonlJournal) ReadOutcomes() ([]model.OutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []model.OutcomeRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec model.OutcomeRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("decode journal line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}
