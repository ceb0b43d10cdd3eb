package tasks

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

var fileHeader = []string{"id", "type", "name", "status", "description", "duration", "start_time", "end_time", "epic"}

// FileStore keeps snapshots in a CSV file, one row per entity. Durations are
// stored in whole minutes and times in TimeLayout.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create data dir: %w", ErrPersistence, err)
		}
	}
	if err := atomic.WriteFile(s.path, &buf); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, s.path, err)
	}
	return nil
}

// Load returns an empty snapshot when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("%w: open %s: %w", ErrPersistence, s.path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func (s *FileStore) Close() error { return nil }

// WriteCSV encodes snap as tasks, then epics, then subtasks.
func WriteCSV(w io.Writer, snap Snapshot) error {
	return WriteRows(w, snap.All())
}

// WriteRows encodes list in the data file format, keeping its order.
func WriteRows(w io.Writer, list []Task) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fileHeader); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrPersistence, err)
	}
	for _, t := range list {
		if err := cw.Write(encodeRow(t)); err != nil {
			return fmt.Errorf("%w: write %s %d: %w", ErrPersistence, t.Kind, t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrPersistence, err)
	}
	return nil
}

func ReadCSV(r io.Reader) (Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var snap Snapshot
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: line %d: %w", ErrPersistence, line, err)
		}
		if line == 1 && len(rec) > 0 && rec[0] == fileHeader[0] {
			continue
		}
		t, err := decodeRow(rec)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: line %d: %w", ErrPersistence, line, err)
		}
		switch t.Kind {
		case KindTask:
			snap.Tasks = append(snap.Tasks, t)
		case KindEpic:
			snap.Epics = append(snap.Epics, t)
		case KindSubtask:
			snap.Subtasks = append(snap.Subtasks, t)
		}
	}
	return snap, nil
}

func encodeRow(t Task) []string {
	end := ""
	if e, err := t.EndTime(); err == nil {
		end = FormatTime(e)
	}
	epic := ""
	if t.Kind == KindSubtask {
		epic = strconv.Itoa(t.EpicID)
	}
	return []string{
		strconv.Itoa(t.ID),
		string(t.Kind),
		t.Name,
		string(t.Status),
		t.Description,
		strconv.FormatInt(int64(t.Duration/time.Minute), 10),
		FormatTime(t.StartTime),
		end,
		epic,
	}
}

func decodeRow(rec []string) (Task, error) {
	if len(rec) < 8 {
		return Task{}, fmt.Errorf("want at least 8 fields, got %d", len(rec))
	}
	id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return Task{}, fmt.Errorf("bad id %q", rec[0])
	}
	kind, err := ParseKind(rec[1])
	if err != nil {
		return Task{}, err
	}
	status, err := ParseStatus(rec[3])
	if err != nil {
		return Task{}, err
	}
	minutes, err := strconv.ParseInt(strings.TrimSpace(rec[5]), 10, 64)
	if err != nil {
		return Task{}, fmt.Errorf("bad duration %q", rec[5])
	}
	t := Task{
		ID:          id,
		Kind:        kind,
		Name:        rec[2],
		Status:      status,
		Description: rec[4],
		Duration:    time.Duration(minutes) * time.Minute,
	}
	if raw := strings.TrimSpace(rec[6]); raw != "" {
		if t.StartTime, err = ParseTime(raw); err != nil {
			return Task{}, err
		}
	}
	if kind == KindSubtask {
		if len(rec) < 9 {
			return Task{}, fmt.Errorf("subtask %d has no epic column", id)
		}
		if t.EpicID, err = strconv.Atoi(strings.TrimSpace(rec[8])); err != nil {
			return Task{}, fmt.Errorf("bad epic id %q", rec[8])
		}
	}
	return t, nil
}
