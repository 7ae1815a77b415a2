package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// traceFile is the name of the per-function round log.
const traceFile = "trace.jsonl"

// RoundEntry records one collection round. Entries of successive runs are
// appended to the same file and told apart by RunID.
type RoundEntry struct {
	RunID string `json:"runId,omitempty"`
	Round int    `json:"round"`

	// Evaluated is the number of grid points evaluated in this round.
	Evaluated int `json:"evaluated"`

	// Added is the number of rows new to the collected table.
	Added int `json:"added"`

	// Total is the table size after the round.
	Total int `json:"total"`

	// Best is the best value seen so far, nil when every value was NaN.
	Best *float64 `json:"best,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func tracePath(baseDir, function string) string {
	return filepath.Join(baseDir, function, traceFile)
}

// TraceWriter appends round entries to <baseDir>/<function>/trace.jsonl.
// Writes are buffered and safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewTraceWriter opens the trace of function. With appendMode false an
// existing trace is truncated.
func NewTraceWriter(baseDir, function string, appendMode bool) (*TraceWriter, error) {
	if err := checkName(function); err != nil {
		return nil, err
	}
	path := tracePath(baseDir, function)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace %s: %w", path, err)
	}

	buf := bufio.NewWriterSize(file, 16*1024)
	return &TraceWriter{file: file, buf: buf, enc: json.NewEncoder(buf), path: path}, nil
}

// Write queues entry as one JSON line. It reaches the file on Flush or Close.
func (tw *TraceWriter) Write(entry RoundEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write round %d: %w", entry.Round, err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return tw.file.Sync()
}

func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return errors.Join(tw.buf.Flush(), tw.file.Close())
}

func (tw *TraceWriter) Path() string { return tw.path }

// TraceReader decodes round entries in file order.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
}

// NewTraceReader opens the trace of function. A missing trace yields
// *NotFoundError.
func NewTraceReader(baseDir, function string) (*TraceReader, error) {
	if err := checkName(function); err != nil {
		return nil, err
	}
	file, err := os.Open(tracePath(baseDir, function))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Name: function}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF when none remain.
func (tr *TraceReader) Read() (*RoundEntry, error) {
	var entry RoundEntry
	if err := tr.dec.Decode(&entry); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode round entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]RoundEntry, error) {
	var entries []RoundEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

func (tr *TraceReader) Close() error { return tr.file.Close() }

// Runs splits entries into consecutive runs by RunID, keeping file order.
func Runs(entries []RoundEntry) [][]RoundEntry {
	var runs [][]RoundEntry
	for i, e := range entries {
		if i == 0 || e.RunID != entries[i-1].RunID {
			runs = append(runs, nil)
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], e)
	}
	return runs
}

// DeleteTrace removes the trace of function. A missing trace is not an error.
func DeleteTrace(baseDir, function string) error {
	if err := checkName(function); err != nil {
		return err
	}
	if err := os.Remove(tracePath(baseDir, function)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete trace: %w", err)
	}
	return nil
}
