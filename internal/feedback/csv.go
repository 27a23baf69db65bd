package feedback

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"smartual/internal/domain"
)

// TimestampLayout is the format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Header is the column order of the feedback table.
var Header = []string{"timestamp", "question", "answer", "section", "confidence", "helpful"}

// CSVSink appends records to a CSV file, writing the header when the file
// is new. Each record is encoded first and written with a single call.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Path returns the file the sink appends to.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Append(_ context.Context, rec domain.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("feedback: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open %s: %w", s.path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("feedback: stat %s: %w", s.path, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		_ = w.Write(Header)
	}
	_ = w.Write(row(rec))
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("feedback: encode: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("feedback: write %s: %w", s.path, err)
	}
	return nil
}

func (s *CSVSink) Close() error { return nil }

func row(rec domain.FeedbackRecord) []string {
	return []string{
		rec.Timestamp.Format(TimestampLayout),
		rec.Question,
		rec.Answer,
		rec.Section,
		strconv.FormatFloat(RoundConfidence(rec.Confidence), 'f', -1, 64),
		formatBool(rec.Helpful),
	}
}

// formatBool matches the capitalised booleans of existing feedback logs.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// SectionCount is the number of feedback records for one section.
type SectionCount struct {
	Section string `json:"section"`
	Count   int    `json:"count"`
}

// SectionCounts tallies the section column of a feedback CSV, most frequent
// first. A missing file yields no counts.
func SectionCounts(path string) ([]SectionCount, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("feedback: read header: %w", err)
	}
	col := -1
	for i, h := range header {
		if h == "section" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("feedback: %s has no section column", path)
	}

	counts := make(map[string]int)
	var order []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feedback: read %s: %w", path, err)
		}
		if col >= len(rec) {
			continue
		}
		if _, ok := counts[rec[col]]; !ok {
			order = append(order, rec[col])
		}
		counts[rec[col]]++
	}
	out := make([]SectionCount, len(order))
	for i, name := range order {
		out[i] = SectionCount{Section: name, Count: counts[name]}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Count > out[b].Count })
	return out, nil
}
