package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pagoda/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// maxEntrySize bounds a single trace line; product listing bodies run large.
const maxEntrySize = 16 * 1024 * 1024

// Reader reads a persisted capture trace: one JSON exchange record per line,
// appended by the capture proxy for the whole run. The file is never written
// from here.
type Reader struct {
	path string
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// ReadMatching opens the trace and returns a scanner over the exchanges whose
// request matches pattern and whose timestamp is at or after since. The since
// bound isolates one keyword's window; the trace accumulates across the whole
// run and an unbounded read would attribute exchanges to the wrong keyword.
// Calling ReadMatching again re-reads the trace and yields the same results.
func (r *Reader) ReadMatching(pattern domain.APIPattern, since time.Time) (*MatchScanner, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture trace: %w", err)
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxEntrySize)

	return &MatchScanner{
		file:    f,
		scanner: sc,
		pattern: pattern,
		since:   since,
		path:    r.path,
	}, nil
}

// MatchScanner iterates matching exchanges lazily, in trace order.
type MatchScanner struct {
	file    *os.File
	scanner *bufio.Scanner
	pattern domain.APIPattern
	since   time.Time
	path    string

	line int
	cur  domain.Exchange
	err  error
}

// Next advances to the next matching exchange. Malformed trace lines are
// skipped with a warning; they never abort the scan.
func (s *MatchScanner) Next() bool {
	for s.scanner.Scan() {
		s.line++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var ex domain.Exchange
		if err := json.Unmarshal(raw, &ex); err != nil {
			log.Warnf("Skipping malformed trace entry at %s:%d: %v", s.path, s.line, err)
			continue
		}
		if !s.pattern.Matches(ex.Method, ex.URL) {
			continue
		}
		if ex.Timestamp.Before(s.since) {
			continue
		}

		s.cur = ex
		return true
	}
	s.err = s.scanner.Err()
	return false
}

func (s *MatchScanner) Exchange() domain.Exchange {
	return s.cur
}

func (s *MatchScanner) Err() error {
	return s.err
}

func (s *MatchScanner) Close() error {
	return s.file.Close()
}
