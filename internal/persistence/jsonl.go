package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// AppendLog is an append-only JSONL file used for the mailbox message log,
// the task-history log, and the cross-repo dispatch log (spec §4.1 layout). Corrupt lines are
// skipped on load rather than aborting the whole read; later records for the
// same id overwrite earlier ones (dedup-by-id, spec §4.10 shared-resource
// policy).
type AppendLog struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

// NewAppendLog returns an AppendLog rooted at path. The containing directory
// must already exist.
func NewAppendLog(path string) *AppendLog {
	return &AppendLog{path: path, lockPath: path + ".lock"}
}

// Append writes record as a single JSONL line.
func (l *AppendLog) Append(record []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl := flock.New(l.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("persistence: lock %s: %w", l.lockPath, err)
	}
	defer fl.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(record, '\n')); err != nil {
		return fmt.Errorf("persistence: append %s: %w", l.path, err)
	}
	return f.Sync()
}

// LoadLatestByID replays every line, extracting an id via idOf. Lines that
// fail idOf (malformed JSON, or any other parse error the caller signals via
// ok=false) are skipped. When multiple lines share an id, the last one wins;
// order reflects first-seen position among the surviving ids.
func (l *AppendLog) LoadLatestByID(idOf func(line []byte) (id string, ok bool)) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", l.path, err)
	}
	defer f.Close()

	latest := make(map[string][]byte)
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		id, ok := idOf(line)
		if !ok {
			continue
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		latest[id] = cp
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("persistence: scan %s: %w", l.path, err)
	}

	out := make([][]byte, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, nil
}

// JSONIDOf is a convenience idOf for records shaped like {"id": "..."}.
func JSONIDOf(line []byte) (string, bool) {
	var rec struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
		return "", false
	}
	return rec.ID, true
}

// Rewrite atomically replaces the whole log with records, one per line. Used
// by the mailbox purge/delete operations.
func (l *AppendLog) Rewrite(records [][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl := flock.New(l.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("persistence: lock %s: %w", l.lockPath, err)
	}
	defer fl.Unlock()

	var buf []byte
	for _, r := range records {
		buf = append(buf, r...)
		buf = append(buf, '\n')
	}
	return atomicWrite(l.path, buf)
}
