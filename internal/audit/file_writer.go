package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	// GenesisHash anchors the chain: it is the hash_prev of the first event.
	GenesisHash = "sha256:genesis"

	// HashPrefix tags every chain hash with its digest algorithm.
	HashPrefix = "sha256:"
)

// FileWriter appends events to a JSONL log, chaining each one to its
// predecessor with SHA-256. Reopening an existing log resumes the chain
// from the last event rather than restarting at genesis.
type FileWriter struct {
	mu   sync.Mutex
	f    *os.File
	prev string
	path string
}

var _ Writer = (*FileWriter)(nil)

// NewFileWriter opens (or creates) the log at path for appending.
// The file is owner-readable only.
func NewFileWriter(path string) (*FileWriter, error) {
	prev, err := tailHash(path)
	if err != nil {
		return nil, fmt.Errorf("resume audit chain: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &FileWriter{f: f, prev: prev, path: path}, nil
}

// tailHash returns the hash of the last event already in the log, or
// GenesisHash when the log is missing or empty.
func tailHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if last == "" {
		return GenesisHash, nil
	}

	var tail struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(last), &tail); err != nil {
		return "", fmt.Errorf("malformed last event: %w", err)
	}
	if tail.Hash == "" {
		return "", fmt.Errorf("tail event carries no hash")
	}
	return tail.Hash, nil
}

// Write chains, hashes, and appends one event. The event must be on
// disk before the operation that produced it reports success.
func (w *FileWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := event.Validate(); err != nil {
		return fmt.Errorf("refusing incomplete event: %w", err)
	}

	event.HashPrev = w.prev
	canonical, err := event.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("event does not serialize: %w", err)
	}
	event.Hash = chainHash(canonical, w.prev)

	line, err := event.JSON()
	if err != nil {
		return fmt.Errorf("event does not serialize: %w", err)
	}
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("audit log fsync: %w", err)
	}

	w.prev = event.Hash
	return nil
}

// Close flushes and closes the log.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

// LastHash returns the hash of the most recently written event.
func (w *FileWriter) LastHash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prev
}

// Path returns the log file path.
func (w *FileWriter) Path() string { return w.path }

// chainHash computes sha256(canonical || prev) in "sha256:<hex>" form.
func chainHash(canonical []byte, prev string) string {
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(prev))
	return fmt.Sprintf("%s%x", HashPrefix, h.Sum(nil))
}
