package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// forEachEvent decodes the log line by line in file order.
func forEachEvent(path string, fn func(lineNum int, e *Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if err := fn(lineNum, &event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	return nil
}

// VerifyChain replays the hash chain of the log at path. It returns the
// number of events whose links check out, and the first defect found: a
// link that does not point at its predecessor, or an event whose
// recorded hash does not match its content.
func VerifyChain(path string) (int, error) {
	valid := 0
	prev := GenesisHash

	err := forEachEvent(path, func(lineNum int, e *Event) error {
		if e.HashPrev != prev {
			return fmt.Errorf("line %d: hash chain broken: expected prev=%s, got prev=%s",
				lineNum, prev, e.HashPrev)
		}
		canonical, err := e.CanonicalJSON()
		if err != nil {
			return fmt.Errorf("line %d: failed to serialize: %w", lineNum, err)
		}
		if got := chainHash(canonical, e.HashPrev); e.Hash != got {
			return fmt.Errorf("line %d: hash mismatch: expected=%s, got=%s",
				lineNum, got, e.Hash)
		}
		prev = e.Hash
		valid++
		return nil
	})
	return valid, err
}

// ReadEvents returns every event in the log in file order. The chain is
// not verified; tail views and forensic queries slice the result.
func ReadEvents(path string) ([]*Event, error) {
	var events []*Event
	err := forEachEvent(path, func(_ int, e *Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
