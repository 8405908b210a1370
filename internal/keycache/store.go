package keycache

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Store persists the set of unit identifiers already queried in prior runs.
// The on-disk format is one identifier per line; the file is rewritten in
// full on every successful run. An identifier in the store only means "do
// not exec into this unit again" — not that the unit still exists.
type Store struct {
	Path string
}

// Load reads the persisted set. A missing file is the empty set.
func (s *Store) Load() (map[string]struct{}, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("open query cache: %w", err)
	}
	defer f.Close()

	ids := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan query cache: %w", err)
	}
	return ids, nil
}

// Save rewrites the persisted set, replacing any prior content.
func (s *Store) Save(ids map[string]struct{}) error {
	var b strings.Builder
	for id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(s.Path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write query cache: %w", err)
	}
	return nil
}

// Discard removes the persisted set. Called before a full rebuild so a
// crashed or concurrent run cannot resurrect stale state.
func (s *Store) Discard() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove query cache: %w", err)
	}
	return nil
}
