package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keagan/examwarden/internal/session"
	"github.com/keagan/examwarden/pkg/util"
)

// Store persists one JSON session record per session identifier. Records are
// write-once in intent; saving an existing identifier overwrites it.
type Store struct {
	dir string
}

// New creates the record directory if needed
func New(dir string) (*Store, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create session log dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the record location for a session identifier
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the full session record
func (s *Store) Save(rec *session.Record) error {
	f, err := os.Create(s.Path(rec.Session.SessionID))
	if err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	return nil
}

// Load reconstructs a record from its persisted form alone
func (s *Store) Load(sessionID string) (*session.Record, error) {
	data, err := os.ReadFile(s.Path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &rec, nil
}

// List returns the persisted session identifiers, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
