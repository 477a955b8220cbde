package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"automationd/internal/ids"
	"automationd/internal/rule"
)

// FileStore persists one JSON file per rule under dir, writing through a
// temp file and renaming into place so a crash mid-write never leaves a
// half-written rule file behind. This mirrors the original nested
// settings-file store without pulling in a KV library the teacher never
// used.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rulestore: create dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id ids.RuleId) string {
	return filepath.Join(s.dir, id.String()+".json")
}

func (s *FileStore) SaveRule(_ context.Context, r rule.Rule) error {
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("rulestore: encode rule %s: %w", r.Id, err)
	}
	tmp, err := os.CreateTemp(s.dir, "rule-*.tmp")
	if err != nil {
		return fmt.Errorf("rulestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("rulestore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rulestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(r.Id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rulestore: rename into place: %w", err)
	}
	return nil
}

func (s *FileStore) LoadAll(_ context.Context) ([]rule.Rule, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("rulestore: read dir %s: %w", s.dir, err)
	}
	var out []rule.Rule
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var r rule.Rule
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("rulestore: decode %s: %w", e.Name(), err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *FileStore) DeleteRule(_ context.Context, id ids.RuleId) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rulestore: delete rule %s: %w", id, err)
	}
	return nil
}
