package rulestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"automationd/internal/ids"
	"automationd/internal/rule"
)

// SQLStore persists rules in Postgres as a keyed-hierarchical layout: one
// row per top-level settings group (name, enabled, timeDescriptor, ...),
// matching the original's per-group SettingsRow writes rather than one
// opaque blob per rule. Grouping stops at the top level — timeDescriptor,
// stateEvaluator and each action still encode as a single JSON value per
// row — since Rule's own json tags already give every field its stable
// §6 path name, so splitting further would only duplicate what
// encoding/json already does correctly.
type SQLStore struct {
	pool *pgxpool.Pool
}

func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

// EnsureSchema creates the backing table if it does not exist. Callers
// run this once at startup, matching the teacher's pattern of a plain
// pool handed to query methods with no migration framework.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS rule_groups (
		rule_id TEXT NOT NULL,
		path    TEXT NOT NULL,
		value   JSONB NOT NULL,
		PRIMARY KEY (rule_id, path)
	)`)
	return err
}

// SaveRule replaces every row belonging to r.Id with one row per top-level
// field of its JSON encoding, so "timeDescriptor", "stateEvaluator", and
// so on each live at their own (rule_id, path) key rather than buried in
// one payload column.
func (s *SQLStore) SaveRule(ctx context.Context, r rule.Rule) error {
	fields, err := ruleFields(r)
	if err != nil {
		return fmt.Errorf("rulestore: encode rule %s: %w", r.Id, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rulestore: begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM rule_groups WHERE rule_id = $1", r.Id.String()); err != nil {
		return fmt.Errorf("rulestore: clear existing rows for rule %s: %w", r.Id, err)
	}
	for path, value := range fields {
		if _, err := tx.Exec(ctx,
			"INSERT INTO rule_groups (rule_id, path, value) VALUES ($1, $2, $3)",
			r.Id.String(), path, []byte(value)); err != nil {
			return fmt.Errorf("rulestore: write %s/%s: %w", r.Id, path, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *SQLStore) LoadAll(ctx context.Context) ([]rule.Rule, error) {
	rows, err := s.pool.Query(ctx, "SELECT rule_id, path, value FROM rule_groups ORDER BY rule_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grouped := make(map[string]map[string]json.RawMessage)
	order := make([]string, 0)
	for rows.Next() {
		var ruleId, path string
		var value []byte
		if err := rows.Scan(&ruleId, &path, &value); err != nil {
			return nil, err
		}
		fields, ok := grouped[ruleId]
		if !ok {
			fields = make(map[string]json.RawMessage)
			grouped[ruleId] = fields
			order = append(order, ruleId)
		}
		fields[path] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]rule.Rule, 0, len(order))
	for _, ruleId := range order {
		blob, err := json.Marshal(grouped[ruleId])
		if err != nil {
			return nil, fmt.Errorf("rulestore: reassemble rule %s: %w", ruleId, err)
		}
		var r rule.Rule
		if err := json.Unmarshal(blob, &r); err != nil {
			return nil, fmt.Errorf("rulestore: decode rule %s: %w", ruleId, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLStore) DeleteRule(ctx context.Context, id ids.RuleId) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM rule_groups WHERE rule_id = $1", id.String())
	return err
}

// ruleFields marshals r once, then splits its top-level JSON object keys
// into a map, so the row-per-group layout always matches whatever fields
// Rule's own json tags declare instead of a hand-maintained field list.
func ruleFields(r rule.Rule) (map[string]json.RawMessage, error) {
	blob, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
