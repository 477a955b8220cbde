// Package rulestore persists Rules in a keyed-hierarchical layout
// (section -> subsection -> key) mirroring the original nested-settings
// file. Store is backed by Postgres by default; FileStore offers an
// atomic flat-file fallback for tests and single-node deployments.
package rulestore

import (
	"context"

	"automationd/internal/ids"
	"automationd/internal/rule"
)

// Store is the persistence boundary the rule engine depends on.
type Store interface {
	SaveRule(ctx context.Context, r rule.Rule) error
	LoadAll(ctx context.Context) ([]rule.Rule, error)
	DeleteRule(ctx context.Context, id ids.RuleId) error
}
