package exec

import (
	"context"
	"fmt"
)

// defaultAccountQuery lists the reachable account IDs under one seed.
const defaultAccountQuery = "SELECT customer.id FROM customer"

// ResolveAccountIDs narrows a seed account set with a filter query: the
// query runs against every seed through the normal compile, fetch, and
// interpret pipeline, and the first column of each result row is collected
// as an account ID. Duplicates collapse; first-seen order is kept.
func (e *Executor) ResolveAccountIDs(ctx context.Context, seedIDs []string, filterQuery string, params map[string]string) ([]string, error) {
	if filterQuery == "" {
		filterQuery = defaultAccountQuery
	}
	plan, err := e.compiler.Compile(filterQuery, params)
	if err != nil {
		return nil, fmt.Errorf("compile account filter: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, seed := range seedIDs {
		rows, err := e.fetchAccount(ctx, plan, seed)
		if err != nil {
			return nil, accountFailure{account: seed, err: err}
		}
		for _, cells := range rows {
			if len(cells) == 0 || cells[0] == nil {
				continue
			}
			id := cellToID(cells[0])
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

func cellToID(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case int:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
