package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Filter is a conjunction of equality predicates keyed by column name.
// A nil value matches SQL NULL.
type Filter map[string]any

// Query encodes f in the "col=eq.value" / "col=is.null" form used by the
// REST and realtime endpoints.
func (f Filter) Query() url.Values {
	q := url.Values{}
	for col, v := range f {
		if v == nil {
			q.Set(col, "is.null")
			continue
		}
		q.Set(col, "eq."+formatValue(v))
	}
	return q
}

// Key is a stable string form of f, used to name cached snapshots.
func (f Filter) Key() string {
	return f.Query().Encode()
}

// ParseFilter reads predicates from q, ignoring the parameter names in skip.
func ParseFilter(q url.Values, skip ...string) (Filter, error) {
	f := Filter{}
next:
	for col, vals := range q {
		for _, s := range skip {
			if col == s {
				continue next
			}
		}
		if len(vals) != 1 {
			return nil, fmt.Errorf("filter %s: expected exactly one predicate", col)
		}
		switch raw := vals[0]; {
		case raw == "is.null":
			f[col] = nil
		case strings.HasPrefix(raw, "eq."):
			f[col] = strings.TrimPrefix(raw, "eq.")
		default:
			return nil, fmt.Errorf("filter %s: unsupported predicate %q", col, raw)
		}
	}
	return f, nil
}

// Matches reports whether row satisfies every predicate of f.
func (f Filter) Matches(row map[string]any) bool {
	for col, want := range f {
		got, ok := row[col]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || got == nil || formatValue(got) != formatValue(want) {
			return false
		}
	}
	return true
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
