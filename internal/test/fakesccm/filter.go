package fakesccm

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	callClause = regexp.MustCompile(`^(startswith|endswith|contains)\((\w+),'((?:[^']|'')*)'\)$`)
	eqClause   = regexp.MustCompile(`^(\w+) eq (?:'((?:[^']|'')*)'|(-?\d+))$`)
)

// parseFilter understands and-joined clauses of the forms
// startswith(F,'v'), endswith(F,'v'), contains(F,'v'), F eq 'v' and F eq n.
// String comparisons ignore case, as the site database collation does.
func parseFilter(filter string) (func(map[string]any) bool, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return func(map[string]any) bool { return true }, nil
	}

	var preds []func(map[string]any) bool
	for _, clause := range splitAnd(filter) {
		clause = strings.TrimSpace(clause)
		if m := callClause.FindStringSubmatch(clause); m != nil {
			fn, field, val := m[1], m[2], strings.ToLower(strings.ReplaceAll(m[3], "''", "'"))
			preds = append(preds, func(row map[string]any) bool {
				v := strings.ToLower(str(row[field]))
				switch fn {
				case "startswith":
					return strings.HasPrefix(v, val)
				case "endswith":
					return strings.HasSuffix(v, val)
				default:
					return strings.Contains(v, val)
				}
			})
			continue
		}
		if m := eqClause.FindStringSubmatch(clause); m != nil {
			field := m[1]
			val := strings.ReplaceAll(m[2], "''", "'")
			if m[3] != "" {
				val = m[3]
			}
			preds = append(preds, func(row map[string]any) bool {
				return strings.EqualFold(str(row[field]), val)
			})
			continue
		}
		return nil, fmt.Errorf("unsupported filter clause: %s", clause)
	}

	return func(row map[string]any) bool {
		for _, p := range preds {
			if !p(row) {
				return false
			}
		}
		return true
	}, nil
}

// splitAnd splits on " and " outside string literals.
func splitAnd(filter string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(filter); i++ {
		switch {
		case filter[i] == '\'':
			inQuote = !inQuote
		case !inQuote && strings.HasPrefix(filter[i:], " and "):
			parts = append(parts, filter[start:i])
			start = i + len(" and ")
			i += len(" and ") - 1
		}
	}
	return append(parts, filter[start:])
}
