// Package odata builds the $filter expressions sent to the Admin Service and
// matches glob-style name patterns. Everything here is pure.
package odata

import (
	"regexp"
	"strconv"
	"strings"
)

// Quote renders s as an OData string literal. Embedded single quotes are
// doubled.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Eq returns "field eq 'value'".
func Eq(field, value string) string {
	return field + " eq " + Quote(value)
}

// EqInt returns "field eq n" for numeric keys such as ResourceId.
func EqInt(field string, n int64) string {
	return field + " eq " + strconv.FormatInt(n, 10)
}

// And joins the non-empty clauses with "and".
func And(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " and ")
}

func call(fn, field, value string) string {
	return fn + "(" + field + "," + Quote(value) + ")"
}

// Key renders an entity key segment: Class('id') for string keys, Class(id)
// for numeric ones.
func Key(class, id string, numeric bool) string {
	if numeric {
		return class + "(" + id + ")"
	}
	return class + "(" + Quote(id) + ")"
}

func isWild(r rune) bool {
	return r == '*' || r == '?'
}

// HasWildcard reports whether pattern contains '*' or '?'.
func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// WildcardFilter translates a glob pattern on field into a server-side filter.
//
// A pattern without wildcards becomes an equality test. Otherwise the literal
// runs between wildcards become startswith (first run, anchored), endswith
// (last run, anchored) and contains (everything else). The result can match
// more than the glob does ('?' is widened to '*', run order is not enforced),
// so callers filter the rows again with Glob. A pattern made only of wildcards
// yields "", meaning no filter.
func WildcardFilter(field, pattern string) string {
	if !HasWildcard(pattern) {
		return Eq(field, pattern)
	}

	runs := strings.FieldsFunc(pattern, isWild)
	if len(runs) == 0 {
		return ""
	}
	anchoredStart := !isWild(rune(pattern[0]))
	anchoredEnd := !isWild(rune(pattern[len(pattern)-1]))

	clauses := make([]string, 0, len(runs))
	for i, run := range runs {
		switch {
		case i == 0 && anchoredStart:
			clauses = append(clauses, call("startswith", field, run))
		case i == len(runs)-1 && anchoredEnd:
			clauses = append(clauses, call("endswith", field, run))
		default:
			clauses = append(clauses, call("contains", field, run))
		}
	}
	return And(clauses...)
}

// Glob compiles a case-insensitive matcher for pattern where '*' matches any
// run of characters and '?' exactly one.
func Glob(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// Match reports whether name matches the glob pattern, ignoring case.
func Match(pattern, name string) bool {
	return Glob(pattern).MatchString(name)
}
