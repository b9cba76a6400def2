package protocol

import (
	"regexp"
	"strings"
)

// clausePattern matches a single equality clause: field=="value".
var clausePattern = regexp.MustCompile(`^\s*(\w+)\s*==\s*"([^"]*)"\s*$`)

// MatchExpr evaluates a minimal filter expression against a field map.
// The grammar is equality clauses joined by OR: `kind=="mesh" OR kind=="poi"`.
// An empty expression matches everything. Any clause that is not a plain
// equality is treated as always-matching; the protocol's permissive
// fallback, not a parser bug.
func MatchExpr(fields map[string]string, expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	for _, clause := range strings.Split(expr, " OR ") {
		m := clausePattern.FindStringSubmatch(clause)
		if m == nil {
			return true
		}
		if fields[m[1]] == m[2] {
			return true
		}
	}
	return false
}
