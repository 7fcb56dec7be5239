// Package sqlgen adapts the SQL generation and verification capabilities:
// prompt construction, output cleanup, and verdict parsing.
package sqlgen

import (
	"regexp"
	"strings"
)

// TruncationMarker is the machine-readable annotation prepended to a
// statement the completeness heuristic flags as suspect. It survives as a
// SQL comment so an annotated statement still parses.
const TruncationMarker = "-- sqlpilot:truncation-suspect"

// CleanSQL strips markdown code fences and surrounding noise from model
// output, leaving bare SQL.
func CleanSQL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```SQL")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

var combiningClause = regexp.MustCompile(`(?i)\b(UNION|INTERSECT|EXCEPT|JOIN)\b`)

// LooksTruncated applies the completeness heuristic: a statement spanning
// tableCount tables should contain at least tableCount-1 combining
// clauses (JOIN or a set operation), and must end with a statement
// terminator. The heuristic only flags a statement as suspect; passing it
// proves nothing, and the verifier has the final word either way.
func LooksTruncated(sqlText string, tableCount int) bool {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return true
	}
	if !strings.HasSuffix(sqlText, ";") {
		return true
	}
	if tableCount > 1 {
		if len(combiningClause.FindAllString(sqlText, -1)) < tableCount-1 {
			return true
		}
	}
	return false
}

// MarkSuspect prepends the truncation marker, once.
func MarkSuspect(sqlText string) string {
	if strings.HasPrefix(sqlText, TruncationMarker) {
		return sqlText
	}
	return TruncationMarker + "\n" + sqlText
}

// Unmark strips the truncation marker, if present.
func Unmark(sqlText string) string {
	return strings.TrimSpace(strings.TrimPrefix(sqlText, TruncationMarker))
}

// IsSuspect reports whether the statement carries the truncation marker.
func IsSuspect(sqlText string) bool {
	return strings.HasPrefix(sqlText, TruncationMarker)
}
