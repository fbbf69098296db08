package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// QueryType is the detected leading statement keyword of a query. SELECT and
// WITH are the only allowed types; anything else is carried through so the
// caller can report what was actually found.
type QueryType string

const (
	QueryTypeSelect  QueryType = "SELECT"
	QueryTypeWith    QueryType = "WITH"
	QueryTypeInvalid QueryType = "INVALID"
)

// ValidationResult is the outcome of static read-only analysis of a query.
// SanitizedQuery is non-empty iff IsSafe is true; it never carries a trailing
// semicolon.
type ValidationResult struct {
	IsSafe         bool      `json:"is_safe"`
	Violations     []string  `json:"violations"`
	SanitizedQuery string    `json:"sanitized_query,omitempty"`
	QueryType      QueryType `json:"query_type"`
}

// dangerousKeywords must never appear anywhere in an operator query: a hit
// either means a write attempt or an injection vector worth refusing outright.
var dangerousKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER",
	"CREATE", "GRANT", "REVOKE", "EXECUTE", "CALL", "EXEC",
	"MERGE", "REPLACE", "RENAME", "LOCK", "UNLOCK",
}

// DangerousKeywords returns the deny-listed keywords, for documentation
// surfaces. The returned slice is a copy.
func DangerousKeywords() []string {
	out := make([]string, len(dangerousKeywords))
	copy(out, dangerousKeywords)
	return out
}

var (
	leadingBlockCommentRe = regexp.MustCompile(`(?s)^/\*.*?\*/`)
	leadingLineCommentRe  = regexp.MustCompile(`^--[^\n]*\n?`)
	firstWordRe           = regexp.MustCompile(`^(\w+)`)
	selectIntoRe          = regexp.MustCompile(`(?is)\bSELECT\b.*\bINTO\b`)
	singleQuotedRe        = regexp.MustCompile(`'[^']*'`)
	doubleQuotedRe        = regexp.MustCompile(`"[^"]*"`)
	blockCommentRe        = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe         = regexp.MustCompile(`(?m)--.*$`)
	unionSplitRe          = regexp.MustCompile(`\bUNION\b`)

	// One compiled word-boundary pattern per deny-list keyword, so that
	// identifiers like inserted_date never trip the INSERT check.
	keywordRes = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(dangerousKeywords))
		for _, kw := range dangerousKeywords {
			m[kw] = regexp.MustCompile(`\b` + kw + `\b`)
		}
		return m
	}()
)

// QueryValidator statically proves a query is read-only. It is pure: no I/O,
// no state, identical input yields an identical result.
type QueryValidator struct{}

func NewQueryValidator() *QueryValidator {
	return &QueryValidator{}
}

// Validate runs every check and accumulates all violations rather than
// stopping at the first, so the caller can report everything wrong with a
// query at once. Only empty input returns early.
func (v *QueryValidator) Validate(query string) ValidationResult {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ValidationResult{
			IsSafe:     false,
			Violations: []string{"Query is empty"},
			QueryType:  QueryTypeInvalid,
		}
	}

	upper := strings.ToUpper(trimmed)
	var violations []string

	queryType := detectQueryType(upper)
	if queryType != QueryTypeSelect && queryType != QueryTypeWith {
		violations = append(violations,
			fmt.Sprintf("Query must start with SELECT or WITH (for CTEs). Found: %s", queryType))
	}

	for _, kw := range dangerousKeywords {
		if keywordRes[kw].MatchString(upper) {
			violations = append(violations, fmt.Sprintf("Dangerous keyword '%s' detected", kw))
		}
	}

	if selectIntoRe.MatchString(trimmed) {
		violations = append(violations, "SELECT INTO is not allowed (creates new tables)")
	}

	if hasMultipleStatements(trimmed) {
		violations = append(violations,
			"Multi-statement queries not allowed (security risk). Found multiple semicolons.")
	}

	if hasSuspiciousComments(trimmed) {
		violations = append(violations,
			"Suspicious comments detected that might hide dangerous code")
	}

	if hasUnionInjection(upper) {
		violations = append(violations,
			"UNION with dangerous keywords detected (possible injection)")
	}

	result := ValidationResult{
		IsSafe:     len(violations) == 0,
		Violations: violations,
		QueryType:  queryType,
	}
	if result.IsSafe {
		result.SanitizedQuery = strings.TrimSuffix(trimmed, ";")
	}
	return result
}

// detectQueryType finds the leading statement keyword after skipping
// whitespace and comments. The input must already be upper-cased.
func detectQueryType(upper string) QueryType {
	clean := upper
	for {
		next := strings.TrimLeft(clean, " \t\r\n")
		next = leadingBlockCommentRe.ReplaceAllString(next, "")
		next = leadingLineCommentRe.ReplaceAllString(next, "")
		if next == clean {
			break
		}
		clean = next
	}

	if strings.HasPrefix(clean, string(QueryTypeSelect)) {
		return QueryTypeSelect
	}
	if strings.HasPrefix(clean, string(QueryTypeWith)) {
		return QueryTypeWith
	}
	if m := firstWordRe.FindString(clean); m != "" {
		return QueryType(m)
	}
	return QueryTypeInvalid
}

// hasMultipleStatements counts semicolons outside string literals. A single
// trailing semicolon is tolerated (and later stripped by sanitization).
func hasMultipleStatements(query string) bool {
	stripped := singleQuotedRe.ReplaceAllString(query, "")
	stripped = doubleQuotedRe.ReplaceAllString(stripped, "")
	return strings.Count(stripped, ";") > 1
}

// hasSuspiciousComments reports whether any comment mentions a deny-list
// keyword. Some engines evaluate hints inside comments, and a dangerous verb
// hidden in a comment is a red flag either way.
func hasSuspiciousComments(query string) bool {
	for _, comment := range blockCommentRe.FindAllString(query, -1) {
		if commentMentionsKeyword(comment) {
			return true
		}
	}
	for _, comment := range lineCommentRe.FindAllString(query, -1) {
		if commentMentionsKeyword(comment) {
			return true
		}
	}
	return false
}

func commentMentionsKeyword(comment string) bool {
	upper := strings.ToUpper(comment)
	for _, kw := range dangerousKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// hasUnionInjection checks every branch after a UNION for deny-list keywords.
// The input must already be upper-cased.
func hasUnionInjection(upper string) bool {
	parts := unionSplitRe.Split(upper, -1)
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts[1:] {
		for _, kw := range dangerousKeywords {
			if keywordRes[kw].MatchString(part) {
				return true
			}
		}
	}
	return false
}
