package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// MatchStatus is the overall outcome of a comparison run.
type MatchStatus string

const (
	MatchIdentical MatchStatus = "identical"
	MatchMismatch  MatchStatus = "mismatch"
	MatchError     MatchStatus = "error"
)

// MismatchType classifies a single non-matching key in the diff table.
type MismatchType string

const (
	MissingInSource MismatchType = "missing_in_source"
	MissingInTarget MismatchType = "missing_in_target"
	ValueMismatch   MismatchType = "value_mismatch"
)

// identifierRe constrains column names that get interpolated into generated
// SQL. Anything else is rejected before a single statement is built.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var ErrNoKeyColumns = errors.New("at least one key column is required")

// ComparisonConfig is the immutable input to one comparison run. KeyColumns
// are the join keys; a nil CompareColumns means all columns.
type ComparisonConfig struct {
	SourceQuery           string   `json:"source_query"`
	TargetQuery           string   `json:"target_query"`
	KeyColumns            []string `json:"key_columns"`
	CompareColumns        []string `json:"compare_columns,omitempty"`
	CaseSensitive         bool     `json:"case_sensitive"`
	TrimStrings           bool     `json:"trim_strings"`
	IgnoreNullDifferences bool     `json:"ignore_null_differences"`
}

// Validate rejects configs that cannot produce safe SQL. Queries themselves
// are assumed already sanitized by the query validator.
func (c ComparisonConfig) Validate() error {
	if c.SourceQuery == "" {
		return errors.New("source query is empty")
	}
	if c.TargetQuery == "" {
		return errors.New("target query is empty")
	}
	if len(c.KeyColumns) == 0 {
		return ErrNoKeyColumns
	}
	for _, col := range c.KeyColumns {
		if !identifierRe.MatchString(col) {
			return fmt.Errorf("invalid key column name %q", col)
		}
	}
	for _, col := range c.CompareColumns {
		if !identifierRe.MatchString(col) {
			return fmt.Errorf("invalid compare column name %q", col)
		}
	}
	return nil
}

// ComparisonResult reports row-level agreement between the two queries.
// Invariant: MatchIdentical iff MissingInTarget+MissingInSource+MismatchedRows
// is zero; on MatchError every counter is zero and TempTableName is empty.
type ComparisonResult struct {
	MatchStatus       MatchStatus `json:"match_status"`
	TotalRowsSource   int64       `json:"total_rows_source"`
	TotalRowsTarget   int64       `json:"total_rows_target"`
	MatchingRows      int64       `json:"matching_rows"`
	MissingInTarget   int64       `json:"missing_in_target"`
	MissingInSource   int64       `json:"missing_in_source"`
	MismatchedRows    int64       `json:"mismatched_rows"`
	ComparisonTimeSec float64     `json:"comparison_time_sec"`
	TempTableName     string      `json:"temp_table_name,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
}
