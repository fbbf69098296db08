package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
)

// Comparer is the in-database diff engine. One instance serves sequential
// comparison runs on a single session; it is not safe for concurrent use.
// Concurrent comparisons get their own Comparer and their own session.
type Comparer struct {
	sqld   port.SQLDialect
	logger *slog.Logger

	comparisonCount   int
	tempTablesCreated []string

	now func() time.Time // injectable for deterministic temp names in tests
}

func NewComparer(sqld port.SQLDialect, logger *slog.Logger) *Comparer {
	return &Comparer{
		sqld:   sqld,
		logger: logger,
		now:    time.Now,
	}
}

// CompareTables materializes both queries into session-scoped temp tables,
// diffs them with a single in-database query and aggregates per-type
// mismatch counts. Every failure in the sequence is converted into a result
// with MatchStatus=error; nothing propagates to the caller.
//
// Temp objects registered here stay registered until CleanupTempTables runs,
// including on the error path, so partial runs never leak silently.
func (c *Comparer) CompareTables(ctx context.Context, cfg domain.ComparisonConfig, exec port.QueryExecutor, sessionID string) domain.ComparisonResult {
	c.comparisonCount++
	start := c.now()

	if err := cfg.Validate(); err != nil {
		return c.errorResult(start, err)
	}

	// Unique per comparison run: clock second plus a content hash, so
	// concurrent comparisons on the same backend never collide.
	suffix := fmt.Sprintf("%s_%s", start.UTC().Format("20060102_150405"), contentHash(cfg.SourceQuery, cfg.TargetQuery))
	tempSource := "tmp_src_" + suffix
	tempTarget := "tmp_tgt_" + suffix
	tempMismatch := "tmp_mismatch_" + suffix

	c.logger.InfoContext(ctx, "starting comparison",
		slog.String("session_id", sessionID),
		slog.String("temp_source", tempSource),
		slog.String("temp_target", tempTarget),
	)

	if err := c.createTempTable(ctx, exec, tempSource, cfg.SourceQuery); err != nil {
		return c.errorResult(start, err)
	}
	if err := c.createTempTable(ctx, exec, tempTarget, cfg.TargetQuery); err != nil {
		return c.errorResult(start, err)
	}

	sourceCount, err := c.rowCount(ctx, exec, tempSource)
	if err != nil {
		return c.errorResult(start, err)
	}
	targetCount, err := c.rowCount(ctx, exec, tempTarget)
	if err != nil {
		return c.errorResult(start, err)
	}

	diffSQL := c.sqld.DiffQuery(tempSource, tempTarget, tempMismatch, cfg)
	if _, err := exec.Execute(ctx, diffSQL); err != nil {
		return c.errorResult(start, fmt.Errorf("building mismatch table: %w", err))
	}
	c.tempTablesCreated = append(c.tempTablesCreated, tempMismatch)

	stats, err := c.mismatchStats(ctx, exec, tempMismatch)
	if err != nil {
		return c.errorResult(start, err)
	}

	total := stats[domain.MissingInTarget] + stats[domain.MissingInSource] + stats[domain.ValueMismatch]
	status := domain.MatchIdentical
	if total > 0 {
		status = domain.MatchMismatch
	}

	matching := sourceCount - stats[domain.MissingInTarget] - stats[domain.ValueMismatch]
	if matching < 0 {
		matching = 0
	}

	elapsed := c.now().Sub(start).Seconds()
	c.logger.InfoContext(ctx, "comparison complete",
		slog.String("session_id", sessionID),
		slog.String("match_status", string(status)),
		slog.Int64("total_mismatches", total),
		slog.Float64("comparison_time_sec", elapsed),
	)

	return domain.ComparisonResult{
		MatchStatus:       status,
		TotalRowsSource:   sourceCount,
		TotalRowsTarget:   targetCount,
		MatchingRows:      matching,
		MissingInTarget:   stats[domain.MissingInTarget],
		MissingInSource:   stats[domain.MissingInSource],
		MismatchedRows:    stats[domain.ValueMismatch],
		ComparisonTimeSec: elapsed,
		TempTableName:     tempMismatch,
	}
}

// CleanupTempTables drops every registered temp object. A failing DROP is
// logged and skipped; the registry is cleared unconditionally afterwards.
func (c *Comparer) CleanupTempTables(ctx context.Context, exec port.QueryExecutor) {
	c.logger.InfoContext(ctx, "cleaning up temp tables", slog.Int("count", len(c.tempTablesCreated)))

	for _, name := range c.tempTablesCreated {
		if _, err := exec.Execute(ctx, c.sqld.DropTempTable(name)); err != nil {
			c.logger.WarnContext(ctx, "failed to drop temp table",
				slog.String("table", name),
				slog.String("error.message", err.Error()),
			)
			continue
		}
		c.logger.DebugContext(ctx, "dropped temp table", slog.String("table", name))
	}

	c.tempTablesCreated = c.tempTablesCreated[:0]
}

// TempTablesCreated returns the names currently awaiting cleanup.
func (c *Comparer) TempTablesCreated() []string {
	return append([]string(nil), c.tempTablesCreated...)
}

// ComparisonCount returns how many comparisons this instance has run.
func (c *Comparer) ComparisonCount() int {
	return c.comparisonCount
}

func (c *Comparer) createTempTable(ctx context.Context, exec port.QueryExecutor, name, query string) error {
	if _, err := exec.Execute(ctx, c.sqld.CreateTempTable(name, query)); err != nil {
		return fmt.Errorf("creating temp table %s: %w", name, err)
	}
	c.tempTablesCreated = append(c.tempTablesCreated, name)
	return nil
}

func (c *Comparer) rowCount(ctx context.Context, exec port.QueryExecutor, table string) (int64, error) {
	rows, err := exec.Execute(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	// Drivers disagree on the count column's name and Go type; take the
	// first numeric-looking value in the row.
	for _, v := range rows[0] {
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	}
	return 0, nil
}

// mismatchStats aggregates the mismatch table by type. Unknown types are
// ignored; an empty result means zero mismatches.
func (c *Comparer) mismatchStats(ctx context.Context, exec port.QueryExecutor, table string) (map[domain.MismatchType]int64, error) {
	stats := map[domain.MismatchType]int64{
		domain.MissingInTarget: 0,
		domain.MissingInSource: 0,
		domain.ValueMismatch:   0,
	}

	rows, err := exec.Execute(ctx,
		fmt.Sprintf("SELECT mismatch_type, COUNT(*) AS mismatch_count FROM %s GROUP BY mismatch_type", table))
	if err != nil {
		return nil, fmt.Errorf("aggregating mismatches in %s: %w", table, err)
	}

	for _, row := range rows {
		var mt domain.MismatchType
		var count int64
		// Column names come back lowercase from MySQL/PostgreSQL and
		// uppercase from Oracle; classify by value instead.
		for _, v := range row {
			switch val := v.(type) {
			case string:
				switch domain.MismatchType(strings.ToLower(val)) {
				case domain.MissingInTarget, domain.MissingInSource, domain.ValueMismatch:
					mt = domain.MismatchType(strings.ToLower(val))
				default:
					// Some drivers return COUNT(*) as text.
					if n, ok := toInt64(v); ok {
						count = n
					}
				}
			default:
				if n, ok := toInt64(v); ok {
					count = n
				}
			}
		}
		if mt == "" {
			continue
		}
		stats[mt] = count
	}

	return stats, nil
}

func (c *Comparer) errorResult(start time.Time, err error) domain.ComparisonResult {
	elapsed := c.now().Sub(start).Seconds()
	c.logger.Error("comparison failed",
		slog.String("error.message", err.Error()),
		slog.Float64("comparison_time_sec", elapsed),
	)
	return domain.ComparisonResult{
		MatchStatus:       domain.MatchError,
		ComparisonTimeSec: elapsed,
		ErrorMessage:      err.Error(),
	}
}

// contentHash returns the first 8 hex characters of the hash of both query
// texts.
func contentHash(sourceQuery, targetQuery string) string {
	sum := sha256.Sum256([]byte(sourceQuery + targetQuery))
	return fmt.Sprintf("%x", sum)[:8]
}

// toInt64 coerces the numeric types drivers actually return for COUNT(*).
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case []byte:
		parsed, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
