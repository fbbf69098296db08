package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
)

// Connector hands out sessions from a pgx pool.
type Connector struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewConnector(pool *pgxpool.Pool, queryTimeout time.Duration) *Connector {
	return &Connector{pool: pool, queryTimeout: queryTimeout}
}

func (c *Connector) Dialect() domain.Dialect { return domain.DialectPostgreSQL }

// AcquireSession checks one connection out of the pool. Everything executed
// through the returned session runs on that single connection, which is what
// makes session-scoped temp tables work.
func (c *Connector) AcquireSession(ctx context.Context) (port.Session, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return &Session{conn: conn, queryTimeout: c.queryTimeout}, nil
}

func (c *Connector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.pool.Ping(ctx)
}

func (c *Connector) Close() { c.pool.Close() }

// Session is one checked-out pgx connection.
type Session struct {
	conn         *pgxpool.Conn
	queryTimeout time.Duration
}

func (s *Session) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	return rowsToMaps(rows)
}

// Explain runs the given EXPLAIN statement and returns the plan as text.
// pgx decodes EXPLAIN (FORMAT JSON) output into Go values, so the rows are
// re-marshalled to JSON to give the plan parser its expected shape.
func (s *Session) Explain(ctx context.Context, sql string) (string, error) {
	rows, err := s.Execute(ctx, sql)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encoding plan output: %w", err)
	}
	return string(data), nil
}

// Close resets session state before the connection goes back to the pool:
// DISCARD ALL drops temp tables and GUC changes a comparison may have left
// behind, so a leaked object never haunts the next checkout.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "DISCARD ALL")
	s.conn.Release()
	return err
}
