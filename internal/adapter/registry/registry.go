// Package registry builds and owns one connector per configured database.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/parallaxdb/parallax/internal/adapter/postgres"
	"github.com/parallaxdb/parallax/internal/adapter/sqldb"
	"github.com/parallaxdb/parallax/internal/config"
	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
	"github.com/parallaxdb/parallax/internal/core/service"
	"github.com/parallaxdb/parallax/internal/dialect"
)

// Registry resolves configured database names to live connectors. Connectors
// are built eagerly at startup; the underlying pools connect lazily.
type Registry struct {
	connectors map[string]port.Connector
	entries    []service.DatabaseEntry
}

// New builds a connector for every database in the registry file.
func New(ctx context.Context, cfg *config.Config, dbs config.Databases) (*Registry, error) {
	r := &Registry{connectors: make(map[string]port.Connector, len(dbs))}

	for name, dc := range dbs {
		conn, err := buildConnector(ctx, cfg, dc)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("database %q: %w", name, err)
		}
		r.connectors[name] = conn
		r.entries = append(r.entries, service.DatabaseEntry{
			Name:        name,
			Dialect:     conn.Dialect(),
			Host:        dc.Host,
			Description: dc.Description,
		})
	}

	sort.Slice(r.entries, func(i, j int) bool { return r.entries[i].Name < r.entries[j].Name })
	return r, nil
}

func buildConnector(ctx context.Context, cfg *config.Config, dc config.DatabaseConfig) (port.Connector, error) {
	d, err := dc.Dialect()
	if err != nil {
		return nil, err
	}
	sqld, err := dialect.New(d)
	if err != nil {
		return nil, err
	}

	info := sqldb.ConnectionInfo{
		Host:        dc.Host,
		Port:        dc.Port,
		Database:    dc.SchemaName(),
		User:        dc.User,
		Password:    dc.Password,
		MaxConns:    int(cfg.PoolMaxConns),
		MaxLifetime: cfg.PoolMaxConnLifetime,
	}

	switch d {
	case domain.DialectPostgreSQL:
		pool, err := postgres.NewPool(ctx, postgresURL(dc), postgres.PoolSettings{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return postgres.NewConnector(pool, cfg.QueryTimeout), nil
	case domain.DialectMySQL:
		return sqldb.NewMySQLConnector(info, sqld, cfg.QueryTimeout)
	case domain.DialectOracle:
		return sqldb.NewOracleConnector(info, sqld, cfg.QueryTimeout)
	}
	return nil, fmt.Errorf("unsupported database type %q", dc.Type)
}

func postgresURL(dc config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(dc.User, dc.Password),
		Host:   fmt.Sprintf("%s:%d", dc.Host, dc.Port),
		Path:   "/" + dc.SchemaName(),
	}
	return u.String()
}

// Get returns the connector for a configured database name.
func (r *Registry) Get(name string) (port.Connector, error) {
	conn, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown database %q: not declared in the databases file", name)
	}
	return conn, nil
}

// List returns the configured databases sorted by name.
func (r *Registry) List() []service.DatabaseEntry {
	return r.entries
}

// Close releases every connector's pool.
func (r *Registry) Close() {
	for _, conn := range r.connectors {
		conn.Close()
	}
}
