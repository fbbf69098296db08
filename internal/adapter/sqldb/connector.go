// Package sqldb adapts database/sql drivers (MySQL, Oracle) to the pipeline's
// connector and session ports. PostgreSQL uses the dedicated pgx adapter.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/parallaxdb/parallax/internal/core/domain"
	"github.com/parallaxdb/parallax/internal/core/port"
)

// ConnectionInfo is everything needed to open one named database.
type ConnectionInfo struct {
	Host        string
	Port        int
	Database    string // schema name (MySQL) or service name (Oracle)
	User        string
	Password    string
	MaxConns    int
	MaxLifetime time.Duration
}

// Connector wraps a *sql.DB for one dialect.
type Connector struct {
	db           *sql.DB
	dialect      domain.Dialect
	sqld         port.SQLDialect
	queryTimeout time.Duration
}

// NewMySQLConnector opens a MySQL connection pool. sql.Open is lazy; no
// network traffic happens until the first session or ping.
func NewMySQLConnector(info ConnectionInfo, sqld port.SQLDialect, queryTimeout time.Duration) (*Connector, error) {
	cfg := mysql.NewConfig()
	cfg.User = info.User
	cfg.Passwd = info.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", info.Host, info.Port)
	cfg.DBName = info.Database
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	configurePool(db, info)

	return &Connector{db: db, dialect: domain.DialectMySQL, sqld: sqld, queryTimeout: queryTimeout}, nil
}

// NewOracleConnector opens an Oracle connection pool via the pure-Go go-ora
// driver.
func NewOracleConnector(info ConnectionInfo, sqld port.SQLDialect, queryTimeout time.Duration) (*Connector, error) {
	dsn := go_ora.BuildUrl(info.Host, info.Port, info.Database, info.User, info.Password, nil)

	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening oracle connection: %w", err)
	}
	configurePool(db, info)

	return &Connector{db: db, dialect: domain.DialectOracle, sqld: sqld, queryTimeout: queryTimeout}, nil
}

func configurePool(db *sql.DB, info ConnectionInfo) {
	if info.MaxConns > 0 {
		db.SetMaxOpenConns(info.MaxConns)
	}
	if info.MaxLifetime > 0 {
		db.SetConnMaxLifetime(info.MaxLifetime)
	}
}

func (c *Connector) Dialect() domain.Dialect { return c.dialect }

// AcquireSession pins one connection out of the pool so temp tables created
// by a comparison stay visible for its whole lifetime.
func (c *Connector) AcquireSession(ctx context.Context) (port.Session, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return &Session{conn: conn, sqld: c.sqld, queryTimeout: c.queryTimeout}, nil
}

func (c *Connector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *Connector) Close() { _ = c.db.Close() }
