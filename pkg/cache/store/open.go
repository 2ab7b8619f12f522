package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

const netTypeUnix = "unix"

// ErrInvalidPostgresUnixURL is returned when a postgres+unix URL is malformed.
var ErrInvalidPostgresUnixURL = errors.New("store: invalid postgres+unix URL")

// ErrInvalidMySQLUnixURL is returned when a mysql+unix URL is malformed.
var ErrInvalidMySQLUnixURL = errors.New("store: invalid mysql+unix URL")

// PoolConfig holds connection pool tuning. A zero value picks per-backend
// defaults; SQLite always forces MaxOpenConns to 1 regardless.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

func applyPoolSettings(sdb *sql.DB, cfg *PoolConfig, defaultMaxOpen, defaultMaxIdle int) {
	maxOpen, maxIdle := defaultMaxOpen, defaultMaxIdle

	if cfg != nil {
		if cfg.MaxOpenConns > 0 {
			maxOpen = cfg.MaxOpenConns
		}

		if cfg.MaxIdleConns > 0 {
			maxIdle = cfg.MaxIdleConns
		}
	}

	if maxOpen > 0 {
		sdb.SetMaxOpenConns(maxOpen)
	}

	if maxIdle > 0 {
		sdb.SetMaxIdleConns(maxIdle)
	}
}

func openSQLite(dbURL string, cfg *PoolConfig) (*sql.DB, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("sqlite3", u.Path, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, err
	}

	// One writer at a time avoids "database is locked" under concurrent
	// put_checksums/put_enrichment calls.
	sdb.SetMaxOpenConns(1)

	if cfg != nil && cfg.MaxIdleConns > 0 {
		sdb.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	return sdb, nil
}

func openPostgreSQL(dbURL string, cfg *PoolConfig) (*sql.DB, error) {
	processed, err := parsePostgreSQLURL(dbURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("pgx", processed, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sdb, cfg, 25, 5)

	return sdb, nil
}

func parsePostgreSQLURL(dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(u.Scheme)
	if strings.Contains(scheme, "+unix") {
		socketDir, dbName := path.Split(u.Path)
		if dbName == "" {
			return "", fmt.Errorf("%w: missing database name in path: %s", ErrInvalidPostgresUnixURL, dbURL)
		}

		if socketDir == "" {
			return "", fmt.Errorf("%w: missing socket directory in path: %s", ErrInvalidPostgresUnixURL, dbURL)
		}

		socketDir = path.Clean(socketDir)

		u.Path = "/" + dbName
		q := u.Query()
		q.Set("host", socketDir)
		u.RawQuery = q.Encode()
	}

	if strings.Contains(scheme, "+") {
		switch {
		case strings.HasPrefix(scheme, "postgresql"):
			u.Scheme = "postgresql"
		case strings.HasPrefix(scheme, "postgres"):
			u.Scheme = "postgres"
		}
	}

	return u.String(), nil
}

func openMySQL(dbURL string, cfg *PoolConfig) (*sql.DB, error) {
	mcfg, err := parseMySQLConfig(dbURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("mysql", mcfg.FormatDSN(), otelsql.WithAttributes(semconv.DBSystemMySQL))
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sdb, cfg, 25, 5)

	return sdb, nil
}

func parseMySQLConfig(dbURL string) (*mysql.Config, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, err
	}

	cfg := mysql.NewConfig()

	if u.User != nil {
		cfg.User = u.User.Username()
		if password, ok := u.User.Password(); ok {
			cfg.Passwd = password
		}
	}

	query := u.Query()
	scheme := strings.ToLower(u.Scheme)

	switch {
	case strings.Contains(scheme, "+unix"):
		if err := parseMySQLUnixPath(cfg, u, dbURL); err != nil {
			return nil, err
		}
	case query.Get("socket") != "":
		cfg.Net = netTypeUnix
		cfg.Addr = query.Get("socket")
	case query.Get("unix_socket") != "":
		cfg.Net = netTypeUnix
		cfg.Addr = query.Get("unix_socket")
	case u.Host != "":
		cfg.Net = "tcp"
		cfg.Addr = u.Host
	}

	if cfg.DBName == "" && u.Path != "" {
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
	}

	cfg.Params = map[string]string{
		"parseTime": "true",
		"loc":       "UTC",
	}

	for k, v := range query {
		if len(v) > 0 {
			cfg.Params[k] = v[0]
		}
	}

	return cfg, nil
}

func parseMySQLUnixPath(cfg *mysql.Config, u *url.URL, dbURL string) error {
	socketPath, dbName := path.Split(u.Path)
	if dbName == "" {
		return fmt.Errorf("%w: missing database name in path: %s", ErrInvalidMySQLUnixURL, dbURL)
	}

	if socketPath == "" {
		return fmt.Errorf("%w: missing socket path in path: %s", ErrInvalidMySQLUnixURL, dbURL)
	}

	cfg.Net = netTypeUnix
	cfg.Addr = path.Clean(socketPath)
	cfg.DBName = dbName

	return nil
}
