package store

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Type identifies the SQL backend behind a cache database URL.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeSQLite
	TypePostgreSQL
	TypeMySQL
)

func (t Type) String() string {
	switch t {
	case TypeSQLite:
		return "SQLite"
	case TypePostgreSQL:
		return "PostgreSQL"
	case TypeMySQL:
		return "MySQL"
	case TypeUnknown:
		fallthrough
	default:
		return "unknown"
	}
}

// ErrUnsupportedDriver is returned when a cache URL's scheme names a
// backend this package does not support.
var ErrUnsupportedDriver = errors.New("store: unsupported database driver")

// detectType determines the SQL backend from a cache database URL's
// scheme: sqlite(3)://, postgres(ql)(+unix)://, mysql(+unix)://.
func detectType(dbURL string) (Type, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return TypeUnknown, fmt.Errorf("store: parsing database URL %q: %w", dbURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3":
		return TypeSQLite, nil
	case "postgres", "postgresql", "postgres+unix", "postgresql+unix":
		return TypePostgreSQL, nil
	case "mysql", "mysql+unix":
		return TypeMySQL, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedDriver, u.Scheme)
	}
}
