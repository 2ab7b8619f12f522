// Package store is the multi-backend SQL layer behind pkg/cache: two
// tables, checksums and enrichment, both keyed by sha256, opened against
// sqlite://, postgres(ql):// or mysql:// via uptrace/bun. It has no
// opinion about negative caching or blob mirroring — pkg/cache composes
// those on top.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/romtool/collator/pkg/lock"
	"github.com/romtool/collator/pkg/lock/local"
)

// writeLockKey is the single key guarding both upsert paths below. There
// is only ever one writer-serialization domain per Store, so every write
// contends for the same key rather than one per table.
const writeLockKey = "cache-store-write"

// writeLockTTL bounds how long a distributed writer lock is held before
// it's considered abandoned; local locking ignores it entirely.
const writeLockTTL = 30 * time.Second

// Store wraps a bun.DB for the checksums/enrichment tables. Reads run
// unserialized; writes are serialized through locker, which matters most
// for SQLite's single underlying connection and for multiple collator
// processes sharing one postgres/mysql database.
type Store struct {
	db  *bun.DB
	typ Type

	locker lock.Locker
}

// Open dials dbURL (scheme selects the backend: sqlite(3)://,
// postgres(ql)(+unix)://, mysql(+unix)://) and creates the checksums/enrichment tables
// if they don't already exist. locker serializes writers; a nil locker
// defaults to an in-process local.Locker, which is all a single-process
// SQLite cache needs.
func Open(ctx context.Context, dbURL string, poolCfg *PoolConfig, locker lock.Locker) (*Store, error) {
	typ, err := detectType(dbURL)
	if err != nil {
		return nil, err
	}

	var (
		sdb     *sql.DB
		dialect bun.Dialect
	)

	switch typ {
	case TypeSQLite:
		sdb, err = openSQLite(dbURL, poolCfg)
		dialect = sqlitedialect.New()
	case TypePostgreSQL:
		sdb, err = openPostgreSQL(dbURL, poolCfg)
		dialect = pgdialect.New()
	case TypeMySQL:
		sdb, err = openMySQL(dbURL, poolCfg)
		dialect = mysqldialect.New()
	case TypeUnknown:
		fallthrough
	default:
		return nil, ErrUnsupportedDriver
	}

	if err != nil {
		return nil, fmt.Errorf("store: opening %q: %w", dbURL, err)
	}

	if locker == nil {
		locker = local.NewLocker()
	}

	s := &Store{db: bun.NewDB(sdb, dialect), typ: typ, locker: locker}

	if err := s.createTables(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Type reports which SQL backend this store is talking to.
func (s *Store) Type() Type { return s.typ }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createTables(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*checksumRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("store: creating checksums table: %w", err)
	}

	if _, err := s.db.NewCreateTable().Model((*enrichmentRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("store: creating enrichment table: %w", err)
	}

	return nil
}

// AllChecksumKeys returns every sha256 currently present, for rebuilding
// the negative-cache filter from a full table scan.
func (s *Store) AllChecksumKeys(ctx context.Context) ([]string, error) {
	var keys []string

	if err := s.db.NewSelect().Model((*checksumRow)(nil)).Column("sha256").Scan(ctx, &keys); err != nil {
		return nil, fmt.Errorf("store: listing checksum keys: %w", err)
	}

	return keys, nil
}

// GetChecksums implements get_checksums(sha256) → DigestRow?.
func (s *Store) GetChecksums(ctx context.Context, sha256 string) (DigestRow, bool, error) {
	var row checksumRow

	err := s.db.NewSelect().Model(&row).Where("sha256 = ?", sha256).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DigestRow{}, false, nil
		}

		return DigestRow{}, false, fmt.Errorf("store: get_checksums(%q): %w", sha256, err)
	}

	return fromModel(row), true, nil
}

// PutChecksums implements put_checksums(DigestRow): upsert keyed by
// sha256, updated_at monotonically advanced.
func (s *Store) PutChecksums(ctx context.Context, row DigestRow) error {
	if row.Digest.SHA256 == "" {
		return errors.New("store: put_checksums: empty sha256 key")
	}

	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	model := row.toModel()

	if err := s.locker.Lock(ctx, writeLockKey, writeLockTTL); err != nil {
		return fmt.Errorf("store: put_checksums(%q): acquiring write lock: %w", row.Digest.SHA256, err)
	}
	defer s.locker.Unlock(ctx, writeLockKey) //nolint:errcheck

	q := s.db.NewInsert().Model(&model)

	if s.typ == TypeMySQL {
		q = q.On("DUPLICATE KEY UPDATE source = VALUES(source), size = VALUES(size), " +
			"crc32 = VALUES(crc32), md5 = VALUES(md5), sha1 = VALUES(sha1), updated_at = VALUES(updated_at)")
	} else {
		q = q.On("CONFLICT (sha256) DO UPDATE").
			Set("source = EXCLUDED.source").
			Set("size = EXCLUDED.size").
			Set("crc32 = EXCLUDED.crc32").
			Set("md5 = EXCLUDED.md5").
			Set("sha1 = EXCLUDED.sha1").
			Set("updated_at = EXCLUDED.updated_at")
	}

	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("store: put_checksums(%q): %w", row.Digest.SHA256, err)
	}

	return nil
}

// GetEnrichment implements get_enrichment(sha256, source) → payload?. The
// returned bytes are exactly what PutEnrichment was given — compression
// is pkg/cache's concern, not the store's.
func (s *Store) GetEnrichment(ctx context.Context, sha256, source string) ([]byte, bool, error) {
	var row enrichmentRow

	err := s.db.NewSelect().Model(&row).Where("sha256 = ? AND source = ?", sha256, source).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("store: get_enrichment(%q, %q): %w", sha256, source, err)
	}

	return row.Payload, true, nil
}

// PutEnrichment implements put_enrichment(sha256, source, payload):
// upsert keyed by (sha256, source).
func (s *Store) PutEnrichment(ctx context.Context, sha256, source string, payload []byte) error {
	model := enrichmentRow{
		SHA256:    sha256,
		Source:    source,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.locker.Lock(ctx, writeLockKey, writeLockTTL); err != nil {
		return fmt.Errorf("store: put_enrichment(%q, %q): acquiring write lock: %w", sha256, source, err)
	}
	defer s.locker.Unlock(ctx, writeLockKey) //nolint:errcheck

	q := s.db.NewInsert().Model(&model)

	if s.typ == TypeMySQL {
		q = q.On("DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)")
	} else {
		q = q.On("CONFLICT (sha256, source) DO UPDATE").
			Set("payload = EXCLUDED.payload").
			Set("updated_at = EXCLUDED.updated_at")
	}

	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("store: put_enrichment(%q, %q): %w", sha256, source, err)
	}

	return nil
}
