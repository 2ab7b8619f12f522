package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/romtool/collator/pkg/romset"
)

type checksumRow struct {
	bun.BaseModel `bun:"table:checksums,alias:c"`

	SHA256    string    `bun:"sha256,pk"`
	Source    string    `bun:"source,notnull"`
	Size      int64     `bun:"size,notnull"`
	CRC32     string    `bun:"crc32"`
	MD5       string    `bun:"md5"`
	SHA1      string    `bun:"sha1"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type enrichmentRow struct {
	bun.BaseModel `bun:"table:enrichment,alias:e"`

	SHA256    string    `bun:"sha256,pk"`
	Source    string    `bun:"source,pk"`
	Payload   []byte    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// DigestRow is the checksums table's row shape: key sha256, source, size,
// and the full multi-algorithm digest.
type DigestRow struct {
	Source    string
	Size      int64
	Digest    romset.Digest
	UpdatedAt time.Time
}

func (r DigestRow) toModel() checksumRow {
	return checksumRow{
		SHA256:    r.Digest.SHA256,
		Source:    r.Source,
		Size:      r.Size,
		CRC32:     r.Digest.CRC32,
		MD5:       r.Digest.MD5,
		SHA1:      r.Digest.SHA1,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromModel(m checksumRow) DigestRow {
	return DigestRow{
		Source: m.Source,
		Size:   m.Size,
		Digest: romset.Digest{
			CRC32:  m.CRC32,
			MD5:    m.MD5,
			SHA1:   m.SHA1,
			SHA256: m.SHA256,
		},
		UpdatedAt: m.UpdatedAt,
	}
}
