// Package torrentzip writes deterministic, byte-identical zip archives:
// given the same member bytes and names, two runs produce the same file,
// regardless of build machine, timestamp, or filesystem entry order.
package torrentzip

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const otelPackageName = "github.com/romtool/collator/pkg/torrentzip"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// Entry is one member to fold into the archive. Data is read in full and
// buffered so its CRC32 and compressed size are known before the local
// file header is written; ROM members are small enough in practice that
// this costs far less than the determinism a streaming writer would give
// up (a data-descriptor trailer would make entries order-sensitive to
// read, not just to write).
type Entry struct {
	Name string
	Data io.Reader
}

type centralRecord struct {
	name     string
	crc      uint32
	compSize uint64
	rawSize  uint64
	method   uint16
	offset   uint64
}

// WriteFile renders entries into a TorrentZip archive at path. Entries
// are sorted by lowercase name, then name, before writing, so the input
// order never affects the output. Any failure removes the partial file:
// atomic-write-then-delete-on-failure, since a TorrentZip archive has no
// useful partial form to keep.
func WriteFile(ctx context.Context, path string, entries []Entry) error {
	_, span := tracer.Start(ctx, "torrentzip.WriteFile",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int("entries", len(entries)),
		),
	)
	defer span.End()

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".torrentzip-*.tmp")
	if err != nil {
		return fmt.Errorf("torrentzip: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if err := write(tmp, sorted); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("torrentzip: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("torrentzip: renaming into place: %w", err)
	}

	return nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		li, lj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if li != lj {
			return li < lj
		}

		return entries[i].Name < entries[j].Name
	})
}

func write(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)

	var offset uint64

	records := make([]centralRecord, 0, len(entries))

	for _, e := range entries {
		rec, err := writeLocalEntry(bw, e, offset)
		if err != nil {
			return err
		}

		offset += localEntrySize(rec)
		records = append(records, rec)
	}

	cdStart := offset

	var cdBuf bytes.Buffer

	for _, rec := range records {
		writeCentralRecord(&cdBuf, rec)
	}

	if _, err := bw.Write(cdBuf.Bytes()); err != nil {
		return fmt.Errorf("torrentzip: writing central directory: %w", err)
	}

	cdSize := uint64(cdBuf.Len())
	cdCRC := crc32.ChecksumIEEE(cdBuf.Bytes())

	if err := writeEOCD(bw, len(records), cdStart, cdSize, cdCRC); err != nil {
		return err
	}

	return bw.Flush()
}

func localEntrySize(rec centralRecord) uint64 {
	const localHeaderFixedSize = 30

	return localHeaderFixedSize + uint64(len(rec.name)) + rec.compSize
}

func writeLocalEntry(w io.Writer, e Entry, offset uint64) (centralRecord, error) {
	raw, err := io.ReadAll(e.Data)
	if err != nil {
		return centralRecord{}, fmt.Errorf("torrentzip: reading %s: %w", e.Name, err)
	}

	crc := crc32.ChecksumIEEE(raw)

	compressed, method := deflateOrStore(raw)

	rec := centralRecord{
		name:     e.Name,
		crc:      crc,
		compSize: uint64(len(compressed)),
		rawSize:  uint64(len(raw)),
		method:   method,
		offset:   offset,
	}

	header := make([]byte, 30)
	putUint32(header[0:4], localFileHeaderSig)
	putUint16(header[4:6], versionNeededDefault)
	putUint16(header[6:8], 0) // flags
	putUint16(header[8:10], method)
	putUint16(header[10:12], torrentZipDOSTime)
	putUint16(header[12:14], torrentZipDOSDate)
	putUint32(header[14:18], crc)
	putUint32(header[18:22], uint32(min64(rec.compSize, maxUint32)))
	putUint32(header[22:26], uint32(min64(rec.rawSize, maxUint32)))
	putUint16(header[26:28], uint16(len(e.Name)))
	putUint16(header[28:30], 0) // extra field length

	if _, err := w.Write(header); err != nil {
		return centralRecord{}, fmt.Errorf("torrentzip: writing local header for %s: %w", e.Name, err)
	}

	if _, err := io.WriteString(w, e.Name); err != nil {
		return centralRecord{}, fmt.Errorf("torrentzip: writing name for %s: %w", e.Name, err)
	}

	if _, err := w.Write(compressed); err != nil {
		return centralRecord{}, fmt.Errorf("torrentzip: writing data for %s: %w", e.Name, err)
	}

	return rec, nil
}

// deflateOrStore returns the compressed form at maximum DEFLATE
// compression, falling back to an uncompressed "store" copy when deflate
// does not actually shrink the payload (common for already-compressed ROM
// dumps), so the archive never pays a size penalty for trying.
func deflateOrStore(raw []byte) ([]byte, uint16) {
	var buf bytes.Buffer

	fw, _ := flate.NewWriter(&buf, flate.BestCompression)
	_, _ = fw.Write(raw)
	_ = fw.Close()

	if buf.Len() >= len(raw) {
		return raw, methodStore
	}

	return buf.Bytes(), methodDeflate
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}

func writeCentralRecord(buf *bytes.Buffer, rec centralRecord) {
	header := make([]byte, 46)
	putUint32(header[0:4], centralDirHeaderSig)
	putUint16(header[4:6], versionMadeBy)
	putUint16(header[6:8], versionNeededDefault)
	putUint16(header[8:10], 0) // flags
	putUint16(header[10:12], rec.method)
	putUint16(header[12:14], torrentZipDOSTime)
	putUint16(header[14:16], torrentZipDOSDate)
	putUint32(header[16:20], rec.crc)
	putUint32(header[20:24], uint32(min64(rec.compSize, maxUint32)))
	putUint32(header[24:28], uint32(min64(rec.rawSize, maxUint32)))
	putUint16(header[28:30], uint16(len(rec.name)))
	putUint16(header[30:32], 0) // extra field length
	putUint16(header[32:34], 0) // comment length
	putUint16(header[34:36], 0) // disk number start
	putUint16(header[36:38], 0) // internal attrs
	putUint32(header[38:42], 0) // external attrs
	putUint32(header[42:46], uint32(min64(rec.offset, maxUint32)))

	buf.Write(header)
	buf.WriteString(rec.name)
}

// writeEOCD appends the End-Of-Central-Directory record (with an
// automatic ZIP64 EOCD + locator when any count or size exceeds the
// classic ZIP limits) and the signed comment carrying the central
// directory's CRC32.
func writeEOCD(w io.Writer, count int, cdStart, cdSize uint64, cdCRC uint32) error {
	needsZip64 := count > maxUint16 || cdStart+cdSize > maxUint32 || cdStart > maxUint32

	if needsZip64 {
		if err := writeZip64EOCD(w, count, cdStart, cdSize); err != nil {
			return err
		}
	}

	comment := fmt.Sprintf("TorrentZip CRC: %08X", cdCRC)

	eocd := make([]byte, 22)
	putUint32(eocd[0:4], eocdSig)
	putUint16(eocd[4:6], 0) // disk number
	putUint16(eocd[6:8], 0) // disk with central dir
	putUint16(eocd[8:10], uint16(min64(uint64(count), maxUint16)))
	putUint16(eocd[10:12], uint16(min64(uint64(count), maxUint16)))
	putUint32(eocd[12:16], uint32(min64(cdSize, maxUint32)))
	putUint32(eocd[16:20], uint32(min64(cdStart, maxUint32)))
	putUint16(eocd[20:22], uint16(len(comment)))

	if _, err := w.Write(eocd); err != nil {
		return fmt.Errorf("torrentzip: writing EOCD: %w", err)
	}

	if _, err := io.WriteString(w, comment); err != nil {
		return fmt.Errorf("torrentzip: writing EOCD comment: %w", err)
	}

	return nil
}

func writeZip64EOCD(w io.Writer, count int, cdStart, cdSize uint64) error {
	zip64End := cdStart + cdSize

	rec := make([]byte, 56)
	putUint32(rec[0:4], zip64EOCDSig)
	putUint64(rec[4:12], 44) // size of this record, excluding the leading 12 bytes
	putUint16(rec[12:14], versionMadeBy)
	putUint16(rec[14:16], versionNeededZip64)
	putUint32(rec[16:20], 0) // disk number
	putUint32(rec[20:24], 0) // disk with central dir
	putUint64(rec[24:32], uint64(count))
	putUint64(rec[32:40], uint64(count))
	putUint64(rec[40:48], cdSize)
	putUint64(rec[48:56], cdStart)

	if _, err := w.Write(rec); err != nil {
		return fmt.Errorf("torrentzip: writing zip64 EOCD: %w", err)
	}

	locator := make([]byte, 20)
	putUint32(locator[0:4], zip64EOCDLocatorSig)
	putUint32(locator[4:8], 0) // disk with zip64 EOCD
	putUint64(locator[8:16], zip64End)
	putUint32(locator[16:20], 1) // total number of disks

	if _, err := w.Write(locator); err != nil {
		return fmt.Errorf("torrentzip: writing zip64 EOCD locator: %w", err)
	}

	return nil
}
