package torrentzip

import "encoding/binary"

// Zip format constants (ZIP 2.0 local/central directory records, PKWARE
// APPNOTE.TXT); kept local rather than reused from stdlib archive/zip
// since that package does not expose the raw central-directory bytes this
// writer needs for its EOCD self-check comment.
const (
	localFileHeaderSig    = 0x04034b50
	centralDirHeaderSig   = 0x02014b50
	eocdSig               = 0x06054b50
	zip64EOCDSig          = 0x06064b50
	zip64EOCDLocatorSig   = 0x07064b50
	zip64ExtraTag         = 0x0001
	methodStore           = 0
	methodDeflate         = 8
	versionNeededDefault  = 20
	versionNeededZip64    = 45
	versionMadeBy         = 0x0314 // unix, zip spec 2.0
	maxUint32             = 0xFFFFFFFF
	maxUint16             = 0xFFFF
)

// torrentZipDOSDate/torrentZipDOSTime encode the fixed TorrentZip epoch,
// 1996-12-24 23:32:00, in DOS date/time format. Every entry in a
// TorrentZip archive carries this exact timestamp so that two runs over
// the same members produce byte-identical archives.
const (
	torrentZipDOSDate = ((1996 - 1980) << 9) | (12 << 5) | 24
	torrentZipDOSTime = (23 << 11) | (32 << 5) | (0 / 2)
)

func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
