package patch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var upsMagic = []byte("UPS1")

// ErrInvalidUPS covers malformed headers, truncated footers, and checksum
// mismatches detected while applying a UPS patch.
var ErrInvalidUPS = errors.New("patch: not a valid UPS file")

// ApplyUPS applies a Universal Patching System patch to source. UPS
// encodes the difference as runs of (relative-offset varint, XOR bytes
// terminated by a literal 0x00), and closes with three CRC32 footers
// (source, target, patch) that ApplyUPS verifies against the bytes it
// actually read and produced.
func ApplyUPS(source, patchData []byte) ([]byte, error) {
	if len(patchData) < len(upsMagic)+12 || !bytes.Equal(patchData[:4], upsMagic) {
		return nil, ErrInvalidUPS
	}

	patchCRC := crc32.ChecksumIEEE(patchData[:len(patchData)-4])
	wantPatchCRC := binary.LittleEndian.Uint32(patchData[len(patchData)-4:])

	if patchCRC != wantPatchCRC {
		return nil, fmt.Errorf("%w: patch checksum mismatch", ErrInvalidUPS)
	}

	body := patchData[4 : len(patchData)-12]
	footer := patchData[len(patchData)-12:]

	wantSourceCRC := binary.LittleEndian.Uint32(footer[0:4])
	wantTargetCRC := binary.LittleEndian.Uint32(footer[4:8])

	r := bytes.NewReader(body)

	sourceSize, err := readUPSVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading source size: %w", ErrInvalidUPS, err)
	}

	targetSize, err := readUPSVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading target size: %w", ErrInvalidUPS, err)
	}

	if uint64(len(source)) != sourceSize {
		return nil, fmt.Errorf("%w: source size mismatch: have %d want %d", ErrInvalidUPS, len(source), sourceSize)
	}

	out := make([]byte, targetSize)
	copy(out, source)

	pos := 0

	for r.Len() > 0 {
		delta, err := readUPSVarInt(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading block offset: %w", ErrInvalidUPS, err)
		}

		pos += int(delta)

		for {
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("%w: reading XOR run: %w", ErrInvalidUPS, err)
			}

			if b == 0 {
				break
			}

			if pos < len(out) {
				out[pos] ^= b
			}

			pos++
		}
	}

	if crc32.ChecksumIEEE(source) != wantSourceCRC {
		return nil, fmt.Errorf("%w: source checksum mismatch", ErrInvalidUPS)
	}

	if crc32.ChecksumIEEE(out) != wantTargetCRC {
		return nil, fmt.Errorf("%w: target checksum mismatch", ErrInvalidUPS)
	}

	return out, nil
}

// readUPSVarInt decodes UPS's variable length integer: the same
// 7-bits-per-byte-plus-bias scheme BPS uses (see readBPSVarInt), so that
// every encoding of a given value is unique.
func readUPSVarInt(r *bytes.Reader) (uint64, error) {
	var (
		data  uint64
		shift uint64 = 1
	)

	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}

		data += uint64(b&0x7f) * shift

		if b&0x80 != 0 {
			break
		}

		shift <<= 7
		data += shift
	}

	return data, nil
}
