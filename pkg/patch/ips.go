package patch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	ipsMagic = []byte("PATCH")
	ipsEOF   = []byte("EOF")
)

// ErrInvalidIPS is returned when patchData does not start with the IPS
// "PATCH" magic or ends without the "EOF" marker.
var ErrInvalidIPS = errors.New("patch: not a valid IPS file")

// ApplyIPS applies an International Patching System patch to source,
// returning the patched bytes. IPS records are either literal
// (3-byte offset, 2-byte size, size bytes of data) or RLE (3-byte offset,
// size field == 0, 2-byte run length, 1 byte repeated that many times).
// A record may extend the target past len(source); the result grows to
// fit. The classic 0x454f46 ("EOF") offset truncation quirk — a literal
// record whose 3-byte offset equals the EOF marker — is not handled
// specially since spec.md does not call for the truncation-patch variant.
func ApplyIPS(source, patchData []byte) ([]byte, error) {
	if len(patchData) < len(ipsMagic)+len(ipsEOF) || !bytes.Equal(patchData[:5], ipsMagic) {
		return nil, ErrInvalidIPS
	}

	out := append([]byte(nil), source...)

	r := bytes.NewReader(patchData[5:])

	for {
		offsetBuf := make([]byte, 3)

		if _, err := io.ReadFull(r, offsetBuf); err != nil {
			return nil, fmt.Errorf("%w: reading record offset: truncated or missing EOF", ErrInvalidIPS)
		}

		if bytes.Equal(offsetBuf, ipsEOF) {
			break
		}

		offset := int(offsetBuf[0])<<16 | int(offsetBuf[1])<<8 | int(offsetBuf[2])

		sizeBuf := make([]byte, 2)
		if _, err := io.ReadFull(r, sizeBuf); err != nil {
			return nil, fmt.Errorf("patch: IPS: reading record size: %w", err)
		}

		size := int(sizeBuf[0])<<8 | int(sizeBuf[1])

		var data []byte

		if size == 0 {
			rleBuf := make([]byte, 2)
			if _, err := io.ReadFull(r, rleBuf); err != nil {
				return nil, fmt.Errorf("patch: IPS: reading RLE run length: %w", err)
			}

			runLen := int(rleBuf[0])<<8 | int(rleBuf[1])

			value, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("patch: IPS: reading RLE value: %w", err)
			}

			data = bytes.Repeat([]byte{value}, runLen)
		} else {
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("patch: IPS: reading literal data: %w", err)
			}
		}

		out = writeAt(out, offset, data)
	}

	return out, nil
}

// writeAt overlays data onto out at offset, growing out as needed.
func writeAt(out []byte, offset int, data []byte) []byte {
	need := offset + len(data)
	if need > len(out) {
		grown := make([]byte, need)
		copy(grown, out)
		out = grown
	}

	copy(out[offset:], data)

	return out
}
