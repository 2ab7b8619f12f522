package cache

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Enrichment payloads are arbitrary JSON from external sources and stored
// zstd-compressed to bound table growth. Encoders/decoders are pooled the
// same way pkg/zstd pools them, narrowed to this package's one call site.
var (
	encoderPool = sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil)

			return enc
		},
	}

	decoderPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil)

			return dec
		},
	}
)

func compressPayload(data []byte) ([]byte, error) {
	enc, _ := encoderPool.Get().(*zstd.Encoder)

	defer func() {
		enc.Reset(nil)
		encoderPool.Put(enc)
	}()

	var buf bytes.Buffer

	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressPayload(data []byte) ([]byte, error) {
	dec, _ := decoderPool.Get().(*zstd.Decoder)

	defer func() {
		dec.Reset(nil)
		decoderPool.Put(dec)
	}()

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return io.ReadAll(dec)
}
