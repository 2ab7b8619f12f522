// Package zipfile implements archive.Archive over stdlib archive/zip,
// registering klauspost/compress/flate as the DEFLATE decompressor
// rather than stdlib's compress/flate for faster reads on large sets.
package zipfile

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	kflate "github.com/klauspost/compress/flate"

	"github.com/romtool/collator/pkg/archive"
)

// Zip wraps a stdlib zip.ReadCloser as an archive.Archive.
type Zip struct {
	path string
	r    *zip.ReadCloser
}

// Open opens the zip file at path for listing and member extraction.
// The caller must call Close when done.
func Open(path string) (*Zip, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("zipfile: opening %q: %w", path, err)
	}

	r.RegisterDecompressor(zip.Deflate, func(rd io.Reader) io.ReadCloser {
		return kflate.NewReader(rd)
	})

	return &Zip{path: path, r: r}, nil
}

func (z *Zip) Close() error { return z.r.Close() }

func (z *Zip) Kind() archive.Kind { return archive.KindZip }

func (z *Zip) List(_ context.Context) ([]archive.Member, error) {
	members := make([]archive.Member, 0, len(z.r.File))

	for _, f := range z.r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		members = append(members, archive.Member{
			Name:             f.Name,
			UncompressedSize: int64(f.UncompressedSize64),
		})
	}

	return members, nil
}

func (z *Zip) Open(_ context.Context, name string) (io.ReadCloser, error) {
	for _, f := range z.r.File {
		if f.Name == name {
			return f.Open()
		}
	}

	return nil, fmt.Errorf("zipfile: member %q not found in %q", name, z.path)
}
