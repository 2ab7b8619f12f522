// Package scanner recursively enumerates the input roots, dispatching
// through pkg/archive for zip/7z members, and feeds every discovered
// file through the Digest Kernel. A bounded channel between the single
// walking producer and the hash worker pool applies backpressure:
// directories much larger than the hash pool can keep up with stall the
// walk rather than growing an unbounded in-memory queue.
package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/romtool/collator/pkg/archive"
	"github.com/romtool/collator/pkg/archive/sevenzip"
	"github.com/romtool/collator/pkg/archive/zipfile"
	"github.com/romtool/collator/pkg/digest"
	"github.com/romtool/collator/pkg/header"
	"github.com/romtool/collator/pkg/romset"
)

var tracer = otel.Tracer("github.com/romtool/collator/pkg/scanner")

// Options configures one Scan call.
type Options struct {
	// ScanThreads and HashThreads size the single hashing worker pool to
	// max(ScanThreads, HashThreads). Enumeration, including archive
	// listing, runs on the one walking producer that feeds the pool.
	ScanThreads int
	HashThreads int

	// Want is the digest algorithm set computed for every record.
	Want romset.Set

	// Headers identifies trainer/iNES-style leading headers to skip
	// before hashing. Defaults to header.Default() when nil.
	Headers *header.Table

	// ScratchDir is used by the 7z backend, which has no streaming
	// single-member read.
	ScratchDir string
}

func (o *Options) normalize() {
	if o.ScanThreads < 1 {
		o.ScanThreads = 1
	}

	if o.HashThreads < 1 {
		o.HashThreads = 1
	}

	if o.Want == 0 {
		o.Want = romset.All
	}

	if o.Headers == nil {
		o.Headers = header.Default()
	}
}

func (o Options) workerCount() int {
	if o.ScanThreads > o.HashThreads {
		return o.ScanThreads
	}

	return o.HashThreads
}

type job struct {
	sourcePath  string
	archivePath string
	entryName   string
}

// Scan walks every root and returns every RawRecord discovered, in no
// particular order (the caller sorts downstream, per the Candidate
// Selector's permutation-invariance contract). A per-file hashing
// failure is recorded as an Unhashable record rather than aborting the
// whole scan; only a walk-level or context-cancellation error aborts.
func Scan(ctx context.Context, roots []string, opts Options) ([]romset.RawRecord, error) {
	opts.normalize()

	jobs := make(chan job, opts.workerCount()*2)

	var (
		mu      sync.Mutex
		records []romset.RawRecord
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)

		return walkRoots(gctx, roots, jobs)
	})

	for i := 0; i < opts.workerCount(); i++ {
		g.Go(func() error {
			for j := range jobs {
				rec := hashJob(gctx, j, opts)

				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return records, err
	}

	return records, nil
}

// walkRoots is the single producer: it enumerates plain files and
// archive members and sends one job per hashable unit, blocking on a
// full channel (backpressure) and returning promptly on cancellation.
func walkRoots(ctx context.Context, roots []string, jobs chan<- job) error {
	visited := newVisitedSet()

	for _, root := range roots {
		if err := walkOne(ctx, root, jobs, visited); err != nil {
			return err
		}
	}

	return nil
}

func walkOne(ctx context.Context, root string, jobs chan<- job, visited *visitedSet) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scanner: stat %q: %w", root, err)
	}

	if !info.IsDir() {
		return enqueuePath(ctx, root, jobs)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil // broken symlink: skip, not fatal
			}

			info, err := os.Stat(resolved)
			if err != nil {
				return nil
			}

			if !visited.markAndCheck(resolved) {
				return nil // already visited: cycle, skip
			}

			if info.IsDir() {
				return walkOne(ctx, resolved, jobs, visited)
			}

			return enqueuePath(ctx, resolved, jobs)
		}

		if d.IsDir() {
			return nil
		}

		return enqueuePath(ctx, path, jobs)
	})
}

func enqueuePath(ctx context.Context, path string, jobs chan<- job) error {
	kind, ok, err := archive.SniffFile(path)
	if err != nil {
		return sendJob(ctx, jobs, job{sourcePath: path})
	}

	if !ok {
		return sendJob(ctx, jobs, job{sourcePath: path})
	}

	members, err := listArchive(path, kind)
	if err != nil {
		// Unreadable archive: surface it as a single unhashable record
		// rather than failing the whole scan.
		return sendJob(ctx, jobs, job{sourcePath: path})
	}

	for _, m := range members {
		if err := sendJob(ctx, jobs, job{archivePath: path, entryName: m.Name}); err != nil {
			return err
		}
	}

	return nil
}

func listArchive(path string, kind archive.Kind) ([]archive.Member, error) {
	switch kind {
	case archive.KindZip:
		z, err := zipfile.Open(path)
		if err != nil {
			return nil, err
		}
		defer z.Close()

		return z.List(context.Background())
	case archive.KindSevenZip:
		s, err := sevenzip.Open(path, path+".scratch")
		if err != nil {
			return nil, err
		}

		return s.List(context.Background())
	default:
		return nil, &archive.ErrUnsupportedKind{Kind: kind}
	}
}

func sendJob(ctx context.Context, jobs chan<- job, j job) error {
	select {
	case jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hashJob resolves one job to a RawRecord. I/O failures never abort the
// scan: they're reflected as Unhashable so the record can still
// participate in a (name, size) match. A plain file's Size starts as its
// on-disk size and is replaced by the hashed payload size on success; an
// archive member whose read fails keeps Size 0.
func hashJob(ctx context.Context, j job, opts Options) romset.RawRecord {
	path := j.sourcePath
	if path == "" {
		path = j.archivePath
	}

	_, span := tracer.Start(ctx, "scanner.hash", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	rec := romset.RawRecord{
		SourcePath:  j.sourcePath,
		ArchivePath: j.archivePath,
		EntryName:   j.entryName,
	}

	if j.archivePath == "" {
		if fi, err := os.Stat(j.sourcePath); err == nil {
			rec.Size = fi.Size()
		}
	}

	r, err := openJob(ctx, j, opts.ScratchDir)
	if err != nil {
		rec.Unhashable = true

		return rec
	}
	defer r.Close()

	lead := make([]byte, headerPeekSize)

	n, _ := io.ReadFull(r, lead)
	hdr := header.Probe(opts.Headers, rec.DisplayName(), lead[:n])

	remaining := io.MultiReader(io.Reader(&staticReader{data: lead[:n]}), r)

	k := digest.New(0)

	d, err := k.Sum(remaining, opts.Want, hdr)
	if err != nil {
		rec.Unhashable = true

		return rec
	}

	rec.Digest = d
	rec.Size = d.Size
	rec.Header = hdr

	return rec
}

const headerPeekSize = 256

type staticReader struct {
	data []byte
	pos  int
}

func (s *staticReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}

	n := copy(p, s.data[s.pos:])
	s.pos += n

	return n, nil
}

func openJob(ctx context.Context, j job, scratchDir string) (io.ReadCloser, error) {
	if j.archivePath == "" {
		return os.Open(j.sourcePath)
	}

	kind, ok, err := archive.SniffFile(j.archivePath)
	if err != nil || !ok {
		return nil, fmt.Errorf("scanner: could not identify archive %q", j.archivePath)
	}

	switch kind {
	case archive.KindZip:
		z, err := zipfile.Open(j.archivePath)
		if err != nil {
			return nil, err
		}

		rc, err := z.Open(ctx, j.entryName)
		if err != nil {
			z.Close()

			return nil, err
		}

		return &closeBoth{ReadCloser: rc, outer: z}, nil
	case archive.KindSevenZip:
		s, err := sevenzip.Open(j.archivePath, filepath.Join(scratchDir, filepath.Base(j.archivePath)+".scratch"))
		if err != nil {
			return nil, err
		}

		return s.Open(ctx, j.entryName)
	default:
		return nil, &archive.ErrUnsupportedKind{Kind: kind}
	}
}

type closeBoth struct {
	io.ReadCloser
	outer interface{ Close() error }
}

func (c *closeBoth) Close() error {
	err := c.ReadCloser.Close()
	if outerErr := c.outer.Close(); err == nil {
		err = outerErr
	}

	return err
}
