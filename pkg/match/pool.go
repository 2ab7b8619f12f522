package match

import (
	"context"
	"sync"

	"github.com/romtool/collator/pkg/catalog"
	"github.com/romtool/collator/pkg/romset"
)

// Parallel shards records across workers workers and merges their partial
// Results. The Index is read-only once built, so sharing *catalog.Index
// across goroutines needs no synchronization. Uses the same scan/hash
// worker-pool idiom as pkg/scanner, generalized to a pure CPU-bound
// fan-out with no channel backpressure needed since the whole record
// slice is already in memory by the time matching starts.
func Parallel(ctx context.Context, idx *catalog.Index, records []romset.RawRecord, workers int) Result {
	if workers < 1 {
		workers = 1
	}

	if len(records) == 0 {
		return Result{}
	}

	if workers > len(records) {
		workers = len(records)
	}

	chunks := make([][]romset.RawRecord, workers)
	for i, r := range records {
		chunks[i%workers] = append(chunks[i%workers], r)
	}

	results := make([]Result, workers)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
			}

			results[i] = All(idx, chunks[i])
		}()
	}

	wg.Wait()

	var merged Result

	for _, r := range results {
		merged.Matched = append(merged.Matched, r.Matched...)
		merged.Unmatched = append(merged.Unmatched, r.Unmatched...)
	}

	return merged
}
