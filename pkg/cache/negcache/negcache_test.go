package negcache_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/romtool/collator/pkg/cache/negcache"
)

func TestFilterContainsAllBuiltKeys(t *testing.T) {
	t.Parallel()

	keys := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		keys = append(keys, fmt.Sprintf("sha256-key-%d", i))
	}

	f := negcache.Build(keys)

	for _, k := range keys {
		assert.True(t, f.MayContain(k), "key %q should be a member", k)
	}

	assert.Equal(t, len(keys), f.Len())
}

func TestFilterRejectsMostAbsentKeys(t *testing.T) {
	t.Parallel()

	present := make([]string, 0, 2000)
	for i := 0; i < 2000; i++ {
		present = append(present, fmt.Sprintf("present-%d", i))
	}

	f := negcache.Build(present)

	falsePositives := 0

	for i := 0; i < 2000; i++ {
		if f.MayContain(fmt.Sprintf("absent-%d", i)) {
			falsePositives++
		}
	}

	// Golomb-coded sets sized this tightly admit some false positives,
	// but the overwhelming majority of absent keys must miss.
	assert.Less(t, falsePositives, 200)
}

func TestEmptyFilterRejectsEverything(t *testing.T) {
	t.Parallel()

	f := negcache.Empty()

	assert.False(t, f.MayContain("anything"))
	assert.Equal(t, 0, f.Len())
}

func TestNilFilterRejectsEverything(t *testing.T) {
	t.Parallel()

	var f *negcache.Filter

	assert.False(t, f.MayContain("anything"))
}
