package debounce

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooked-notifications-worker/internal/constants"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(maxEntries int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(10*time.Second, maxEntries, clock.Now), clock
}

func TestShouldSkipMessageRules(t *testing.T) {
	tests := []struct {
		name     string
		advance  time.Duration
		content2 string
		wantSkip bool
	}{
		{name: "identical content within window", advance: 2 * time.Second, content2: "hello", wantSkip: true},
		{name: "different content within window", advance: 2 * time.Second, content2: "hello again", wantSkip: false},
		{name: "identical content after window", advance: 11 * time.Second, content2: "hello", wantSkip: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, clock := newTestCache(1000)

			require.False(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", "hello"))
			clock.Advance(tt.advance)
			assert.Equal(t, tt.wantSkip, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", tt.content2))
		})
	}
}

func TestShouldSkipMatchIsUnconditionalWithinWindow(t *testing.T) {
	cache, clock := newTestCache(1000)

	require.False(t, cache.ShouldSkip("s2", constants.JobTypeMatch, "", "first"))

	clock.Advance(3 * time.Second)
	// Any repeat within the window is noise, content does not matter
	assert.True(t, cache.ShouldSkip("s2", constants.JobTypeMatch, "", "totally different"))

	clock.Advance(11 * time.Second)
	assert.False(t, cache.ShouldSkip("s2", constants.JobTypeMatch, "", "first"))
}

func TestShouldSkipKeysMessagesBySender(t *testing.T) {
	cache, _ := newTestCache(1000)

	require.False(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", "hello"))
	// Same content from a different sender is a different key
	assert.False(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s3", "hello"))
	// And the same content to a different recipient
	assert.False(t, cache.ShouldSkip("s4", constants.JobTypeMessage, "s1", "hello"))
}

func TestShouldSkipNonSkipOverwritesEntry(t *testing.T) {
	cache, clock := newTestCache(1000)

	require.False(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", "one"))
	clock.Advance(2 * time.Second)
	require.False(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", "two"))
	clock.Advance(2 * time.Second)
	// "two" is now the stored content, so repeating it skips
	assert.True(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", "two"))
	assert.False(t, cache.ShouldSkip("s2", constants.JobTypeMessage, "s1", "one"))
}

func TestPurgeBoundsMemory(t *testing.T) {
	cache, clock := newTestCache(10)

	for i := 0; i < 10; i++ {
		cache.ShouldSkip(fmt.Sprintf("old-%d", i), constants.JobTypeMessage, "s1", "x")
	}
	require.Equal(t, 10, cache.Len())

	// Old entries fall past 2x the window and get purged on overflow
	clock.Advance(25 * time.Second)
	cache.ShouldSkip("fresh", constants.JobTypeMessage, "s1", "x")
	assert.Equal(t, 1, cache.Len())
}
