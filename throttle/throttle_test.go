package throttle

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedClock lets tests advance time explicitly.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newThrottleAt(limit int, timeout time.Duration) (*Throttle, *fixedClock) {
	clock := &fixedClock{t: time.Unix(1_700_000_000, 0)}
	th := New(limit, timeout)
	th.now = clock.now
	return th, clock
}

func TestLimitThenSilence(t *testing.T) {
	th, _ := newThrottleAt(10, 0)

	answered := 0
	for i := 0; i < 15; i++ {
		if th.Invalid("noisy") {
			answered++
		}
	}
	assert.Equal(t, 10, answered, "Exactly limit replies, then silence")
}

func TestValidResetsAllowance(t *testing.T) {
	th, _ := newThrottleAt(2, 0)

	for i := 0; i < 5; i++ {
		th.Invalid("sender")
	}
	assert.False(t, th.Invalid("sender"), "Sender should be over the limit")

	th.Valid("sender")
	assert.True(t, th.Invalid("sender"), "A valid command should restore the allowance")
	assert.Equal(t, 1, th.Len())
}

func TestSendersAreIndependent(t *testing.T) {
	th, _ := newThrottleAt(1, 0)

	th.Invalid("a")
	th.Invalid("a")
	th.Invalid("a")
	assert.False(t, th.Invalid("a"), "Sender a should be exhausted")
	assert.True(t, th.Invalid("b"), "Sender b should be unaffected")
}

func TestCaseFoldedSenders(t *testing.T) {
	th, _ := newThrottleAt(1, 0)

	th.Invalid("Noisy")
	th.Invalid("noisy")
	th.Invalid("NOISY")
	assert.False(t, th.Invalid("noisy"), "Case variants should share one counter")
	assert.Equal(t, 1, th.Len())
}

func TestGarbageCollectionFromFront(t *testing.T) {
	th, clock := newThrottleAt(10, 2*time.Minute)

	th.Invalid("old")
	clock.advance(90 * time.Second)
	th.Invalid("fresh")
	clock.advance(40 * time.Second)

	// "old" is now 130s idle, "fresh" only 40s. The next attempt triggers
	// collection, which must stop at the first fresh entry.
	th.Invalid("another")
	assert.Equal(t, 2, th.Len(), "Only the expired front entry should be evicted")
	assert.True(t, th.Invalid("old"), "An evicted sender should start over with a clean count")
}

func TestUpdateMovesEntryToBack(t *testing.T) {
	th, clock := newThrottleAt(10, 2*time.Minute)

	th.Invalid("a")
	th.Invalid("b")
	clock.advance(100 * time.Second)
	th.Invalid("a") // refreshes a, leaving b the oldest
	clock.advance(30 * time.Second)

	th.Invalid("c")
	assert.Equal(t, 2, th.Len(), "b should have expired while the refreshed a survives")
	assert.True(t, th.Invalid("a"), "The surviving entry should keep its count, still under the limit")
}

func TestManySenders(t *testing.T) {
	th, clock := newThrottleAt(10, time.Minute)
	for i := 0; i < 50; i++ {
		th.Invalid(fmt.Sprintf("sender%d", i))
	}
	assert.Equal(t, 50, th.Len())
	clock.advance(2 * time.Minute)
	th.Invalid("late")
	assert.Equal(t, 1, th.Len(), "All idle senders should be swept in one pass")
}
