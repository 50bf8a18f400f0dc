// Package throttle bounds how many "I don't understand" replies an
// unauthenticated query sender receives. Senders are tracked in an
// explicitly ordered table (oldest entry first); every invalid attempt
// moves its sender to the back, so garbage collection only ever needs to
// examine the front.
package throttle

import (
	"sync"
	"time"

	"github.com/presbrey/voiced/casefold"
)

// Defaults matching the query front end's tolerance for noise.
const (
	DefaultLimit   = 10
	DefaultTimeout = 2 * time.Minute
)

type entry struct {
	count int
	last  time.Time
}

// Throttle counts invalid attempts per sender. Safe for concurrent use.
type Throttle struct {
	mu      sync.Mutex
	limit   int
	timeout time.Duration
	order   []string // folded sender keys, oldest update first
	entries map[string]*entry

	now func() time.Time
}

// New returns a Throttle answering up to limit invalid attempts per sender
// and forgetting senders idle longer than timeout. Non-positive arguments
// fall back to the defaults.
func New(limit int, timeout time.Duration) *Throttle {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Throttle{
		limit:   limit,
		timeout: timeout,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Invalid records an invalid attempt by sender and reports whether the
// sender should still be answered. The decision is made on the count
// before this attempt, so a sender receives at most limit replies and is
// then silently dropped until a valid command or the idle timeout resets
// them.
func (t *Throttle) Invalid(sender string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := casefold.Fold(sender)
	now := t.now()

	e := t.entries[key]
	previous := 0
	if e != nil {
		previous = e.count
		t.unlink(key)
	} else {
		e = &entry{}
		t.entries[key] = e
	}
	e.count = previous + 1
	e.last = now
	t.order = append(t.order, key)

	t.collect(now)
	return previous < t.limit
}

// Valid clears the sender's entry entirely, restoring its full allowance.
func (t *Throttle) Valid(sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := casefold.Fold(sender)
	if _, ok := t.entries[key]; ok {
		delete(t.entries, key)
		t.unlink(key)
	}
}

// Len returns the number of tracked senders.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// collect evicts expired entries from the front of the order. Entries are
// re-inserted at the back on every update, so the first fresh entry ends
// the scan.
func (t *Throttle) collect(now time.Time) {
	for len(t.order) > 0 {
		key := t.order[0]
		if now.Sub(t.entries[key].last) < t.timeout {
			break
		}
		delete(t.entries, key)
		t.order = t.order[1:]
	}
}

// unlink removes key from the order slice. The caller still owns the map
// entry.
func (t *Throttle) unlink(key string) {
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
