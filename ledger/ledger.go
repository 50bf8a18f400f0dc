// Package ledger stores the identities managed by voiced and their last
// recorded activity. Two insertion-ordered sets (managed nicknames and
// managed accounts) and two activity maps (identity to last-message unix
// time) are loaded once at startup, mutated for the process lifetime and
// rewritten wholesale on save.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/presbrey/voiced/casefold"
)

// File names inside the storage directory. The two list files hold one
// identity per line; the activity file holds a JSON array of the nickname
// and account timestamp maps, in that order.
const (
	nicknamesFile = "nicknames"
	accountsFile  = "accounts"
	activityFile  = "activity.json"
)

// set is an insertion-ordered set of case-folded identity names.
type set struct {
	order   []string
	members map[string]bool
}

func newSet() *set {
	return &set{members: make(map[string]bool)}
}

// add inserts name and reports whether it was not already present.
func (s *set) add(name string) bool {
	key := casefold.Fold(name)
	if s.members[key] {
		return false
	}
	s.members[key] = true
	s.order = append(s.order, key)
	return true
}

// remove deletes name and reports whether it was present.
func (s *set) remove(name string) bool {
	key := casefold.Fold(name)
	if !s.members[key] {
		return false
	}
	delete(s.members, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *set) contains(name string) bool {
	return s.members[casefold.Fold(name)]
}

// names returns the members in insertion order.
func (s *set) names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Ledger is the durable voice-management state. All methods are safe for
// concurrent use; evaluations from different goroutines share one Ledger.
type Ledger struct {
	mu  sync.Mutex
	dir string

	nicknames *set
	accounts  *set

	// Last-message unix seconds, keyed by folded identity. An entry exists
	// only while the identity is managed; prune enforces that.
	nickSeen map[string]int64
	acctSeen map[string]int64
}

// Open loads the ledger from dir. Absent files yield empty state rather
// than an error; anything else that fails to read or parse does error.
func Open(dir string) (*Ledger, error) {
	l := &Ledger{
		dir:       dir,
		nicknames: newSet(),
		accounts:  newSet(),
		nickSeen:  make(map[string]int64),
		acctSeen:  make(map[string]int64),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	nicks, err := readLines(filepath.Join(l.dir, nicknamesFile))
	if err != nil {
		return err
	}
	for _, n := range nicks {
		l.nicknames.add(n)
	}
	accts, err := readLines(filepath.Join(l.dir, accountsFile))
	if err != nil {
		return err
	}
	for _, a := range accts {
		l.accounts.add(a)
	}

	data, err := os.ReadFile(filepath.Join(l.dir, activityFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read activity file: %w", err)
	}
	var maps []map[string]int64
	if err := json.Unmarshal(data, &maps); err != nil {
		return fmt.Errorf("failed to parse activity file: %w", err)
	}
	if len(maps) > 0 {
		for k, v := range maps[0] {
			l.nickSeen[casefold.Fold(k)] = v
		}
	}
	if len(maps) > 1 {
		for k, v := range maps[1] {
			l.acctSeen[casefold.Fold(k)] = v
		}
	}
	l.pruneLocked()
	return nil
}

// Save prunes stale activity entries and rewrites all ledger files. A list
// file that is empty in memory and absent on disk is skipped rather than
// created.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()

	if err := writeLines(filepath.Join(l.dir, nicknamesFile), l.nicknames.names()); err != nil {
		return err
	}
	if err := writeLines(filepath.Join(l.dir, accountsFile), l.accounts.names()); err != nil {
		return err
	}
	data, err := json.Marshal([]map[string]int64{l.nickSeen, l.acctSeen})
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, activityFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write activity file: %w", err)
	}
	return nil
}

// Prune removes activity entries whose identity has left the corresponding
// managed set. It runs automatically after load and before save.
func (l *Ledger) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
}

func (l *Ledger) pruneLocked() {
	for k := range l.nickSeen {
		if !l.nicknames.members[k] {
			delete(l.nickSeen, k)
		}
	}
	for k := range l.acctSeen {
		if !l.accounts.members[k] {
			delete(l.acctSeen, k)
		}
	}
}

// AddNickname registers a nickname for automatic voicing. Re-adding an
// already-managed nickname is a no-op.
func (l *Ledger) AddNickname(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nicknames.add(name)
}

// AddAccount registers a services account for automatic voicing.
func (l *Ledger) AddAccount(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts.add(name)
}

// RemoveNickname unregisters a nickname and drops its activity entry
// immediately, rather than leaving it for the next prune.
func (l *Ledger) RemoveNickname(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.nickSeen, casefold.Fold(name))
	return l.nicknames.remove(name)
}

// RemoveAccount unregisters an account and drops its activity entry.
func (l *Ledger) RemoveAccount(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.acctSeen, casefold.Fold(name))
	return l.accounts.remove(name)
}

// ManagesNickname reports whether nick is a managed nickname.
func (l *Ledger) ManagesNickname(nick string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nicknames.contains(nick)
}

// ManagesAccount reports whether account is a managed account.
func (l *Ledger) ManagesAccount(account string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts.contains(account)
}

// Nicknames returns the managed nicknames in insertion order.
func (l *Ledger) Nicknames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nicknames.names()
}

// Accounts returns the managed accounts in insertion order.
func (l *Ledger) Accounts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts.names()
}

// TouchNickname stamps now as the nickname's last activity. Ignored for
// unmanaged nicknames so the activity map never outgrows the managed set.
func (l *Ledger) TouchNickname(nick string, now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nicknames.contains(nick) {
		l.nickSeen[casefold.Fold(nick)] = now
	}
}

// TouchAccount stamps now as the account's last activity.
func (l *Ledger) TouchAccount(account string, now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accounts.contains(account) {
		l.acctSeen[casefold.Fold(account)] = now
	}
}

// LastActivity returns the most recent activity timestamp among whichever
// of nick and account are managed, and whether either was managed at all.
// An identity managed but never seen is lazily stamped with now, so a
// freshly added user is never judged instantly stale.
func (l *Ledger) LastActivity(nick, account string, now int64) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var last int64
	managed := false
	if l.nicknames.contains(nick) {
		key := casefold.Fold(nick)
		ts, ok := l.nickSeen[key]
		if !ok {
			ts = now
			l.nickSeen[key] = ts
		}
		managed = true
		if ts > last {
			last = ts
		}
	}
	if account != "" && l.accounts.contains(account) {
		key := casefold.Fold(account)
		ts, ok := l.acctSeen[key]
		if !ok {
			ts = now
			l.acctSeen[key] = ts
		}
		managed = true
		if ts > last {
			last = ts
		}
	}
	return last, managed
}

// readLines returns the non-empty lines of path, or nil if path is absent.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// writeLines rewrites path with one entry per line. An empty list leaves an
// absent file absent instead of creating an empty one.
func writeLines(path string, lines []string) error {
	if len(lines) == 0 {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
