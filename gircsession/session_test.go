package gircsession

import (
	"testing"
	"time"

	"github.com/lrstanley/girc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	return New(Config{
		Server:  "irc.example.net",
		Port:    6697,
		SSL:     true,
		Nick:    "voiced",
		Channel: "#test",
	})
}

func TestPrefixString(t *testing.T) {
	assert.Equal(t, "", prefixString(girc.Perms{}))
	assert.Equal(t, "+", prefixString(girc.Perms{Voice: true}))
	assert.Equal(t, "@+", prefixString(girc.Perms{Op: true, Voice: true}))
	assert.Equal(t, "~&@%+", prefixString(girc.Perms{
		Owner: true, Admin: true, Op: true, HalfOp: true, Voice: true,
	}))
}

func TestWhoisDelivery(t *testing.T) {
	s := newTestSession()

	ch := make(chan string, 1)
	s.mu.Lock()
	s.whoisWaiters["alice"] = append(s.whoisWaiters["alice"], ch)
	s.mu.Unlock()

	// Nick arrives in server case; delivery folds it.
	s.deliverWhois("Alice", "alice-acct")

	select {
	case account := <-ch:
		assert.Equal(t, "alice-acct", account)
	case <-time.After(time.Second):
		t.Fatal("waiter was not resolved")
	}

	s.mu.Lock()
	_, remains := s.whoisWaiters["alice"]
	s.mu.Unlock()
	assert.False(t, remains, "Resolved waiters should be removed")
}

func TestWhoisDeliveryFansOut(t *testing.T) {
	s := newTestSession()

	a := make(chan string, 1)
	b := make(chan string, 1)
	s.mu.Lock()
	s.whoisWaiters["alice"] = []chan string{a, b}
	s.mu.Unlock()

	s.deliverWhois("alice", "acct")
	assert.Equal(t, "acct", <-a, "Every concurrent waiter gets the result")
	assert.Equal(t, "acct", <-b)
}

func TestDropWhoisWaiter(t *testing.T) {
	s := newTestSession()

	a := make(chan string, 1)
	b := make(chan string, 1)
	s.mu.Lock()
	s.whoisWaiters["alice"] = []chan string{a, b}
	s.mu.Unlock()

	s.dropWhoisWaiter("alice", a)

	s.deliverWhois("alice", "acct")
	select {
	case <-a:
		t.Fatal("dropped waiter should not receive a result")
	default:
	}
	assert.Equal(t, "acct", <-b, "Remaining waiters are unaffected")
}

func TestPendingClearsAfterEmptyWhois(t *testing.T) {
	s := newTestSession()
	s.mu.Lock()
	s.accountNotify = true
	s.mu.Unlock()

	// First lookup for a user with no services account: the result may
	// still race an account notification.
	_, _, pending := s.addWhoisWaiter("drifter")
	assert.True(t, pending, "First lookup under account-notify is pending")
	s.deliverWhois("drifter", "")

	// The completed WHOIS settled the nick; later lookups must not keep
	// deferring, or a logged-out user would never be devoiced.
	for round := 0; round < 3; round++ {
		_, _, pending = s.addWhoisWaiter("drifter")
		assert.False(t, pending, "Lookup after a completed WHOIS is settled")
		s.deliverWhois("drifter", "")
	}
}

func TestPendingWithoutAccountNotify(t *testing.T) {
	s := newTestSession()

	_, _, pending := s.addWhoisWaiter("drifter")
	assert.False(t, pending, "No capability means nothing can race the lookup")
}

func TestSyncedStateInvalidation(t *testing.T) {
	s := newTestSession()
	s.mu.Lock()
	s.accountNotify = true
	s.mu.Unlock()

	s.markSynced("Drifter")
	_, _, pending := s.addWhoisWaiter("drifter")
	assert.False(t, pending, "Account notifications settle a nick")
	s.deliverWhois("drifter", "")

	// A nick change invalidates what we knew about the old name.
	s.clearSynced("drifter")
	_, _, pending = s.addWhoisWaiter("drifter")
	assert.True(t, pending, "State is unknown again after invalidation")
	s.deliverWhois("drifter", "")
}

func TestStatusDelivery(t *testing.T) {
	s := newTestSession()

	ch := make(chan int, 1)
	s.mu.Lock()
	s.statusWaiters["alice"] = append(s.statusWaiters["alice"], ch)
	s.mu.Unlock()

	s.deliverStatus("alice", 3)
	require.Equal(t, 3, <-ch)
}

func TestConfigDefaults(t *testing.T) {
	s := New(Config{Server: "irc.example.net", Nick: "voiced", Channel: "#test"})
	assert.Equal(t, 30*time.Second, s.cfg.JoinTimeout, "Join timeout should default to 30s")
	assert.Equal(t, "voiced", s.cfg.User, "User should default to the nick")
	assert.Equal(t, "voiced", s.cfg.Name, "Name should default to the nick")
}
