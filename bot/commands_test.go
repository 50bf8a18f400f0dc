package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	name, args, ok := ParseCommand("add-nickname alice")
	require.True(t, ok)
	assert.Equal(t, "add-nickname", name)
	assert.Equal(t, []string{"alice"}, args)

	_, _, ok = ParseCommand("add-nickname")
	assert.False(t, ok, "Missing argument should fail arity validation")

	_, _, ok = ParseCommand("list-nicknames extra")
	assert.False(t, ok, "Extra argument should fail arity validation")

	_, _, ok = ParseCommand("frobnicate alice")
	assert.False(t, ok, "Unknown commands should not parse")

	_, _, ok = ParseCommand("   ")
	assert.False(t, ok, "Blank input should not parse")
}

func TestRunCommandMutations(t *testing.T) {
	b, _, _ := newTestBot(t, Config{})

	assert.Equal(t, "Nickname added.", b.RunCommand("add-nickname", []string{"alice"}))
	assert.Equal(t, "Nickname added.", b.RunCommand("add-nickname", []string{"alice"}),
		"Re-adding should still report success")
	assert.Equal(t, "Account added.", b.RunCommand("add-account", []string{"alice-acct"}))

	assert.Equal(t, "alice", b.RunCommand("list-nicknames", nil))
	assert.Equal(t, "alice-acct", b.RunCommand("list-accounts", nil))

	assert.Equal(t, "Nickname removed.", b.RunCommand("remove-nickname", []string{"alice"}))
	assert.Equal(t, "", b.RunCommand("list-nicknames", nil), "Empty list is the empty string")
}

func TestRunCommandListOrder(t *testing.T) {
	b, _, _ := newTestBot(t, Config{})
	for _, n := range []string{"zoe", "adam", "mia"} {
		b.RunCommand("add-nickname", []string{n})
	}
	assert.Equal(t, "zoe\nadam\nmia", b.RunCommand("list-nicknames", nil),
		"Listing should follow insertion order")
}

func TestChannelOperatorCommand(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{OperatorPrefixes: "@"})
	sess.addUser("oper", "@")

	b.HandleEvent(context.Background(), Event{
		Kind: EventMessage, Sender: "oper", Channel: "#test",
		Text: "voiced: add-nickname alice",
	})

	messages := sess.messageLog()
	require.Len(t, messages, 1)
	assert.Equal(t, "#test\toper: Nickname added.", messages[0],
		"Channel replies should be addressed to the sender")
	assert.Equal(t, []string{"alice"}, b.ledger.Nicknames())
}

func TestQueryOperatorCommand(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{OperatorPrefixes: "@"})
	sess.addUser("oper", "@")

	b.HandleEvent(context.Background(), Event{
		Kind: EventMessage, Sender: "oper", Text: "remove-account ghost",
	})

	messages := sess.messageLog()
	require.Len(t, messages, 1)
	assert.Equal(t, "oper\tAccount removed.", messages[0], "Query replies go straight back, unprefixed")
}

func TestChannelCommandRequiresAddressing(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{OperatorPrefixes: "@"})
	sess.addUser("oper", "@")

	b.HandleEvent(context.Background(), Event{
		Kind: EventMessage, Sender: "oper", Channel: "#test",
		Text: "add-nickname alice",
	})

	assert.Empty(t, sess.messageLog(), "Unaddressed channel chatter is not a command")
	assert.Empty(t, b.ledger.Nicknames())
}

func TestChannelCommandRequiresSpacedAddress(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{OperatorPrefixes: "@"})
	sess.addUser("oper", "@")

	b.HandleEvent(context.Background(), Event{
		Kind: EventMessage, Sender: "oper", Channel: "#test",
		Text: "voiced:add-nickname alice",
	})

	assert.Empty(t, sess.messageLog(), `Addressing requires "<nick>: " with the space`)
	assert.Empty(t, b.ledger.Nicknames())
}

func TestNonOperatorCannotCommand(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{OperatorPrefixes: "@"})
	sess.addUser("pleb", "+")

	b.HandleEvent(context.Background(), Event{
		Kind: EventMessage, Sender: "pleb", Channel: "#test",
		Text: "voiced: add-nickname pleb",
	})

	assert.Empty(t, b.ledger.Nicknames(), "Only operator-prefixed senders may mutate the ledger")
}

func TestListCommandFlattensForIRC(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{OperatorPrefixes: "@"})
	sess.addUser("oper", "@")
	b.ledger.AddNickname("alice")
	b.ledger.AddNickname("bob")

	b.HandleEvent(context.Background(), Event{
		Kind: EventMessage, Sender: "oper", Channel: "#test",
		Text: "voiced: list-nicknames",
	})

	messages := sess.messageLog()
	require.Len(t, messages, 1)
	assert.Equal(t, "#test\toper: alice, bob", messages[0], "IRC replies are a single line")
}

func TestHelpQuery(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{})

	b.HandleEvent(context.Background(), Event{Kind: EventMessage, Sender: "curious", Text: "help"})

	messages := sess.messageLog()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], SourceURL, "help should offer the source")
}

func TestInvalidQueryThrottling(t *testing.T) {
	b, sess, _ := newTestBot(t, Config{ThrottleLimit: 10})

	for i := 0; i < 11; i++ {
		b.HandleEvent(context.Background(), Event{
			Kind: EventMessage, Sender: "noisy", Text: fmt.Sprintf("gibberish %d", i),
		})
	}
	assert.Len(t, sess.messageLog(), 10, "Exactly ten usage replies before silence")

	b.HandleEvent(context.Background(), Event{Kind: EventMessage, Sender: "noisy", Text: "more gibberish"})
	assert.Len(t, sess.messageLog(), 10, "Further invalid queries stay silent")

	// A valid command resets the allowance.
	b.HandleEvent(context.Background(), Event{Kind: EventMessage, Sender: "noisy", Text: "help"})
	b.HandleEvent(context.Background(), Event{Kind: EventMessage, Sender: "noisy", Text: "gibberish again"})
	assert.Len(t, sess.messageLog(), 12, "The help reply and a fresh usage hint should follow the reset")
}

func TestConsole(t *testing.T) {
	b, _, _ := newTestBot(t, Config{})

	input := strings.Join([]string{
		"add-nickname alice",
		"add-account alice-acct",
		"",
		"bogus-command",
		"list-nicknames",
	}, "\n")
	var out, errOut bytes.Buffer
	b.RunConsole(strings.NewReader(input), &out, &errOut)

	assert.Equal(t, "Nickname added.\nAccount added.\nalice\n", out.String(),
		"Results should go to stdout in order")
	assert.Contains(t, errOut.String(), "Commands:", "Malformed input should print usage to stderr")
	assert.Equal(t, []string{"alice"}, b.ledger.Nicknames(), "Console mutations share the ledger")
}
