package bot

import (
	"context"
	"strings"
)

// LoginStatus is the outcome of a services login-status query.
type LoginStatus int

const (
	// LoginUnknown means the query failed or services did not answer.
	LoginUnknown LoginStatus = iota
	// LoginUnverified means the nickname is not verified with services.
	LoginUnverified
	// LoginVerified means the nickname is logged in and identity-verified.
	LoginVerified
)

func (s LoginStatus) String() string {
	switch s {
	case LoginUnverified:
		return "unverified"
	case LoginVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// ChannelUser is one entry in the live channel view: a nickname and its
// privilege prefixes ("@" for op, "+" for voice, and so on).
type ChannelUser struct {
	Nick     string
	Prefixes string
}

// HasPrefix reports whether the user holds the privilege prefix p.
func (u ChannelUser) HasPrefix(p byte) bool {
	return strings.IndexByte(u.Prefixes, p) >= 0
}

// HasAnyPrefix reports whether the user holds any prefix in set.
func (u ChannelUser) HasAnyPrefix(set string) bool {
	return strings.ContainsAny(u.Prefixes, set)
}

// Session is the IRC collaborator boundary. The bot never touches the wire
// protocol; everything it needs from the connection goes through this
// interface, which gircsession implements for real servers and tests fake.
type Session interface {
	// Users returns a snapshot of the users currently in channel. The bot
	// re-reads this immediately before issuing a mode change rather than
	// caching it across a resolver call.
	Users(channel string) []ChannelUser

	// ResolveAccount determines nick's logged-in services account, or ""
	// when not logged in. pending reports that an unsolicited
	// account-became-known notification is plausibly in flight for nick,
	// racing this explicit lookup.
	ResolveAccount(ctx context.Context, nick string) (account string, pending bool, err error)

	// ResolveLoginStatus queries services for nick's login verification.
	ResolveLoginStatus(ctx context.Context, nick string) (LoginStatus, error)

	// ChangeMode applies a channel mode such as "+v" or "-v" to nick.
	ChangeMode(channel, mode, nick string)

	// SendMessage sends a PRIVMSG to a channel or nickname.
	SendMessage(target, text string)

	// Nick returns the bot's current nickname.
	Nick() string

	// Joined reports whether the bot currently occupies channel.
	Joined(channel string) bool
}
