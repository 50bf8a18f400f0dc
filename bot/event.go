package bot

// EventKind enumerates the inbound events the bot reacts to. Dispatch is a
// single switch in HandleEvent; there is no per-event handler registry.
type EventKind int

const (
	// EventMessage is a PRIVMSG to the managed channel or to the bot.
	EventMessage EventKind = iota
	// EventJoin is a user joining the managed channel.
	EventJoin
	// EventNickChange is a user renaming themselves.
	EventNickChange
	// EventAccountNotify is an unsolicited account-became-known
	// notification for a user in the channel.
	EventAccountNotify
)

// Event is one inbound occurrence from the session layer.
type Event struct {
	Kind EventKind

	// Sender is the originating nickname. For EventNickChange it is the
	// old nickname and NewNick holds the new one.
	Sender string

	// Channel is the managed channel for channel messages and joins, or
	// empty for private queries.
	Channel string

	// Text is the message body for EventMessage.
	Text string

	// NewNick is set for EventNickChange.
	NewNick string

	// Account is set for EventAccountNotify ("" when logged out).
	Account string
}
