// Package bot implements the voice-state reconciliation engine: it decides
// when users of one managed IRC channel gain or lose the voice privilege,
// driven by channel events and a periodic sweep, and lets operators manage
// the set of privileged identities through in-channel commands or the
// administration console.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/presbrey/voiced/casefold"
	"github.com/presbrey/voiced/ledger"
	"github.com/presbrey/voiced/throttle"
)

// SourceURL is offered in reply to "help" queries.
const SourceURL = "https://github.com/presbrey/voiced"

// Config carries the policy knobs.
type Config struct {
	// Channel is the single managed channel.
	Channel string

	// Inactivity is how long a managed user may stay silent before the
	// sweep devoices them.
	Inactivity time.Duration

	// StrictIdentity requires a verified services login before granting
	// or retaining voice.
	StrictIdentity bool

	// OperatorPrefixes lists the privilege prefixes whose holders may
	// issue administrative commands over IRC.
	OperatorPrefixes string

	// SweepInterval overrides the devoice sweep period. Zero selects
	// min(Inactivity/4, 1m).
	SweepInterval time.Duration

	// ThrottleLimit and ThrottleTimeout tune the invalid-query throttle.
	// Zero values select the throttle package defaults.
	ThrottleLimit   int
	ThrottleTimeout time.Duration
}

// Bot wires the policy engine to its collaborators. Construct with New;
// the zero value is not usable.
type Bot struct {
	cfg     Config
	session Session
	ledger  *ledger.Ledger
	queries *throttle.Throttle
	start   time.Time

	// now is the clock; tests substitute it.
	now func() time.Time
}

// New returns a Bot managing cfg.Channel through sess, backed by led.
func New(cfg Config, sess Session, led *ledger.Ledger) *Bot {
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 24 * time.Hour
	}
	if cfg.OperatorPrefixes == "" {
		cfg.OperatorPrefixes = "@"
	}
	return &Bot{
		cfg:     cfg,
		session: sess,
		ledger:  led,
		queries: throttle.New(cfg.ThrottleLimit, cfg.ThrottleTimeout),
		start:   time.Now(),
		now:     time.Now,
	}
}

// HandleEvent dispatches one inbound event. Safe to call from concurrent
// goroutines; each evaluation suspends only inside the resolver calls.
func (b *Bot) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventMessage:
		b.handleMessage(ctx, ev)
	case EventJoin:
		if !casefold.Equal(ev.Sender, b.session.Nick()) {
			b.refreshVoiceStatus(ctx, ev.Sender)
		}
	case EventNickChange:
		b.refreshVoiceStatus(ctx, ev.NewNick)
	case EventAccountNotify:
		b.refreshVoiceStatus(ctx, ev.Sender)
	}
}

// handleMessage runs the operator-command front end, the query responder
// and, for channel traffic, the voice check that counts the message itself
// as activity.
func (b *Bot) handleMessage(ctx context.Context, ev Event) {
	handled := false
	if user, ok := b.channelUser(ev.Sender); ok && user.HasAnyPrefix(b.cfg.OperatorPrefixes) {
		handled = b.handleOperatorCommand(ev)
	}
	if ev.Channel == "" {
		if !handled {
			b.handleQuery(ev.Sender, ev.Text)
		}
		return
	}
	b.checkVoice(ctx, ev.Sender, true)
}

// handleOperatorCommand tries to interpret a message from a privileged
// sender as an administrative command. In-channel commands must be
// addressed "<botnick>: ..."; query commands are bare. Returns false when
// the message is not a well-formed command so the query path can answer.
func (b *Bot) handleOperatorCommand(ev Event) bool {
	text := ev.Text
	if ev.Channel != "" {
		rest, ok := strings.CutPrefix(text, b.session.Nick()+": ")
		if !ok {
			return false
		}
		text = strings.TrimSpace(rest)
	}

	name, args, ok := ParseCommand(text)
	if !ok {
		return false
	}

	response := b.RunCommand(name, args)
	b.queries.Valid(ev.Sender)
	if ev.Channel != "" {
		b.session.SendMessage(ev.Channel, ev.Sender+": "+flattenReply(response))
	} else {
		b.session.SendMessage(ev.Sender, flattenReply(response))
	}
	return true
}

// handleQuery answers private messages that were not operator commands.
// "help" is always answered; anything else gets a usage hint until the
// sender exhausts the throttle.
func (b *Bot) handleQuery(sender, text string) {
	if strings.EqualFold(strings.TrimSpace(text), "help") {
		b.session.SendMessage(sender, "voiced manages channel voice automatically. Source: "+SourceURL)
		b.queries.Valid(sender)
		return
	}
	if b.queries.Invalid(sender) {
		b.session.SendMessage(sender, `Type "help" for help.`)
		return
	}
	throttledQueries.Inc()
}

// channelUser returns the live channel-view entry for nick.
func (b *Bot) channelUser(nick string) (ChannelUser, bool) {
	for _, user := range b.session.Users(b.cfg.Channel) {
		if casefold.Equal(user.Nick, nick) {
			return user, true
		}
	}
	return ChannelUser{}, false
}

// inactivityLimit is Inactivity in whole seconds, matching the ledger's
// timestamp resolution.
func (b *Bot) inactivityLimit() int64 {
	return int64(b.cfg.Inactivity / time.Second)
}

// Status is a snapshot for the status API.
type Status struct {
	Channel          string `json:"channel"`
	Joined           bool   `json:"joined"`
	StrictIdentity   bool   `json:"strict_identity"`
	ManagedNicknames int    `json:"managed_nicknames"`
	ManagedAccounts  int    `json:"managed_accounts"`
	VoicedUsers      int    `json:"voiced_users"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// CurrentStatus reports the bot's live state.
func (b *Bot) CurrentStatus() Status {
	voiced := 0
	for _, user := range b.session.Users(b.cfg.Channel) {
		if user.HasPrefix('+') {
			voiced++
		}
	}
	return Status{
		Channel:          b.cfg.Channel,
		Joined:           b.session.Joined(b.cfg.Channel),
		StrictIdentity:   b.cfg.StrictIdentity,
		ManagedNicknames: len(b.ledger.Nicknames()),
		ManagedAccounts:  len(b.ledger.Accounts()),
		VoicedUsers:      voiced,
		UptimeSeconds:    int64(time.Since(b.start) / time.Second),
	}
}

// flattenReply turns a multi-line command response into a single IRC line.
func flattenReply(response string) string {
	if response == "" {
		return "(none)"
	}
	return strings.ReplaceAll(response, "\n", ", ")
}
