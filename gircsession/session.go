// Package gircsession implements the bot's Session boundary on top of
// github.com/lrstanley/girc. It owns the connection lifecycle (TLS, server
// password, SASL, capability negotiation), bridges the raw event stream
// into bot events, and turns the asynchronous WHOIS / NickServ STATUS
// exchanges into blocking resolver calls with explicit waiters.
package gircsession

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/girc"
	"github.com/presbrey/voiced/bot"
	"github.com/presbrey/voiced/casefold"
)

// Config carries the connection settings.
type Config struct {
	Server     string
	Port       int
	SSL        bool
	ServerPass string

	Nick string
	User string
	Name string

	// SASLAccount enables SASL PLAIN authentication when non-empty.
	SASLAccount  string
	SASLPassword string

	// Channel is the single managed channel, joined after registration.
	Channel string

	// JoinTimeout bounds how long startup waits for the channel join to
	// be confirmed before treating it as fatal. Zero selects 30s.
	JoinTimeout time.Duration

	// Verbose mirrors raw server traffic to stderr.
	Verbose bool
}

// Session is a live girc-backed connection. Construct with New, register
// the event sink with OnEvent, then Run.
type Session struct {
	cfg    Config
	client *girc.Client

	mu            sync.Mutex
	handler       func(bot.Event)
	accountNotify bool
	whoisWaiters  map[string][]chan string
	statusWaiters map[string][]chan int

	// synced holds folded nicks whose account state is authoritative: a
	// WHOIS completed or an ACCOUNT notification arrived. An empty account
	// for a synced nick means known-to-have-none, not still-unknown.
	synced map[string]bool

	joinedCh chan struct{}
	joinOnce sync.Once
}

// New builds a Session from cfg. No traffic happens until Run.
func New(cfg Config) *Session {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 30 * time.Second
	}
	if cfg.User == "" {
		cfg.User = cfg.Nick
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Nick
	}

	gcfg := girc.Config{
		Server:     cfg.Server,
		Port:       cfg.Port,
		Nick:       cfg.Nick,
		User:       cfg.User,
		Name:       cfg.Name,
		SSL:        cfg.SSL,
		ServerPass: cfg.ServerPass,
		SupportedCaps: map[string][]string{
			"account-notify": nil,
			"extended-join":  nil,
		},
	}
	if cfg.Verbose {
		gcfg.Debug = os.Stderr
	}
	if cfg.SASLAccount != "" {
		gcfg.SASL = &girc.SASLPlain{User: cfg.SASLAccount, Pass: cfg.SASLPassword}
	}

	s := &Session{
		cfg:           cfg,
		client:        girc.New(gcfg),
		whoisWaiters:  make(map[string][]chan string),
		statusWaiters: make(map[string][]chan int),
		synced:        make(map[string]bool),
		joinedCh:      make(chan struct{}),
	}
	s.register()
	return s
}

// OnEvent installs the sink receiving bridged bot events. Must be called
// before Run.
func (s *Session) OnEvent(fn func(bot.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// Run connects and blocks until the connection ends or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.client.Connect() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.client.Close()
		<-errCh
		return ctx.Err()
	}
}

// WaitJoined blocks until the managed channel join is confirmed. A timeout
// here is the fatal startup failure: the bot has no purpose without its
// channel.
func (s *Session) WaitJoined(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-s.joinedCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("could not join %s within %s", s.cfg.Channel, s.cfg.JoinTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// register installs all girc handlers. Handlers that feed blocking bot
// evaluations run in the background so a stalled resolver never blocks the
// read loop; bookkeeping handlers stay synchronous.
func (s *Session) register() {
	c := s.client

	c.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		c.Cmd.Join(s.cfg.Channel)
	})

	c.Handlers.Add(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		if !casefold.Equal(e.Params[0], s.cfg.Channel) {
			return
		}
		if casefold.Equal(e.Source.Name, c.GetNick()) {
			s.joinOnce.Do(func() { close(s.joinedCh) })
			return
		}
		s.clearSynced(e.Source.Name)
	})

	c.Handlers.AddBg(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		if !casefold.Equal(e.Params[0], s.cfg.Channel) {
			return
		}
		s.emit(bot.Event{Kind: bot.EventJoin, Sender: e.Source.Name, Channel: s.cfg.Channel})
	})

	c.Handlers.AddBg(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		ev := bot.Event{Kind: bot.EventMessage, Sender: e.Source.Name, Text: e.Last()}
		if e.IsFromChannel() {
			if !casefold.Equal(e.Params[0], s.cfg.Channel) {
				return
			}
			ev.Channel = s.cfg.Channel
		}
		s.emit(ev)
	})

	c.Handlers.Add(girc.NICK, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		s.clearSynced(e.Source.Name)
		s.clearSynced(e.Last())
	})

	c.Handlers.AddBg(girc.NICK, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		s.emit(bot.Event{Kind: bot.EventNickChange, Sender: e.Source.Name, NewNick: e.Last()})
	})

	c.Handlers.Add(girc.QUIT, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		s.clearSynced(e.Source.Name)
	})

	c.Handlers.Add(girc.PART, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		s.clearSynced(e.Source.Name)
	})

	// account-notify: "*" means the user logged out. Either way the
	// notification is authoritative, so the nick becomes synced.
	c.Handlers.Add("ACCOUNT", func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		s.markSynced(e.Source.Name)
	})

	c.Handlers.AddBg("ACCOUNT", func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		account := e.Last()
		if account == "*" {
			account = ""
		}
		s.emit(bot.Event{Kind: bot.EventAccountNotify, Sender: e.Source.Name, Account: account})
	})

	// RPL_WHOISACCOUNT: <me> <nick> <account> :is logged in as
	c.Handlers.Add("330", func(c *girc.Client, e girc.Event) {
		if len(e.Params) < 3 {
			return
		}
		s.deliverWhois(e.Params[1], e.Params[2])
	})

	// RPL_ENDOFWHOIS closes out lookups for nicks with no account reply.
	c.Handlers.Add("318", func(c *girc.Client, e girc.Event) {
		if len(e.Params) < 2 {
			return
		}
		s.deliverWhois(e.Params[1], "")
	})

	// ERR_NOSUCHNICK: the target left before the WHOIS landed.
	c.Handlers.Add("401", func(c *girc.Client, e girc.Event) {
		if len(e.Params) < 2 {
			return
		}
		s.deliverWhois(e.Params[1], "")
	})

	c.Handlers.Add("CAP", func(c *girc.Client, e girc.Event) {
		if len(e.Params) < 2 || !strings.EqualFold(e.Params[1], "ACK") {
			return
		}
		if strings.Contains(e.Last(), "account-notify") {
			s.mu.Lock()
			s.accountNotify = true
			s.mu.Unlock()
		}
	})

	// NickServ STATUS replies arrive as notices: "STATUS <nick> <code>".
	c.Handlers.Add(girc.NOTICE, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || !casefold.Equal(e.Source.Name, "NickServ") {
			return
		}
		fields := strings.Fields(e.Last())
		if len(fields) != 3 || !strings.EqualFold(fields[0], "STATUS") {
			return
		}
		code, err := strconv.Atoi(fields[2])
		if err != nil {
			return
		}
		s.deliverStatus(fields[1], code)
	})
}

func (s *Session) emit(ev bot.Event) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// Users implements bot.Session from girc's channel state.
func (s *Session) Users(channel string) []bot.ChannelUser {
	ch := s.client.LookupChannel(channel)
	if ch == nil {
		return nil
	}
	users := make([]bot.ChannelUser, 0, len(ch.UserList))
	for _, nick := range ch.UserList {
		u := s.client.LookupUser(nick)
		if u == nil {
			continue
		}
		prefixes := ""
		if perms, ok := u.Perms.Lookup(channel); ok {
			prefixes = prefixString(perms)
		}
		users = append(users, bot.ChannelUser{Nick: u.Nick, Prefixes: prefixes})
	}
	return users
}

func prefixString(p girc.Perms) string {
	var b strings.Builder
	if p.Owner {
		b.WriteByte('~')
	}
	if p.Admin {
		b.WriteByte('&')
	}
	if p.Op {
		b.WriteByte('@')
	}
	if p.HalfOp {
		b.WriteByte('%')
	}
	if p.Voice {
		b.WriteByte('+')
	}
	return b.String()
}

// ResolveAccount implements bot.Session. A nickname whose account girc has
// already synced resolves immediately; otherwise a WHOIS is issued and the
// call waits for the 330/318 pair. pending is true only when account-notify
// is active and no lookup or notification has yet settled this nick's
// account state, because the server's own notification may then race this
// explicit lookup. A completed WHOIS settles the nick even when the answer
// is "no account", so a logged-out user is pending for at most one cycle.
func (s *Session) ResolveAccount(ctx context.Context, nick string) (string, bool, error) {
	if u := s.client.LookupUser(nick); u != nil && u.Extras.Account != "" {
		return u.Extras.Account, false, nil
	}

	key, ch, pending := s.addWhoisWaiter(nick)

	s.client.Send(&girc.Event{Command: "WHOIS", Params: []string{nick}})

	select {
	case account := <-ch:
		return account, pending, nil
	case <-ctx.Done():
		s.dropWhoisWaiter(key, ch)
		return "", false, fmt.Errorf("account lookup for %s: %w", nick, ctx.Err())
	}
}

// ResolveLoginStatus implements bot.Session via NickServ STATUS. Code 3 is
// a verified login; 0 through 2 are not.
func (s *Session) ResolveLoginStatus(ctx context.Context, nick string) (bot.LoginStatus, error) {
	key := casefold.Fold(nick)
	ch := make(chan int, 1)
	s.mu.Lock()
	s.statusWaiters[key] = append(s.statusWaiters[key], ch)
	s.mu.Unlock()

	s.client.Cmd.Message("NickServ", "STATUS "+nick)

	select {
	case code := <-ch:
		if code == 3 {
			return bot.LoginVerified, nil
		}
		return bot.LoginUnverified, nil
	case <-ctx.Done():
		s.dropStatusWaiter(key, ch)
		return bot.LoginUnknown, fmt.Errorf("login status for %s: %w", nick, ctx.Err())
	}
}

// ChangeMode implements bot.Session.
func (s *Session) ChangeMode(channel, mode, nick string) {
	s.client.Send(&girc.Event{Command: girc.MODE, Params: []string{channel, mode, nick}})
}

// SendMessage implements bot.Session.
func (s *Session) SendMessage(target, text string) {
	s.client.Cmd.Message(target, text)
}

// Nick implements bot.Session.
func (s *Session) Nick() string {
	return s.client.GetNick()
}

// Joined implements bot.Session. girc only tracks channels the client is
// in, so presence in the state is presence in the channel.
func (s *Session) Joined(channel string) bool {
	return s.client.LookupChannel(channel) != nil
}

// addWhoisWaiter registers a result channel for nick and reports whether
// the lookup may still race an account notification.
func (s *Session) addWhoisWaiter(nick string) (key string, ch chan string, pending bool) {
	key = casefold.Fold(nick)
	ch = make(chan string, 1)
	s.mu.Lock()
	pending = s.accountNotify && !s.synced[key]
	s.whoisWaiters[key] = append(s.whoisWaiters[key], ch)
	s.mu.Unlock()
	return key, ch, pending
}

func (s *Session) markSynced(nick string) {
	s.mu.Lock()
	s.synced[casefold.Fold(nick)] = true
	s.mu.Unlock()
}

func (s *Session) clearSynced(nick string) {
	s.mu.Lock()
	delete(s.synced, casefold.Fold(nick))
	s.mu.Unlock()
}

func (s *Session) deliverWhois(nick, account string) {
	key := casefold.Fold(nick)
	s.mu.Lock()
	s.synced[key] = true
	waiters := s.whoisWaiters[key]
	delete(s.whoisWaiters, key)
	s.mu.Unlock()
	for _, ch := range waiters {
		ch <- account
	}
}

func (s *Session) deliverStatus(nick string, code int) {
	key := casefold.Fold(nick)
	s.mu.Lock()
	waiters := s.statusWaiters[key]
	delete(s.statusWaiters, key)
	s.mu.Unlock()
	for _, ch := range waiters {
		ch <- code
	}
}

func (s *Session) dropWhoisWaiter(key string, ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiters := s.whoisWaiters[key]
	for i, w := range waiters {
		if w == ch {
			s.whoisWaiters[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(s.whoisWaiters[key]) == 0 {
		delete(s.whoisWaiters, key)
	}
}

func (s *Session) dropStatusWaiter(key string, ch chan int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiters := s.statusWaiters[key]
	for i, w := range waiters {
		if w == ch {
			s.statusWaiters[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(s.statusWaiters[key]) == 0 {
		delete(s.statusWaiters, key)
	}
}
