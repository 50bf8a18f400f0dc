package bot

import (
	"context"
	"log"
)

// The grant and devoice paths are deliberately asymmetric. Granting is
// optimistic: the triggering message counts as its own activity. Devoicing
// is pessimistic: it only measures elapsed time, and when an identity
// lookup may still be racing an unsolicited notification it defers to the
// next sweep rather than risk devoicing on stale data.

// checkVoice evaluates whether nick should hold voice and grants it when
// the live channel view says it is missing. With updateTimes the
// evaluation stamps the managed identities' activity to now; without it
// (join, nick change, account notify) mere presence never refreshes
// activity and a user idle past the window is left unvoiced.
func (b *Bot) checkVoice(ctx context.Context, nick string, updateTimes bool) {
	account, _, err := b.session.ResolveAccount(ctx, nick)
	if err != nil {
		log.Printf("could not resolve account for %s: %v", nick, err)
		resolveFailures.Inc()
		return
	}

	managedNick := b.ledger.ManagesNickname(nick)
	managedAcct := account != "" && b.ledger.ManagesAccount(account)
	if !managedNick && !managedAcct {
		return
	}
	if b.cfg.StrictIdentity && !b.verified(ctx, nick) {
		return
	}

	now := b.now().Unix()
	if updateTimes {
		if managedNick {
			b.ledger.TouchNickname(nick, now)
		}
		if managedAcct {
			b.ledger.TouchAccount(account, now)
		}
	} else {
		last, managed := b.ledger.LastActivity(nick, account, now)
		if !managed || now-last > b.inactivityLimit() {
			return
		}
	}

	// Re-read the channel view: another evaluation may have voiced or
	// removed this user while we waited on the resolver.
	if user, ok := b.channelUser(nick); ok && !user.HasPrefix('+') {
		log.Printf("voicing %s", nick)
		b.session.ChangeMode(b.cfg.Channel, "+v", nick)
		voicedTotal.Inc()
	}
}

// checkDevoice evaluates whether nick should keep voice and revokes it
// otherwise. A failed resolution, or one racing a pending account
// notification, aborts; the next sweep reaches the same conclusion once
// state has settled.
func (b *Bot) checkDevoice(ctx context.Context, nick string) {
	account, pending, err := b.session.ResolveAccount(ctx, nick)
	if err != nil {
		log.Printf("could not resolve account for %s: %v", nick, err)
		resolveFailures.Inc()
		return
	}
	if pending {
		return
	}

	managedNick := b.ledger.ManagesNickname(nick)
	managedAcct := account != "" && b.ledger.ManagesAccount(account)

	devoice := !managedNick && !managedAcct
	if b.cfg.StrictIdentity && !devoice {
		devoice = !b.verified(ctx, nick)
	}
	if !devoice {
		now := b.now().Unix()
		last, managed := b.ledger.LastActivity(nick, account, now)
		devoice = !managed || now-last > b.inactivityLimit()
	}
	if !devoice {
		return
	}

	if user, ok := b.channelUser(nick); ok && user.HasPrefix('+') {
		log.Printf("devoicing %s", nick)
		b.session.ChangeMode(b.cfg.Channel, "-v", nick)
		devoicedTotal.Inc()
	}
}

// refreshVoiceStatus re-evaluates nick after a passive trigger: currently
// voiced users are checked for devoicing, everyone else for voicing
// without an activity refresh.
func (b *Bot) refreshVoiceStatus(ctx context.Context, nick string) {
	user, ok := b.channelUser(nick)
	if !ok {
		return
	}
	if user.HasPrefix('+') {
		b.checkDevoice(ctx, nick)
		return
	}
	b.checkVoice(ctx, nick, false)
}

// verified reports whether nick's services login is verified. Lookup
// failures count as unverified; strict mode fails closed.
func (b *Bot) verified(ctx context.Context, nick string) bool {
	status, err := b.session.ResolveLoginStatus(ctx, nick)
	if err != nil {
		log.Printf("could not resolve login status for %s: %v", nick, err)
		resolveFailures.Inc()
		return false
	}
	return status == LoginVerified
}
