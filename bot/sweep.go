package bot

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// sweepInterval resolves the configured sweep period. The default keeps
// devoicing within a quarter of the inactivity window but never slower
// than once a minute.
func (b *Bot) sweepInterval() time.Duration {
	if b.cfg.SweepInterval > 0 {
		return b.cfg.SweepInterval
	}
	interval := b.cfg.Inactivity / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// RunSweep re-evaluates all voiced users on a timer until ctx is
// cancelled. Each tick's batch fully resolves before the next tick fires;
// a stalled resolver therefore delays the sweep, never overlaps it.
func (b *Bot) RunSweep(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep(ctx)
		}
	}
}

// Sweep runs one devoice evaluation per currently voiced user, all
// submitted concurrently and awaited together. Skipped while the bot is
// not in its channel.
func (b *Bot) Sweep(ctx context.Context) {
	if !b.session.Joined(b.cfg.Channel) {
		return
	}
	start := time.Now()
	var g errgroup.Group
	for _, user := range b.session.Users(b.cfg.Channel) {
		if !user.HasPrefix('+') {
			continue
		}
		nick := user.Nick
		g.Go(func() error {
			b.checkDevoice(ctx, nick)
			return nil
		})
	}
	g.Wait()
	sweepDuration.Observe(time.Since(start).Seconds())
}
