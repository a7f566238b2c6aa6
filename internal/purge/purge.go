package purge

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Store interface {
	PurgeRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Purger removes ledger rows that can no longer match a live token. A jti is
// revoked no earlier than its token was issued, so after maxLifetime the
// token has expired on its own and the row is dead weight.
type Purger struct {
	store       Store
	maxLifetime time.Duration
	log         *slog.Logger
	now         func() time.Time

	cron *cron.Cron
}

func New(store Store, maxLifetime time.Duration, log *slog.Logger) *Purger {
	return &Purger{
		store:       store,
		maxLifetime: maxLifetime,
		log:         log.With("job", "purge_revoked_tokens"),
		now:         time.Now,
	}
}

func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.maxLifetime)
	n, err := p.store.PurgeRevokedBefore(ctx, cutoff)
	if err != nil {
		p.log.Error("purge_failed", "error", err)
		return 0, err
	}
	p.log.Info("purge_completed", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Start schedules RunOnce; schedule is a cron expression or descriptor
// such as "@hourly".
func (p *Purger) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = p.RunOnce(ctx)
	}); err != nil {
		return err
	}
	p.cron = c
	c.Start()
	p.log.Info("purge_scheduled", "schedule", schedule)
	return nil
}

func (p *Purger) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
}
