package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Revaluer periodically marks every active account to market. Each tick
// enqueues a revaluation job per account, so the refresh runs on the same
// worker that executes fills and never races them.
type Revaluer struct {
	processor *Processor
	cron      *cron.Cron
	interval  time.Duration
	log       *logrus.Entry
}

// NewRevaluer creates a revaluer ticking at the given interval
func NewRevaluer(processor *Processor, interval time.Duration, logger *logrus.Logger) *Revaluer {
	return &Revaluer{
		processor: processor,
		cron:      cron.New(),
		interval:  interval,
		log:       logger.WithField("component", "revaluer"),
	}
}

// Start begins the periodic revaluation schedule
func (r *Revaluer) Start() error {
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return fmt.Errorf("failed to schedule revaluation: %w", err)
	}
	r.cron.Start()
	r.log.WithField("interval", r.interval).Info("Revaluer started")
	return nil
}

// Stop halts the schedule and waits for a running tick to finish
func (r *Revaluer) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("Revaluer stopped")
}

// tick enqueues a revaluation for every active account
func (r *Revaluer) tick() {
	ctx := context.Background()

	accounts, err := r.processor.ListAccounts(ctx, AccountFilter{ActiveOnly: true})
	if err != nil {
		r.log.WithError(err).Error("Failed to list accounts for revaluation")
		return
	}

	for _, account := range accounts {
		if err := r.processor.RevalueAccount(account.ID); err != nil {
			r.log.WithField("account_id", account.ID).WithError(err).Warn("Failed to enqueue revaluation")
		}
	}
}
