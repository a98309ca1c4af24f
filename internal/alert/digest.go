package alert

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/repository"
)

// MissingTariffLister is the read side of the work-item store the digest
// reports on.
type MissingTariffLister interface {
	ListOpen(ctx context.Context) ([]repository.MissingTariff, error)
}

// Digest periodically summarizes the open missing-tariff work items into the
// log, so tariff gaps stay visible even when nobody watches the event topic.
type Digest struct {
	store    MissingTariffLister
	schedule string
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewDigest creates a digest job. schedule is a standard five-field cron
// expression.
func NewDigest(store MissingTariffLister, schedule string, logger *zap.Logger) *Digest {
	return &Digest{
		store:    store,
		schedule: schedule,
		logger:   logger,
	}
}

// Name identifies the digest to the worker manager.
func (d *Digest) Name() string {
	return "missing-tariff-digest"
}

// Start schedules the digest job.
func (d *Digest) Start(ctx context.Context) error {
	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.schedule, d.run); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", d.schedule, err)
	}
	d.cron.Start()

	d.logger.Info("Missing-tariff digest scheduled", zap.String("schedule", d.schedule))
	return nil
}

// Stop cancels the schedule and waits for a running digest to finish.
func (d *Digest) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
}

func (d *Digest) run() {
	items, err := d.store.ListOpen(context.Background())
	if err != nil {
		d.logger.Error("Failed to load missing-tariff work items", zap.Error(err))
		return
	}

	if len(items) == 0 {
		d.logger.Info("Missing-tariff digest: no open work items")
		return
	}

	total := 0
	for _, item := range items {
		total += item.Occurrences
		d.logger.Warn("Open missing-tariff work item",
			zap.String("provider", item.Provider),
			zap.String("service", string(item.Service)),
			zap.String("financial_year", item.FinancialYear),
			zap.Int("occurrences", item.Occurrences),
			zap.Time("first_seen", item.FirstSeenAt))
	}
	d.logger.Warn("Missing-tariff digest",
		zap.Int("open_items", len(items)),
		zap.Int("total_occurrences", total))
}
