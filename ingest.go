package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type recordSource interface {
	FetchAll(ctx context.Context) []RawRecord
}

type positionMerger interface {
	Merge(ctx context.Context, batch []VehiclePosition, now time.Time) (int64, error)
}

// CycleResult describes one ingestion cycle. Failed is set when the store
// rejected the batch; the cycle itself never returns an error.
type CycleResult struct {
	ID       string
	Fetched  int
	Kept     int
	Inserted int64
	Failed   bool
	Duration time.Duration
}

// Ingestor runs fetch, filter and merge as one cycle.
type Ingestor struct {
	source recordSource
	store  positionMerger
	window FreshnessWindow
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewIngestor(source recordSource, store positionMerger, window FreshnessWindow, log logrus.FieldLogger) *Ingestor {
	return &Ingestor{
		source: source,
		store:  store,
		window: window,
		now:    time.Now,
		log:    log,
	}
}

func (in *Ingestor) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{ID: uuid.NewString()}
	log := in.log.WithField("cycle_id", res.ID)

	raw := in.source.FetchAll(ctx)
	res.Fetched = len(raw)

	now := in.now()
	batch := FilterRecords(raw, now, in.window)
	res.Kept = len(batch)
	log.WithFields(logrus.Fields{
		"fetched": res.Fetched,
		"kept":    res.Kept,
		"dropped": res.Fetched - res.Kept,
	}).Debug("records filtered")

	if len(batch) == 0 {
		res.Duration = time.Since(start)
		log.WithField("fetched", res.Fetched).Info("no fresh records this cycle")
		return res
	}

	inserted, err := in.store.Merge(ctx, batch, now)
	res.Duration = time.Since(start)
	if err != nil {
		res.Failed = true
		log.WithError(err).WithField("kept", res.Kept).Error("failed to merge batch")
		return res
	}
	res.Inserted = inserted

	entry := log.WithFields(logrus.Fields{
		"fetched":  res.Fetched,
		"kept":     res.Kept,
		"inserted": res.Inserted,
		"duration": res.Duration.String(),
	})
	if inserted == 0 {
		entry.Info("all records already stored")
	} else {
		entry.Info("ingestion cycle complete")
	}
	return res
}
