package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SnapshotSource loads the latest rollout snapshot. A nil snapshot with no
// error means nothing is published and the current one stays.
type SnapshotSource interface {
	Load(ctx context.Context) (*RolloutSnapshot, error)
}

// Refresher periodically swaps the holder's snapshot
type Refresher struct {
	source   SnapshotSource
	holder   *SnapshotHolder
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRefresher(source SnapshotSource, holder *SnapshotHolder, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		source:   source,
		holder:   holder,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins refreshing in the background
func (r *Refresher) Start(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("starting rollout snapshot refresher")
	go r.run(ctx)
}

// Stop halts the refresher and waits for it to exit
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
	log.Info().Msg("rollout snapshot refresher stopped")
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RefreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce loads and publishes one snapshot. Failures keep the previous
// snapshot in place.
func (r *Refresher) RefreshOnce(ctx context.Context) {
	snap, err := r.source.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("rollout snapshot refresh failed; keeping previous")
		return
	}
	if snap == nil {
		return
	}
	prev := r.holder.Load()
	r.holder.Store(snap)
	if prev == nil || prev.Version != snap.Version {
		log.Info().
			Str("version", snap.Version).
			Bool("enabled", snap.Enabled).
			Float64("default_percent", snap.DefaultPercent).
			Int("rules", len(snap.Rules)).
			Msg("rollout snapshot updated")
	}
}
