package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/domain"
)

// Syncer runs one replay scan.
type Syncer interface {
	SyncReviews(ctx context.Context) (SyncReport, error)
}

type scanResult struct {
	report SyncReport
	err    error
}

// Replayer serializes replay scans on a single goroutine. Triggers are
// coalesced: any number of Trigger calls while a scan runs yield at most one
// further scan.
type Replayer struct {
	syncer   Syncer
	conn     domain.Connectivity
	interval time.Duration

	kick chan struct{}
	reqs chan chan scanResult
}

func NewReplayer(s Syncer, conn domain.Connectivity, interval time.Duration) *Replayer {
	return &Replayer{
		syncer:   s,
		conn:     conn,
		interval: interval,
		kick:     make(chan struct{}, 1),
		reqs:     make(chan chan scanResult),
	}
}

// Trigger asks for a scan without waiting for it.
func (r *Replayer) Trigger() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// SyncNow runs a scan on the replayer goroutine and waits for its report.
// Unlike Trigger it runs even when the connectivity signal says offline.
func (r *Replayer) SyncNow(ctx context.Context) (SyncReport, error) {
	reply := make(chan scanResult, 1)
	select {
	case r.reqs <- reply:
	case <-ctx.Done():
		return SyncReport{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.report, res.err
	case <-ctx.Done():
		return SyncReport{}, ctx.Err()
	}
}

// Run blocks until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context) {
	var transitions <-chan bool
	if r.conn != nil {
		transitions = r.conn.Subscribe()
	}
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}

	log.Info().Dur("interval", r.interval).Msg("replayer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("replayer stopped")
			return
		case <-r.kick:
			r.scanIfOnline(ctx, "mutation")
		case up, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if up {
				r.scan(ctx, "online")
			}
		case <-tick:
			r.scanIfOnline(ctx, "interval")
		case reply := <-r.reqs:
			rep, err := r.scan(ctx, "on_demand")
			reply <- scanResult{report: rep, err: err}
		}
	}
}

func (r *Replayer) scanIfOnline(ctx context.Context, reason string) {
	if r.conn != nil && !r.conn.Online() {
		log.Debug().Str("reason", reason).Msg("offline, replay deferred")
		return
	}
	r.scan(ctx, reason)
}

func (r *Replayer) scan(ctx context.Context, reason string) (SyncReport, error) {
	start := time.Now()
	rep, err := r.syncer.SyncReviews(ctx)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	} else if rep.Pending() {
		ev = log.Warn()
	}
	ev.Str("reason", reason).
		Int("reviews_synced", rep.ReviewsSynced).
		Int("reviews_failed", rep.ReviewsFailed).
		Int("favorites_synced", rep.FavoritesSynced).
		Int("favorites_failed", rep.FavoritesFailed).
		Dur("took", time.Since(start)).
		Msg("replay scan")
	return rep, err
}
