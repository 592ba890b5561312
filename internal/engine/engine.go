// Package engine orchestrates synchronization cycles: fetch raw events from
// the selected data source, reconcile them into the store, recompute
// analytics, and publish the result to the broadcast hub.
//
// A single worker goroutine processes sync requests, so at most one cycle
// is ever in flight against the store. The periodic timer and manual
// triggers feed the same queue; a trigger arriving while a cycle runs is
// coalesced onto the in-flight cycle and receives its eventual result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantumnexus/journal-engine/internal/analytics"
	"github.com/quantumnexus/journal-engine/internal/config"
	"github.com/quantumnexus/journal-engine/internal/hub"
	"github.com/quantumnexus/journal-engine/internal/metrics"
	"github.com/quantumnexus/journal-engine/internal/model"
	"github.com/quantumnexus/journal-engine/internal/reconcile"
	"github.com/quantumnexus/journal-engine/internal/source"
	"github.com/quantumnexus/journal-engine/internal/store"
)

// Reason distinguishes scheduled from manually triggered cycles. Manual
// cycles force a hub push even when nothing changed.
type Reason string

const (
	ReasonScheduled Reason = "scheduled"
	ReasonManual    Reason = "manual"
)

// Result is the outcome of one synchronization cycle.
type Result struct {
	Reconcile reconcile.Result `json:"reconcile"`
	Source    string           `json:"source"`
	Partial   bool             `json:"partial"`
	Err       error            `json:"-"`
}

// future delivers one cycle's result to every coalesced waiter.
type future struct {
	mu      sync.Mutex
	done    bool
	res     Result
	waiters []chan Result
}

func (f *future) subscribe() <-chan Result {
	ch := make(chan Result, 1)
	f.mu.Lock()
	if f.done {
		ch <- f.res
	} else {
		f.waiters = append(f.waiters, ch)
	}
	f.mu.Unlock()
	return ch
}

func (f *future) resolve(res Result) {
	f.mu.Lock()
	f.done = true
	f.res = res
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, ch := range waiters {
		ch <- res
	}
}

type request struct {
	reason Reason
	fut    *future
}

// Engine coordinates source, reconciler, store, analytics and hub.
type Engine struct {
	cfg   *config.Config
	acfg  analytics.Config
	store store.Store
	rec   *reconcile.Reconciler
	live  source.Source // nil when no bridge is configured
	synth source.Source
	hub   *hub.Hub
	cache *store.StatsCache // nil when Redis is not configured
	now   func() time.Time

	requests chan *request
	mu       sync.Mutex
	inflight *future

	// worker-owned sync state
	liveCursor  source.Cursor
	synthCursor source.Cursor
	connected   bool

	statusMu sync.RWMutex
	status   model.SyncStatus
}

// New creates an engine. live may be nil to run permanently on the
// synthetic generator; cache may be nil to disable analytics caching.
func New(cfg *config.Config, st store.Store, live source.Source, h *hub.Hub, cache *store.StatsCache) (*Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		acfg: analytics.Config{
			Location:     loc,
			RiskFreeRate: cfg.Analytics.RiskFreeRate,
			Risk:         cfg.Analytics.Risk,
		},
		store:    st,
		rec:      reconcile.New(st),
		live:     live,
		synth:    source.NewSynthetic(nil),
		hub:      h,
		cache:    cache,
		now:      time.Now,
		requests: make(chan *request, 1),
		status:   model.SyncStatus{Source: "synthetic"},
	}, nil
}

// Run drives the worker until ctx is cancelled. One cycle runs immediately
// so viewers have data at startup.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Sync.Interval)
	defer ticker.Stop()

	e.TriggerSync(ReasonScheduled)

	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			if e.connected {
				if err := e.live.Disconnect(); err != nil {
					slog.Warn("terminal disconnect failed", "err", err)
				}
			}
			return
		case <-ticker.C:
			e.TriggerSync(ReasonScheduled)
		case req := <-e.requests:
			res := e.runCycle(ctx, req.reason)
			e.mu.Lock()
			e.inflight = nil
			e.mu.Unlock()
			req.fut.resolve(res)
		}
	}
}

// drain resolves any queued request after shutdown so waiters never hang.
func (e *Engine) drain(err error) {
	for {
		select {
		case req := <-e.requests:
			req.fut.resolve(Result{Err: err})
		default:
			return
		}
	}
}

// TriggerSync requests a synchronization cycle. The returned channel
// delivers exactly one Result. If a cycle is already in flight the request
// coalesces onto it instead of queuing a second cycle.
func (e *Engine) TriggerSync(reason Reason) <-chan Result {
	e.mu.Lock()
	if e.inflight != nil {
		f := e.inflight
		e.mu.Unlock()
		return f.subscribe()
	}
	f := &future{}
	e.inflight = f
	e.mu.Unlock()

	e.requests <- &request{reason: reason, fut: f}
	return f.subscribe()
}

// runCycle is the full pipeline: fetch → reconcile → snapshot → analytics →
// publish. Reconciliation completes (every event applied or skipped) before
// analytics run, so analytics never observe a partially applied batch.
func (e *Engine) runCycle(ctx context.Context, reason Reason) Result {
	start := e.now()
	e.setInFlight(true)
	defer e.setInFlight(false)

	slog.Info("sync cycle started", "reason", string(reason))

	src, cursor := e.selectSource(ctx)

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Source.Timeout)
	events, newCursor, err := src.FetchSince(fetchCtx, cursor, e.cfg.Source.WindowDays)
	cancel()

	partial := errors.Is(err, source.ErrPartial)
	if err != nil && !partial {
		if src == e.live {
			// Transient terminal failure: this cycle is served synthetically.
			slog.Warn("live source failed, falling back to synthetic", "err", err)
			e.connected = false
			e.recordError(err)
			metrics.SourceFallbacks.Inc()

			src = e.synth
			fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.Source.Timeout)
			events, newCursor, err = src.FetchSince(fetchCtx, e.synthCursor, e.cfg.Source.WindowDays)
			cancel()
		}
		if err != nil {
			metrics.SyncCyclesTotal.WithLabelValues(string(reason), "error").Inc()
			e.recordError(err)
			return Result{Source: src.Mode(), Err: err}
		}
	}

	res, err := e.rec.Reconcile(ctx, events)
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues(string(reason), "error").Inc()
		e.recordError(err)
		return Result{Reconcile: res, Source: src.Mode(), Err: err}
	}

	// The cursor advances only after the batch is fully applied. On a
	// partial window the source already limited it to the retrieved
	// subset, so the gap is retried next cycle.
	if src == e.live {
		e.liveCursor = newCursor
	} else {
		e.synthCursor = newCursor
	}

	if snap, err := src.AccountInfo(ctx); err != nil {
		slog.Warn("account snapshot unavailable", "err", err)
	} else if err := e.store.AppendSnapshot(ctx, snap); err != nil {
		slog.Warn("append snapshot failed", "err", err)
	}

	e.publish(ctx, reason == ReasonManual)
	e.recordSuccess(ctx, src.Mode(), res)

	metrics.SyncCyclesTotal.WithLabelValues(string(reason), "ok").Inc()
	metrics.SyncDuration.Observe(e.now().Sub(start).Seconds())
	metrics.ObserveReconcile(res.Inserted, res.Updated, res.Skipped, res.Failed)

	slog.Info("sync cycle completed",
		"reason", string(reason),
		"source", src.Mode(),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"closed", res.Closed,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"partial", partial,
	)

	return Result{Reconcile: res, Source: src.Mode(), Partial: partial}
}

// selectSource picks the variant for this cycle: the live terminal when a
// session can be (re)established, the synthetic generator otherwise.
// Downstream code never learns which variant fed it.
func (e *Engine) selectSource(ctx context.Context) (source.Source, source.Cursor) {
	if e.live == nil {
		return e.synth, e.synthCursor
	}
	if !e.connected {
		connectCtx, cancel := context.WithTimeout(ctx, e.cfg.Source.Timeout)
		err := e.live.Connect(connectCtx, source.Credentials{
			Account:  e.cfg.Source.Account,
			Password: e.cfg.Source.Password,
			Server:   e.cfg.Source.Server,
		})
		cancel()
		if err != nil {
			if errors.Is(err, source.ErrAuthRejected) {
				slog.Error("terminal rejected credentials, staying in fallback", "err", err)
			} else {
				slog.Warn("terminal unreachable, using synthetic data", "err", err)
			}
			e.recordError(err)
			metrics.SourceFallbacks.Inc()
			return e.synth, e.synthCursor
		}
		e.connected = true
		slog.Info("terminal session established")
	}
	return e.live, e.liveCursor
}

// publish recomputes the full analytics snapshot and hands it to the hub.
func (e *Engine) publish(ctx context.Context, force bool) {
	version, err := e.store.Version(ctx)
	if err != nil {
		slog.Warn("read version failed", "err", err)
		return
	}

	stats, err := e.Stats(ctx, PeriodAll)
	if err != nil {
		slog.Warn("analytics recompute failed", "err", err)
		return
	}

	var account *model.AccountSnapshot
	if snap, err := e.store.LatestSnapshot(ctx); err == nil {
		account = snap
	}

	now := e.now()
	history, err := e.store.SnapshotRange(ctx, now.AddDate(0, 0, -e.cfg.Sync.HistoryDays), now.Add(time.Minute))
	if err != nil {
		slog.Warn("snapshot range failed", "err", err)
	}

	e.hub.PublishData(hub.DataUpdate{
		Stats:          stats,
		AccountData:    account,
		AccountHistory: history,
	}, version, force)
}

func (e *Engine) setInFlight(v bool) {
	e.statusMu.Lock()
	e.status.InFlight = v
	e.statusMu.Unlock()
}

func (e *Engine) recordError(err error) {
	e.statusMu.Lock()
	e.status.LastError = err.Error()
	e.statusMu.Unlock()
}

func (e *Engine) recordSuccess(ctx context.Context, mode string, res reconcile.Result) {
	total, open, err := e.store.CountTrades(ctx)
	if err == nil {
		metrics.TradesStored.Set(float64(total))
		metrics.OpenPositions.Set(float64(open))
	}

	e.statusMu.Lock()
	e.status.LastSync = e.now()
	e.status.Source = mode
	e.status.TradesTotal = total
	e.status.OpenPositions = open
	e.status.LastInserted = res.Inserted
	e.status.LastUpdated = res.Updated
	e.status.LastClosed = res.Closed
	e.status.LastSkipped = res.Skipped
	e.status.LastFailed = res.Failed
	e.status.LastError = ""
	if len(res.Errors) > 0 {
		e.status.LastError = fmt.Sprintf("%d events failed validation", len(res.Errors))
	}
	e.statusMu.Unlock()
}

// Status returns the current synchronization status.
func (e *Engine) Status() model.SyncStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}
