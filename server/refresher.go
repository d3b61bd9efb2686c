package server

import (
	"context"
	"time"

	"github.com/aviroy619/critical-css-service/pkg/cdn"
	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/extract"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
	"github.com/aviroy619/critical-css-service/pkg/storage"
)

// Refresher periodically regenerates documents whose CSS has gone stale.
// It shares the browser pool with the HTTP surface, so foreground requests
// compete with it for workers on equal terms.
type Refresher struct {
	cfg       config.RefreshConfig
	store     storage.Store
	pool      *pool.Pool
	extractor *extract.Extractor
	uploader  cdn.Uploader
	log       *logger.Logger

	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRefresher creates a stale-document refresher
func NewRefresher(cfg config.RefreshConfig, store storage.Store, p *pool.Pool, ex *extract.Extractor, up cdn.Uploader, log *logger.Logger) *Refresher {
	return &Refresher{
		cfg:       cfg,
		store:     store,
		pool:      p,
		extractor: ex,
		uploader:  up,
		log:       log.WithComponent("refresher"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called. No-op when disabled.
func (r *Refresher) Start() {
	if !r.cfg.Enabled {
		return
	}
	r.started = true

	go func() {
		defer close(r.done)

		r.log.Info("refresher started",
			"interval_ms", r.cfg.IntervalMs,
			"stale_after_ms", r.cfg.StaleAfterMs)

		ticker := time.NewTicker(r.cfg.Interval())
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.runOnce()
			}
		}
	}()
}

// Stop halts the refresh loop and waits for an in-flight pass to finish.
// Safe to call when the refresher never started.
func (r *Refresher) Stop() {
	if !r.started {
		return
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}

// runOnce regenerates every document older than the stale cutoff.
// Failures are recorded and skipped; one bad page must not starve the rest.
func (r *Refresher) runOnce() {
	docs, err := r.store.StaleDocuments(r.cfg.StaleAfter())
	if err != nil {
		r.log.ErrorWithErr("failed to list stale documents", err)
		return
	}
	if len(docs) == 0 {
		return
	}

	r.log.Info("refreshing stale documents", "count", len(docs))

	for _, doc := range docs {
		select {
		case <-r.stop:
			return
		default:
		}
		r.refreshDocument(doc)
	}
}

func (r *Refresher) refreshDocument(doc *storage.Document) {
	ctx := context.Background()

	worker, err := r.pool.Acquire(ctx)
	if err != nil {
		r.log.WarnWithErr("refresh skipped, no worker", err,
			"shop_id", doc.ShopID,
			"template", doc.Template)
		return
	}

	vp := config.Viewport{Width: doc.ViewportW, Height: doc.ViewportH}
	result, err := r.extractor.Extract(ctx, worker, doc.SourceURL, vp)
	r.pool.Release(worker)
	if err != nil {
		r.log.WarnWithErr("refresh extraction failed", err,
			"shop_id", doc.ShopID,
			"template", doc.Template,
			"url", doc.SourceURL)
		if recErr := r.store.RecordError(doc.ShopID, doc.Template, err.Error()); recErr != nil {
			r.log.WarnWithErr("failed to record refresh error", recErr)
		}
		return
	}

	if result.ContentHash == doc.ContentHash {
		// Page CSS unchanged; bump the timestamp so the document is not
		// re-extracted every pass.
		doc.GeneratedAt = time.Now().UTC()
		if err := r.store.SaveDocument(doc); err != nil {
			r.log.WarnWithErr("failed to touch unchanged document", err)
		}
		return
	}

	doc.CSS = result.CSS
	doc.ContentHash = result.ContentHash
	doc.SizeBytes = len(result.CSS)
	doc.DurationMs = result.Duration.Milliseconds()
	doc.GeneratedAt = time.Now().UTC()

	if url, upErr := r.uploader.Upload(ctx, doc.ShopID, doc.Template, []byte(result.CSS)); upErr != nil {
		r.log.WarnWithErr("refresh cdn upload failed", upErr,
			"shop_id", doc.ShopID,
			"template", doc.Template)
	} else {
		doc.CDNURL = url
	}

	if err := r.store.SaveDocument(doc); err != nil {
		r.log.ErrorWithErr("failed to save refreshed document", err,
			"shop_id", doc.ShopID,
			"template", doc.Template)
		return
	}

	r.log.Info("document refreshed",
		"shop_id", doc.ShopID,
		"template", doc.Template,
		"bytes", doc.SizeBytes)
}
