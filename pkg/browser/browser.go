package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
)

// Worker is a pooled headless Chrome instance. The browser context stays
// alive across extractions; each extraction opens its own tab.
type Worker struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// ID returns the worker's unique identifier
func (w *Worker) ID() string {
	return w.id
}

// Connected reports whether the browser process is still reachable. The
// allocator cancels the context when the process exits, so a dead browser
// shows up here without an extra round trip.
func (w *Worker) Connected() bool {
	return w.ctx.Err() == nil
}

// Close shuts the browser down gracefully. Safe to call more than once.
func (w *Worker) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.closeErr = chromedp.Cancel(w.ctx)
		w.cancel()
	})
	return w.closeErr
}

// Context returns the browser context for opening tabs
func (w *Worker) Context() context.Context {
	return w.ctx
}

// Launcher creates Chrome workers for the pool. Launch options come from
// configuration and are opaque to the pool itself.
type Launcher struct {
	cfg config.BrowserConfig
	log *logger.Logger
}

// NewLauncher creates a Chrome launcher with the given settings
func NewLauncher(cfg config.BrowserConfig, log *logger.Logger) *Launcher {
	return &Launcher{
		cfg: cfg,
		log: log.WithComponent("browser"),
	}
}

// Launch starts a new headless Chrome process and waits for it to become
// reachable, bounded by ctx.
func (l *Launcher) Launch(ctx context.Context) (pool.Worker, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if !l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	for _, arg := range l.cfg.ExtraArgs {
		name := strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(name, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// The allocator outlives the launch call; the pool owns the worker's
	// lifetime from here on.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	started := make(chan error, 1)
	go func() {
		// The first Run starts the browser process.
		started <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, err
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	w := &Worker{
		id:     uuid.NewString(),
		ctx:    browserCtx,
		cancel: cancel,
	}
	l.log.Info("browser launched", "worker_id", w.id)
	return w, nil
}
