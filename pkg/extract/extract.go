package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/aviroy619/critical-css-service/pkg/browser"
	"github.com/aviroy619/critical-css-service/pkg/config"
	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
)

// Result is the outcome of a single extraction
type Result struct {
	CSS         string
	ContentHash string
	Duration    time.Duration
}

// Extractor produces critical CSS for a page using a pooled browser worker.
// It opens a fresh tab per extraction and never retains the worker.
type Extractor struct {
	cfg config.BrowserConfig
	log *logger.Logger
}

// New creates an extractor with the given browser settings
func New(cfg config.BrowserConfig, log *logger.Logger) *Extractor {
	return &Extractor{
		cfg: cfg,
		log: log.WithComponent("extract"),
	}
}

// ValidateURL checks that a target URL is absolute http(s)
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", svcerrors.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", svcerrors.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", svcerrors.ErrInvalidURL)
	}
	return nil
}

// Extract navigates a tab on the given worker to the URL at the requested
// viewport and returns the above-the-fold CSS.
func (e *Extractor) Extract(ctx context.Context, w pool.Worker, rawURL string, vp config.Viewport) (*Result, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	bw, ok := w.(*browser.Worker)
	if !ok {
		return nil, fmt.Errorf("%w: worker is not a browser instance", svcerrors.ErrExtractionFailed)
	}

	if vp.Width <= 0 || vp.Height <= 0 {
		vp = e.cfg.DefaultViewport
	}

	timeout := e.cfg.NavigationTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	// A new tab in the pooled browser; torn down when the extraction ends.
	tabCtx, cancelTab := chromedp.NewContext(bw.Context())
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	start := time.Now()
	var css string
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(criticalCSSScript, &css, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", svcerrors.ErrExtractionFailed, err)
	}
	if css == "" {
		return nil, fmt.Errorf("%w: page yielded no critical rules", svcerrors.ErrExtractionFailed)
	}

	sum := sha256.Sum256([]byte(css))
	e.log.Info("extraction complete",
		"url", rawURL,
		"bytes", len(css),
		"duration_ms", duration.Milliseconds())

	return &Result{
		CSS:         css,
		ContentHash: hex.EncodeToString(sum[:]),
		Duration:    duration,
	}, nil
}
