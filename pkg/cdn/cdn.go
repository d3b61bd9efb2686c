package cdn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aviroy619/critical-css-service/pkg/config"
	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
	"github.com/aviroy619/critical-css-service/pkg/logger"
)

// Uploader pushes generated CSS artifacts to a CDN and returns the public
// URL they will be served from.
type Uploader interface {
	Upload(ctx context.Context, shopID, template string, css []byte) (string, error)
}

// NewUploader returns an HTTP uploader when the CDN is enabled, otherwise
// a no-op that leaves artifacts local.
func NewUploader(cfg config.CDNConfig, log *logger.Logger) Uploader {
	if !cfg.Enabled {
		return NoopUploader{}
	}
	return &HTTPUploader{
		cfg: cfg,
		log: log.WithComponent("cdn"),
		client: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// NoopUploader skips uploads; Upload returns an empty URL
type NoopUploader struct{}

func (NoopUploader) Upload(ctx context.Context, shopID, template string, css []byte) (string, error) {
	return "", nil
}

// HTTPUploader PUTs artifacts to a CDN origin over HTTP
type HTTPUploader struct {
	cfg    config.CDNConfig
	log    *logger.Logger
	client *http.Client
}

// ArtifactPath is the CDN object key for a shop+template
func ArtifactPath(shopID, template string) string {
	return fmt.Sprintf("critical-css/%s/%s.css", shopID, template)
}

// Upload PUTs the artifact and returns its public URL
func (u *HTTPUploader) Upload(ctx context.Context, shopID, template string, css []byte) (string, error) {
	path := ArtifactPath(shopID, template)
	target := strings.TrimRight(u.cfg.BaseURL, "/") + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(css))
	if err != nil {
		return "", fmt.Errorf("%w: %v", svcerrors.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", "text/css; charset=utf-8")
	if u.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.APIKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", svcerrors.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", svcerrors.ErrUploadFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	publicBase := u.cfg.PublicURL
	if publicBase == "" {
		publicBase = u.cfg.BaseURL
	}
	publicURL := strings.TrimRight(publicBase, "/") + "/" + path

	u.log.Info("artifact uploaded", "shop_id", shopID, "template", template, "bytes", len(css), "url", publicURL)
	return publicURL, nil
}
