package ingest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/resilience"
)

// Downloader fetches import files over HTTP.
type Downloader struct {
	client    *http.Client
	policy    resilience.Policy
	userAgent string
}

// NewDownloader returns a Downloader with a 5 minute timeout and the default
// retry policy.
func NewDownloader() *Downloader {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.LogRetries("ingest", "download")
	return &Downloader{
		client:    &http.Client{Timeout: 5 * time.Minute},
		policy:    p,
		userAgent: "datafixer/1.0",
	}
}

// IsURL reports whether src names an http(s) resource.
func IsURL(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download saves rawURL into dir, keeping the file name of the URL path so
// the format can be detected. Transient failures are retried.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "ingest: parse url")
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "download.csv"
	}
	dest := filepath.Join(dir, name)

	n, err := resilience.Retry(ctx, d.policy, func(ctx context.Context) (int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, eris.Wrap(err, "ingest: create request")
		}
		req.Header.Set("User-Agent", d.userAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			return 0, eris.Wrap(err, "ingest: download")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return 0, resilience.NewStatusError("ingest", resp.StatusCode, body)
		}

		file, err := os.Create(dest)
		if err != nil {
			return 0, eris.Wrap(err, "ingest: create file")
		}
		defer file.Close() //nolint:errcheck

		written, err := io.Copy(file, resp.Body)
		if err != nil {
			return written, eris.Wrap(err, "ingest: write file")
		}
		return written, nil
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("ingest: downloaded import file",
		zap.String("url", rawURL),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}
