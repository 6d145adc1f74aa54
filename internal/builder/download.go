package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultResponseHeaderTimeout bounds the wait for response headers.
	DefaultResponseHeaderTimeout = 30 * time.Second
	// DefaultRetries is how many times a broken download is resumed.
	DefaultRetries = 3
)

// errRetryable marks failures worth resuming: dropped connections and
// server errors.
var errRetryable = errors.New("retryable")

// Downloader fetches game databases and tablebase dumps. A download that
// breaks off is resumed with a Range request from what is already on disk.
type Downloader struct {
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) { d.client = client }
}

// WithRetries sets how many times a failed download is resumed, waiting
// backoff, then twice that, and so on between attempts.
func WithRetries(n int, backoff time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.retries = n
		d.backoff = backoff
	}
}

// WithDownloadLogger logs resumed attempts.
func WithDownloadLogger(l *zap.Logger) DownloaderOption {
	return func(d *Downloader) { d.logger = l }
}

// NewDownloader creates a Downloader with no overall timeout; the lichess
// monthly dumps take hours to fetch.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		},
		retries: DefaultRetries,
		backoff: 2 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadToFile downloads url to destPath, continuing a partial file left
// by an earlier attempt when the server supports ranges.
func (d *Downloader) DownloadToFile(ctx context.Context, url, destPath string, progress ProgressFunc) error {
	wait := d.backoff
	for attempt := 0; ; attempt++ {
		err := d.attempt(ctx, url, destPath, progress)
		if err == nil || !errors.Is(err, errRetryable) || attempt >= d.retries {
			return err
		}

		d.logger.Warn("download interrupted, resuming",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (d *Downloader) attempt(ctx context.Context, url, destPath string, progress ProgressFunc) error {
	var existing int64
	if info, err := os.Stat(destPath); err == nil {
		existing = info.Size()
	}

	body, total, offset, err := d.open(ctx, url, existing)
	if err != nil {
		return err
	}
	defer body.Close()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	var written atomic.Int64
	written.Store(offset)
	report := func() {
		if progress != nil {
			progress(Progress{Phase: PhaseDownload, BytesDownloaded: written.Load(), BytesTotal: total})
		}
	}

	done := make(chan struct{})
	defer close(done)
	if progress != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					report()
				}
			}
		}()
	}

	if _, err := io.Copy(countWrites(file, &written), body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: reading response: %v", errRetryable, err)
	}
	report()
	return file.Close()
}

// open requests url from offset. The returned offset is 0 when the server
// ignored the range and is sending the whole file.
func (d *Downloader) open(ctx context.Context, url string, offset int64) (body io.ReadCloser, total, from int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("creating request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, 0, ctx.Err()
		}
		return nil, 0, 0, fmt.Errorf("%w: %v", errRetryable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, resp.ContentLength, 0, nil
	case resp.StatusCode == http.StatusPartialContent:
		total = offset + resp.ContentLength
		var start, end int64
		if _, err := fmt.Sscanf(resp.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
			total = offset + resp.ContentLength
		}
		return resp.Body, total, offset, nil
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// The partial file is already complete.
		resp.Body.Close()
		return http.NoBody, offset, offset, nil
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, 0, 0, fmt.Errorf("%w: %s", errRetryable, resp.Status)
	}
	resp.Body.Close()
	return nil, 0, 0, fmt.Errorf("unexpected status: %s", resp.Status)
}
