// Package lichess probes the public lichess tablebase server over HTTP.
package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/tablebase"
)

// Compile-time check that Client implements tablebase.Prober.
var _ tablebase.Prober = (*Client)(nil)

const (
	// DefaultBaseURL is the lichess tablebase endpoint for standard chess.
	DefaultBaseURL = "https://tablebase.lichess.ovh/standard"

	// MaxPieces is the largest position the server resolves.
	MaxPieces = 7

	defaultTimeout = 5 * time.Second
)

// ErrRateLimited is returned when the server answers 429.
var ErrRateLimited = errors.New("lichess: rate limited")

// Client is a rate-limited lichess tablebase client. It is safe for
// concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	stats     stats.Collector
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the server endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit limits requests per second with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithStats sets the stats collector.
func WithStats(s stats.Collector) Option {
	return func(c *Client) { c.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client. By default it sends at most two requests per second.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: defaultTimeout},
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		userAgent: "gambit",
		stats:     stats.NewNoop(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxPieces returns 7.
func (c *Client) MaxPieces() int {
	return MaxPieces
}

// response mirrors the server's JSON. Move categories are from the point of
// view of the side to move after the move is played.
type response struct {
	Category string `json:"category"`
	DTZ      *int   `json:"dtz"`
	Moves    []struct {
		UCI      string `json:"uci"`
		Category string `json:"category"`
		DTZ      *int   `json:"dtz"`
	} `json:"moves"`
}

// Probe queries the server. Positions with more than seven pieces are not
// sent. Network failures wrap tablebase.ErrUnavailable.
func (c *Client) Probe(ctx context.Context, fenStr string) (*tablebase.Result, error) {
	n, err := fen.PieceCount(fenStr)
	if err != nil {
		return nil, err
	}
	if n > MaxPieces {
		return nil, tablebase.ErrNotFound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	c.stats.IncCounter(stats.MetricTablebaseProbes, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?fen="+url.QueryEscape(fenStr), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", tablebase.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("tablebase rate limited")
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, tablebase.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", tablebase.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("lichess: unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return toResult(body)
}

func toResult(body response) (*tablebase.Result, error) {
	wdl, ok := category(body.Category)
	if !ok {
		return nil, tablebase.ErrNotFound
	}

	res := &tablebase.Result{WDL: wdl, DTZ: deref(body.DTZ)}
	for _, m := range body.Moves {
		after, ok := category(m.Category)
		if !ok {
			continue
		}
		res.Moves = append(res.Moves, tablebase.Move{
			UCI: m.UCI,
			WDL: after.Negate(),
			DTZ: deref(m.DTZ),
		})
	}
	return res, nil
}

// category maps a lichess category to an outcome. "unknown" and missing
// categories are not mapped.
func category(c string) (tablebase.WDL, bool) {
	switch c {
	case "win", "syzygy-win", "maybe-win":
		return tablebase.Win, true
	case "cursed-win":
		return tablebase.CursedWin, true
	case "draw":
		return tablebase.Draw, true
	case "blessed-loss":
		return tablebase.BlessedLoss, true
	case "loss", "syzygy-loss", "maybe-loss":
		return tablebase.Loss, true
	default:
		return 0, false
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
