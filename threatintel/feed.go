package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lateralwatch/engine/logger"
)

// feedDocument is the wire shape an IOC feed URL is expected to serve,
// mirroring original_source/analyzer/threat_intel.py's load_ioc_feed.
type feedDocument struct {
	IPs     []string `json:"ips"`
	Domains []string `json:"domains"`
	Hashes  []string `json:"hashes"`
}

// FeedRefresher periodically pulls IOC feed URLs into a Matcher, rate-
// limited so a misconfigured short refresh interval can never hammer an
// upstream feed. This sits outside the detection hot path: fusion,
// detect, and graph never block on it.
type FeedRefresher struct {
	matcher *Matcher
	client  *http.Client
	limiter *rate.Limiter
	urls    []string
}

// NewFeedRefresher returns a refresher that pulls urls into matcher no
// more often than once per refreshInterval.
func NewFeedRefresher(matcher *Matcher, urls []string, refreshInterval, timeout time.Duration) *FeedRefresher {
	var limit rate.Limit
	if refreshInterval > 0 {
		limit = rate.Every(refreshInterval)
	} else {
		limit = rate.Inf
	}

	return &FeedRefresher{
		matcher: matcher,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		urls:    urls,
	}
}

// RefreshOnce waits for the rate limiter's next token, then pulls every
// configured feed URL in turn. A failure on one URL is logged and does not
// stop the others.
func (f *FeedRefresher) RefreshOnce(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	log := logger.WithComponent("threatintel")
	for _, url := range f.urls {
		if err := f.pull(ctx, url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("ioc feed refresh failed")
		}
	}
	return nil
}

func (f *FeedRefresher) pull(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("threatintel: feed %s returned HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var doc feedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}

	for _, ip := range doc.IPs {
		f.matcher.AddIOC("ip", ip)
	}
	for _, domain := range doc.Domains {
		f.matcher.AddIOC("domain", domain)
	}
	for _, hash := range doc.Hashes {
		f.matcher.AddIOC("hash", hash)
	}

	return nil
}
