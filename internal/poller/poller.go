// Package poller is the thin observability loop paired with the supervisor:
// it GETs one URL on a fixed interval and logs the result. Its only failure
// contract is "log and continue".
package poller

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Poller fetches URL every Interval and logs status and latency.
type Poller struct {
	URL      string
	Interval time.Duration

	client *http.Client
	log    *slog.Logger
}

// New builds a poller. Interval values <= 0 fall back to one minute.
func New(url string, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		URL:      url,
		Interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Run polls until the context is canceled. The first probe fires immediately.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		p.log.Warn("poll request invalid", "url", p.URL, "error", err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("poll failed", "url", p.URL, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	n, _ := io.Copy(io.Discard, resp.Body)
	p.log.Info("poll",
		"url", p.URL, "status", resp.StatusCode, "bytes", n,
		"elapsed", time.Since(start).Round(time.Millisecond))
}
