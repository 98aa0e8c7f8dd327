// Package keepalive periodically pings the service's public URL so hosts that
// suspend idle instances keep it running.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// Pinger runs a GET against url on a cron schedule.
type Pinger struct {
	url    string
	client *http.Client
	logger *zap.Logger
	cron   *cron.Cron
}

// New validates schedule and returns a stopped Pinger. An empty url yields a
// Pinger whose Start and Stop do nothing.
func New(url, schedule string, client *http.Client, logger *zap.Logger) (*Pinger, error) {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	p := &Pinger{url: url, client: client, logger: logger}
	if url == "" {
		return p, nil
	}

	p.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("keep-alive schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Enabled reports whether a URL was configured.
func (p *Pinger) Enabled() bool { return p.cron != nil }

func (p *Pinger) Start() {
	if !p.Enabled() {
		p.logger.Info("keep-alive disabled")
		return
	}
	p.logger.Info("keep-alive started", zap.String("url", p.url))
	p.cron.Start()
}

// Stop halts the schedule and waits for a running ping to finish.
func (p *Pinger) Stop() {
	if !p.Enabled() {
		return
	}
	<-p.cron.Stop().Done()
	p.logger.Info("keep-alive stopped")
}

func (p *Pinger) run() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		p.logger.Warn("keep-alive ping failed", zap.Error(err))
	}
}

// Ping performs a single request. Any non-2xx status is an error.
func (p *Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, p.url)
	}
	p.logger.Debug("keep-alive ping", zap.Int("status", resp.StatusCode))
	return nil
}
