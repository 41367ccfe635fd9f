package health

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"numinfo_bot/internal/logging"
)

const pingRequestTimeout = 10 * time.Second

type pingDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pinger periodically issues a self-HTTP request to keep the host process
// warm on platforms that idle out. It has no data dependency on anything
// else; failures are logged and ignored.
type Pinger struct {
	url        string
	interval   time.Duration
	httpClient pingDoer
	logger     *logrus.Entry
}

// NewPinger constructs a Pinger. An empty url disables it.
func NewPinger(url string, interval time.Duration, logger *logrus.Entry) *Pinger {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Pinger{
		url:        url,
		interval:   interval,
		httpClient: &http.Client{Timeout: pingRequestTimeout},
		logger:     logger,
	}
}

// Run blocks until the context is canceled, pinging at the configured
// interval. Returns immediately when no URL is configured.
func (p *Pinger) Run(ctx context.Context) {
	if p == nil || p.url == "" {
		return
	}

	p.logger.WithFields(logging.Fields{
		"event":    "keepalive_start",
		"url":      p.url,
		"interval": p.interval.String(),
	}).Info("starting keepalive pinger")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("event", "keepalive_stop").Info("keepalive pinger stopped")
			return
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

func (p *Pinger) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.WithField("event", "keepalive_error").WithError(err).Warn("failed to build keepalive request")
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.WithField("event", "keepalive_error").WithError(err).Warn("keepalive ping failed")
		return
	}
	resp.Body.Close()

	p.logger.WithFields(logging.Fields{
		"event":  "keepalive_ping",
		"status": resp.StatusCode,
	}).Debug("keepalive ping sent")
}
