package browser

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// DomainPacer enforces a minimum delay between requests to the same
// registrable domain. A request that arrives before the delay has
// elapsed is rejected with ErrRateLimited rather than queued, so the
// caller keeps control of scheduling.
type DomainPacer struct {
	minDelay time.Duration
	logger   *logrus.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewDomainPacer(minDelay time.Duration, logger *logrus.Logger) *DomainPacer {
	if logger == nil {
		logger = logrus.New()
	}
	return &DomainPacer{
		minDelay: minDelay,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow consumes a slot for the target's domain. Returns ErrRateLimited
// if the domain was hit within the minimum delay window.
func (p *DomainPacer) Allow(rawURL string) error {
	domain := p.domainKey(rawURL)

	p.mu.Lock()
	lim, ok := p.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.minDelay), 1)
		p.limiters[domain] = lim
	}
	p.mu.Unlock()

	if !lim.Allow() {
		p.logger.WithField("domain", domain).Debug("Request rejected by domain pacer")
		return ErrRateLimited
	}
	return nil
}

// domainKey reduces a URL to its registrable domain so subdomains of
// the same site share one budget. Falls back to the raw host when the
// public suffix list cannot place it.
func (p *DomainPacer) domainKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld
	}
	return host
}
