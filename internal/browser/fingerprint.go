package browser

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// Fingerprint is the identity a browser context presents to a site:
// user agent, viewport and timezone, kept mutually consistent.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Timezone       string
}

// FingerprintPool hands out plausible desktop fingerprints, rotating
// through the pool so consecutive sessions do not repeat.
type FingerprintPool struct {
	mu    sync.Mutex
	pool  []Fingerprint
	index int
}

func NewFingerprintPool() *FingerprintPool {
	return &FingerprintPool{pool: defaultFingerprints()}
}

// Next returns the next fingerprint in rotation, starting from a
// random offset so restarts do not always lead with the same identity.
func (fp *FingerprintPool) Next() Fingerprint {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.index == 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(len(fp.pool)))); err == nil {
			fp.index = int(n.Int64())
		}
	}
	f := fp.pool[fp.index%len(fp.pool)]
	fp.index++
	return f
}

func (fp *FingerprintPool) Size() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.pool)
}

func defaultFingerprints() []Fingerprint {
	return []Fingerprint{
		{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Timezone:       "America/New_York",
		},
		{
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			ViewportWidth:  1440,
			ViewportHeight: 900,
			Timezone:       "America/Los_Angeles",
		},
		{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Timezone:       "America/Chicago",
		},
		{
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			ViewportWidth:  1680,
			ViewportHeight: 1050,
			Timezone:       "America/Denver",
		},
		{
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
			ViewportWidth:  1366,
			ViewportHeight: 768,
			Timezone:       "America/Phoenix",
		},
	}
}
