package control

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// stealthUserAgents is the pool of mundane User-Agent strings stealth
// mode draws from.
var stealthUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
	"VLC/3.0.20 LibVLC/3.0.20",
}

// defaultUserAgent is used when stealth mode is off.
const defaultUserAgent = "upcast/1.0 UPnP/1.1"

// Stealth randomizes the outgoing User-Agent and inserts a small random
// delay before each request. It never changes request semantics.
type Stealth struct {
	mu       sync.Mutex
	rng      *rand.Rand
	maxDelay time.Duration
}

// NewStealth creates a stealth policy with the given maximum pre-request
// delay. A zero maxDelay means 250ms.
func NewStealth(maxDelay time.Duration) *Stealth {
	if maxDelay <= 0 {
		maxDelay = 250 * time.Millisecond
	}
	return &Stealth{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		maxDelay: maxDelay,
	}
}

// Apply decorates an outgoing request. Safe on a nil receiver, which
// applies the default User-Agent with no delay.
func (s *Stealth) Apply(ctx context.Context, req *http.Request) error {
	if s == nil {
		req.Header.Set("User-Agent", defaultUserAgent)
		return nil
	}

	s.mu.Lock()
	ua := stealthUserAgents[s.rng.Intn(len(stealthUserAgents))]
	delay := time.Duration(s.rng.Int63n(int64(s.maxDelay)))
	s.mu.Unlock()

	req.Header.Set("User-Agent", ua)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
