package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// Default paces for the per-peer limiters. A single noisy or hostile
// peer should not be able to starve the acceptor goroutine with
// retransmission requests or discovery probes.
const (
	defaultRetransmitRatePerSec = 50
	defaultRetransmitBurst      = 100
	defaultDiscoveryRatePerSec  = 2
	defaultDiscoveryBurst       = 4
)

// PeerLimiters bundles the rate limiters applied per remote address:
// one gate for retransmission/NACK requests, one for discovery probes.
type PeerLimiters struct {
	mu       sync.Mutex
	byAddr   map[string]*peerLimiterSet
}

type peerLimiterSet struct {
	retransmit *rate.Limiter
	discovery  *rate.Limiter
}

func NewPeerLimiters() *PeerLimiters {
	return &PeerLimiters{byAddr: make(map[string]*peerLimiterSet)}
}

func (p *PeerLimiters) setFor(addr string) *peerLimiterSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byAddr[addr]
	if !ok {
		s = &peerLimiterSet{
			retransmit: rate.NewLimiter(rate.Limit(defaultRetransmitRatePerSec), defaultRetransmitBurst),
			discovery:  rate.NewLimiter(rate.Limit(defaultDiscoveryRatePerSec), defaultDiscoveryBurst),
		}
		p.byAddr[addr] = s
	}
	return s
}

// AllowRetransmit reports whether addr may make another retransmission
// or NACK request right now.
func (p *PeerLimiters) AllowRetransmit(addr string) bool {
	return p.setFor(addr).retransmit.Allow()
}

// AllowDiscovery reports whether addr may make another discovery probe
// right now.
func (p *PeerLimiters) AllowDiscovery(addr string) bool {
	return p.setFor(addr).discovery.Allow()
}

// Forget drops the limiter state for addr, e.g. once its session
// terminates, so the map doesn't grow unbounded across reconnects from
// ephemeral ports.
func (p *PeerLimiters) Forget(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byAddr, addr)
}
