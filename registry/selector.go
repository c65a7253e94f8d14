package registry

import (
	"errors"
	"math/rand"
	"sync"
)

// ErrNoValidHost is returned when no eligible host is registered and online.
var ErrNoValidHost = errors.New("registry: no valid host")

// Selector picks one host from a snapshot of eligible hosts. Strategies are
// pluggable so routing policy can be tested with a fixed snapshot and a
// seeded random source.
type Selector interface {
	Pick(hosts []string) (string, error)
}

// RandomSelector selects uniformly at random, no affinity guarantee.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector wraps a rand source; pass a seeded one in tests.
func NewRandomSelector(rng *rand.Rand) *RandomSelector {
	return &RandomSelector{rng: rng}
}

func (s *RandomSelector) Pick(hosts []string) (string, error) {
	if len(hosts) == 0 {
		return "", ErrNoValidHost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return hosts[s.rng.Intn(len(hosts))], nil
}

// RoundRobinSelector cycles through hosts in order. The cursor survives
// snapshot changes; it simply wraps on the current snapshot size.
type RoundRobinSelector struct {
	mu   sync.Mutex
	next int
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (s *RoundRobinSelector) Pick(hosts []string) (string, error) {
	if len(hosts) == 0 {
		return "", ErrNoValidHost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	host := hosts[s.next%len(hosts)]
	s.next++
	return host, nil
}

// TopicFor builds the RPC topic for a selected host.
func TopicFor(base, host string) string {
	return base + "." + host
}
