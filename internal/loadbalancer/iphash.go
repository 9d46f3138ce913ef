package loadbalancer

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// IPHash implements the ip_hash strategy: the client IP hashes onto a
// weighted ring so the same IP consistently lands on the same backend as
// long as the healthy set is unchanged.
type IPHash struct {
	baseBalancer
	ring     []ringEntry
	ringMu   sync.RWMutex
	replicas int
}

type ringEntry struct {
	hash    uint64
	backend *Backend
}

// NewIPHash creates a new ip_hash balancer.
func NewIPHash(backends []*Backend) *IPHash {
	ih := &IPHash{replicas: 100}
	for _, b := range backends {
		if b.Weight == 0 {
			b.Weight = 1
		}
	}
	ih.backends = backends
	ih.buildIndex()
	ih.rebuildRing()
	return ih
}

func (ih *IPHash) rebuildRing() {
	ih.mu.RLock()
	healthy := ih.healthyBackends()
	ih.mu.RUnlock()

	var ring []ringEntry
	for _, b := range healthy {
		vnodes := ih.replicas * b.Weight
		for i := 0; i < vnodes; i++ {
			ring = append(ring, ringEntry{hash: vnodeHash(b.URL, i), backend: b})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })

	ih.ringMu.Lock()
	ih.ring = ring
	ih.ringMu.Unlock()
}

func vnodeHash(key string, idx int) uint64 {
	d := xxhash.New()
	d.Write([]byte(key))
	d.Write([]byte{byte(idx), byte(idx >> 8), byte(idx >> 16), byte(idx >> 24)})
	return d.Sum64()
}

// Select hashes clientIP onto the ring and returns the backend owning the
// next slot at or after the hash, wrapping to the first slot past the end.
// Weighting is expressed by each backend's number of virtual nodes.
func (ih *IPHash) Select(clientIP string) *Backend {
	ih.ringMu.RLock()
	ring := ih.ring
	ih.ringMu.RUnlock()

	if len(ring) == 0 {
		return nil
	}

	h := xxhash.Sum64String(clientIP)
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= h })
	if idx >= len(ring) {
		idx = 0
	}
	return ring[idx].backend
}

// UpdateBackends updates backends and rebuilds the ring.
func (ih *IPHash) UpdateBackends(backends []*Backend) {
	ih.baseBalancer.UpdateBackends(backends)
	ih.rebuildRing()
}

// MarkHealthy marks a backend healthy and rebuilds the ring.
func (ih *IPHash) MarkHealthy(url string) {
	ih.baseBalancer.MarkHealthy(url)
	ih.rebuildRing()
}

// MarkUnhealthy marks a backend unhealthy and rebuilds the ring.
func (ih *IPHash) MarkUnhealthy(url string) {
	ih.baseBalancer.MarkUnhealthy(url)
	ih.rebuildRing()
}
