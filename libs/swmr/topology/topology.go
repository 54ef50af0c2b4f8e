package topology

import (
	"strconv"
	"strings"
	"sync"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// NodeSeparator joins GrainId and node label in a replica's string identity, so labels may not contain it.
const NodeSeparator = "_"

// Topology decides which replica node serves a session.
type Topology interface {
	Nodes() []string
	GetNode(key string) string
	Add(node string) error
	Remove(node string) error
}

// ConsistentHashTopology is a Topology backed by a HashRing. Safe for concurrent use.
type ConsistentHashTopology struct {
	mu   sync.RWMutex
	ring *HashRing
}

// NodeLabels returns "0".."n-1".
func NodeLabels(n int) []string {
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = strconv.Itoa(i)
	}
	return labels
}

func NewConsistentHashTopology(nodeCount int) (*ConsistentHashTopology, error) {
	if nodeCount < 1 {
		return nil, kerror.Create("InvalidReplicaCount", "replica count must be >= 1").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("nodeCount", nodeCount)
	}
	return NewConsistentHashTopologyWithNodes(NodeLabels(nodeCount), DefaultVirtualPoints)
}

func NewConsistentHashTopologyWithNodes(nodes []string, virtualPoints int) (*ConsistentHashTopology, error) {
	for _, node := range nodes {
		if err := ValidateNodeLabel(node); err != nil {
			return nil, err
		}
	}
	ring, err := NewHashRing(nodes, virtualPoints)
	if err != nil {
		return nil, err
	}
	return &ConsistentHashTopology{ring: ring}, nil
}

func ValidateNodeLabel(node string) error {
	if node == "" || strings.Contains(node, NodeSeparator) {
		return kerror.Create("InvalidNodeLabel", "node label must be non-empty and must not contain "+NodeSeparator).
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("node", node)
	}
	return nil
}

func (t *ConsistentHashTopology) Nodes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ring.Nodes()
}

func (t *ConsistentHashTopology) GetNode(key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ring.GetNode(key)
}

func (t *ConsistentHashTopology) Add(node string) error {
	if err := ValidateNodeLabel(node); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring.Add(node)
	return nil
}

func (t *ConsistentHashTopology) Remove(node string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ring.Remove(node)
}

func (t *ConsistentHashTopology) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ring.Size()
}
