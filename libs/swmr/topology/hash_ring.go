package topology

import (
	"sort"
	"strconv"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// DefaultVirtualPoints is the number of ring entries per node.
const DefaultVirtualPoints = 100

// HashRing maps keys to node labels. Each node owns R points at murmur2(node + strconv(i)).
// Point collisions overwrite (last Add wins). Not safe for concurrent mutation; Topology adds locking.
type HashRing struct {
	replicas int
	ring     map[uint32]string
	keys     []uint32 // sorted, rebuilt on every membership change
	nodes    []string // distinct, insertion order
}

func NewHashRing(nodes []string, replicas int) (*HashRing, error) {
	if replicas < 1 {
		return nil, kerror.Create("InvalidVirtualPoints", "virtual points per node must be >= 1").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("replicas", replicas)
	}
	if len(nodes) == 0 {
		return nil, kerror.Create("EmptyRing", "at least one node is required").
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	hr := &HashRing{
		replicas: replicas,
		ring:     make(map[uint32]string, len(nodes)*replicas),
	}
	for _, node := range nodes {
		hr.addPoints(node)
	}
	hr.rebuildKeys()
	return hr, nil
}

func pointKey(node string, i int) uint32 {
	return hashString(node + strconv.Itoa(i))
}

func (hr *HashRing) addPoints(node string) {
	for i := 0; i < hr.replicas; i++ {
		hr.ring[pointKey(node, i)] = node
	}
	if !hr.contains(node) {
		hr.nodes = append(hr.nodes, node)
	}
}

func (hr *HashRing) rebuildKeys() {
	keys := make([]uint32, 0, len(hr.ring))
	for k := range hr.ring {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	hr.keys = keys
}

func (hr *HashRing) contains(node string) bool {
	for _, n := range hr.nodes {
		if n == node {
			return true
		}
	}
	return false
}

// Add inserts node's points. Re-adding an existing node re-asserts its points.
func (hr *HashRing) Add(node string) {
	hr.addPoints(node)
	hr.rebuildKeys()
}

// Remove deletes node's points. The ring is unchanged when an error is returned:
// NodeNotFound if the node (or any of its points) is absent, RingWouldBeEmpty for the last node.
func (hr *HashRing) Remove(node string) error {
	if !hr.contains(node) {
		return kerror.Create("NodeNotFound", "can not remove a node that was not added").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("node", node)
	}
	if len(hr.nodes) == 1 {
		return kerror.Create("RingWouldBeEmpty", "can not remove the last node").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("node", node)
	}
	for i := 0; i < hr.replicas; i++ {
		if _, ok := hr.ring[pointKey(node, i)]; !ok {
			return kerror.Create("NodeNotFound", "ring point missing for node").
				WithErrorCode(kerror.EC_INVALID_PARAMETER).With("node", node).With("point", i)
		}
	}
	for i := 0; i < hr.replicas; i++ {
		k := pointKey(node, i)
		// a point overwritten by a later node belongs to that node now
		if hr.ring[k] == node {
			delete(hr.ring, k)
		}
	}
	for i, n := range hr.nodes {
		if n == node {
			hr.nodes = append(hr.nodes[:i:i], hr.nodes[i+1:]...)
			break
		}
	}
	hr.rebuildKeys()
	return nil
}

// GetNode returns the owner of the first point >= murmur2(key), wrapping to the smallest point.
func (hr *HashRing) GetNode(key string) string {
	h := hashString(key)
	idx := sort.Search(len(hr.keys), func(i int) bool { return hr.keys[i] >= h })
	if idx == len(hr.keys) {
		idx = 0
	}
	return hr.ring[hr.keys[idx]]
}

// Nodes returns a copy of the distinct node labels in insertion order.
func (hr *HashRing) Nodes() []string {
	out := make([]string, len(hr.nodes))
	copy(out, hr.nodes)
	return out
}

// Size is the number of points on the ring (<= nodes*R because of collisions).
func (hr *HashRing) Size() int {
	return len(hr.keys)
}
