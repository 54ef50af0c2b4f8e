package topology

import "github.com/xinkaiwang/swmr/libs/xklib/kerror"

// StaticTopology routes by murmur2(key) mod N. Membership is fixed: any change remaps
// almost every session, so Add and Remove are not supported.
type StaticTopology struct {
	nodes []string
}

func NewStaticTopology(nodes []string) (*StaticTopology, error) {
	if len(nodes) == 0 {
		return nil, kerror.Create("EmptyRing", "at least one node is required").
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	for _, node := range nodes {
		if err := ValidateNodeLabel(node); err != nil {
			return nil, err
		}
	}
	copied := make([]string, len(nodes))
	copy(copied, nodes)
	return &StaticTopology{nodes: copied}, nil
}

func (t *StaticTopology) Nodes() []string {
	out := make([]string, len(t.nodes))
	copy(out, t.nodes)
	return out
}

func (t *StaticTopology) GetNode(key string) string {
	return t.nodes[hashString(key)%uint32(len(t.nodes))]
}

func (t *StaticTopology) Add(node string) error {
	return kerror.Create("NotImplemented", "static topology does not support Add").
		WithErrorCode(kerror.EC_UNIMPLEMENTED).With("node", node)
}

func (t *StaticTopology) Remove(node string) error {
	return kerror.Create("NotImplemented", "static topology does not support Remove").
		WithErrorCode(kerror.EC_UNIMPLEMENTED).With("node", node)
}
