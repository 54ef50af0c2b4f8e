package swmr

import (
	"strings"

	"github.com/xinkaiwang/swmr/libs/swmr/topology"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// GrainId identifies one logical actor instance within a kind.
type GrainId string

// ReplicaId identifies the read replica of one grain on one node.
type ReplicaId struct {
	GrainId GrainId
	Node    string
}

func NewReplicaId(grainId GrainId, node string) ReplicaId {
	return ReplicaId{GrainId: grainId, Node: node}
}

// String is GrainId + "_" + Node. Node labels never contain "_", so the form parses back
// unambiguously even when the GrainId does.
func (id ReplicaId) String() string {
	return string(id.GrainId) + topology.NodeSeparator + id.Node
}

// ParseReplicaId splits on the last separator.
func ParseReplicaId(str string) (ReplicaId, error) {
	idx := strings.LastIndex(str, topology.NodeSeparator)
	if idx <= 0 || idx == len(str)-1 {
		return ReplicaId{}, kerror.Create("InvalidReplicaId", "replica id must be <grainId>_<node>").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("replicaId", str)
	}
	return ReplicaId{GrainId: GrainId(str[:idx]), Node: str[idx+1:]}, nil
}

func validateGrainId(id GrainId) error {
	if id == "" {
		return kerror.Create("InvalidGrainId", "grain id must not be empty").WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}
