package swmr

import (
	"context"
	"encoding/json"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// State is a grain's full state. Clone must return a deep copy: replicas each keep a private one.
type State[S any] interface {
	Clone() S
}

// Grain is the authoritative domain logic. GetState may return internal state; the runtime
// clones it before sharing. SetState takes ownership of s.
type Grain[S any] interface {
	GetState() S
	SetState(s S)
}

// Snapshot is the unit of replication. Versions increase by one per successful mutation.
type Snapshot[S any] struct {
	GrainId GrainId
	Version int64
	State   S
}

// Mutation runs on the authoritative grain; a returned error means no propagation.
type Mutation[G any] func(ctx context.Context, grain G) (any, error)

// Query runs against a replica's cached snapshot. It must not modify state.
type Query[S any] func(ctx context.Context, state S) (any, error)

// StateCodec turns state into bytes for persistence.
type StateCodec[S any] interface {
	Encode(state S) ([]byte, error)
	Decode(data []byte) (S, error)
}

// JsonCodec is the default StateCodec.
type JsonCodec[S any] struct{}

func (JsonCodec[S]) Encode(state S) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, kerror.Wrap(err, "MarshalError", "failed to encode state", false)
	}
	return data, nil
}

func (JsonCodec[S]) Decode(data []byte) (S, error) {
	var state S
	if err := json.Unmarshal(data, &state); err != nil {
		return state, kerror.Wrap(err, "UnmarshalError", "failed to decode state", false).WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	return state, nil
}

// ResultAs converts an Invoke result to its concrete type.
func ResultAs[R any](value any, err error) (R, error) {
	var zero R
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(R)
	if !ok {
		return zero, kerror.Create("UnexpectedResultType", "result has unexpected type").
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	return typed, nil
}
