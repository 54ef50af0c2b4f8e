package swmr

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
)

// Reader routes a query to the replica owning the session. It holds no state.
type Reader[G Grain[S], S State[S]] struct {
	kind    *GrainKind[G, S]
	grainId GrainId
}

// Invoke returns the replica's result or error unchanged.
func (r *Reader[G, S]) Invoke(ctx context.Context, sessionId string, query Query[S]) (result any, err error) {
	if err := validateGrainId(r.grainId); err != nil {
		return nil, err
	}
	ctx = klogging.EmbedKv(ctx, "grainId", string(r.grainId))
	err = kmetrics.InstrumentSummaryRunError(ctx, r.kind.name+".Read", func(ctx context.Context) error {
		task := &readTask[G, S]{
			reader:    r,
			sessionId: sessionId,
			query:     query,
			resp:      newResponseChan[any](),
		}
		waitCtx, cancel := context.WithTimeout(ctx, r.kind.callTimeout*writerWaitFactor)
		defer cancel()
		if err := r.kind.pool.Submit(waitCtx, task); err != nil {
			return err
		}
		select {
		case resp := <-task.resp:
			result = resp.value
			return resp.err
		case <-waitCtx.Done():
			return errReadTimeout(waitCtx.Err())
		}
	})
	label := "ok"
	if err != nil {
		label = "error"
	}
	ReadMetric.GetTimeSequence(ctx, r.kind.name, label).Add(1)
	return result, err
}

type readTask[G Grain[S], S State[S]] struct {
	reader    *Reader[G, S]
	sessionId string
	query     Query[S]
	resp      chan response[any]
}

func (t *readTask[G, S]) GetName() string { return "Read" }

func (t *readTask[G, S]) Execute(ctx context.Context) {
	kind := t.reader.kind
	node := kind.readerTopology.GetNode(t.sessionId)
	value, err := kind.directory.Replica(NewReplicaId(t.reader.grainId, node)).Query(ctx, t.query)
	t.resp <- response[any]{value: value, err: err}
}
