package biz

import (
	"context"
	"strings"

	"github.com/xinkaiwang/swmr/libs/swmr/lazywriter"
	"github.com/xinkaiwang/swmr/libs/swmr/storeprov"
	"github.com/xinkaiwang/swmr/libs/swmr/swmr"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"go.opencensus.io/metric"
)

const KindName = "prefs"

var version = "dev"

func SetVersion(v string) {
	version = v
}

func GetVersion() string {
	return version
}

type PrefsKind = swmr.GrainKind[*PrefsGrain, *PrefsState]

// App is the prefs business layer: every call goes through the SWMR Writer or Reader.
type App struct {
	kind  *PrefsKind
	store storeprov.StateStore
}

func NewApp(ctx context.Context, cfg swmrconfig.KindConfig, store storeprov.StateStore) (*App, error) {
	builder := swmr.NewGrainKindBuilder[*PrefsGrain, *PrefsState](cfg, NewPrefsGrain)
	if store != nil {
		builder.WithStore(store)
	}
	kind, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	return &App{kind: kind, store: store}, nil
}

func validateId(id string) error {
	if id == "" {
		return kerror.Create("InvalidId", "prefs id must not be empty").WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}

func (app *App) SetValue(ctx context.Context, id, sessionId, key, value string) error {
	if err := validateId(id); err != nil {
		return err
	}
	_, err := app.kind.Write(ctx, swmr.GrainId(id), sessionId, func(ctx context.Context, g *PrefsGrain) (any, error) {
		return nil, g.SetValue(key, value)
	})
	return err
}

func (app *App) ClearValues(ctx context.Context, id, sessionId string) error {
	if err := validateId(id); err != nil {
		return err
	}
	_, err := app.kind.Write(ctx, swmr.GrainId(id), sessionId, func(ctx context.Context, g *PrefsGrain) (any, error) {
		g.ClearValues()
		return nil, nil
	})
	return err
}

func (app *App) GetValue(ctx context.Context, id, sessionId, key string) (string, error) {
	if err := validateId(id); err != nil {
		return "", err
	}
	return swmr.ResultAs[string](app.kind.Read(ctx, swmr.GrainId(id), sessionId, func(ctx context.Context, s *PrefsState) (any, error) {
		return GetValue(s, key)
	}))
}

func (app *App) GetAllEntries(ctx context.Context, id, sessionId string) (map[string]string, error) {
	if err := validateId(id); err != nil {
		return nil, err
	}
	return swmr.ResultAs[map[string]string](app.kind.Read(ctx, swmr.GrainId(id), sessionId, func(ctx context.Context, s *PrefsState) (any, error) {
		return GetAllEntries(s), nil
	}))
}

func (app *App) LazyWriterStatus(ctx context.Context, id string) (lazywriter.Status, error) {
	if err := validateId(id); err != nil {
		return lazywriter.Status{}, err
	}
	return app.kind.LazyWriterStatus(ctx, swmr.GrainId(id))
}

func (app *App) ResetLazyWriter(ctx context.Context, id string) (lazywriter.Status, error) {
	if err := validateId(id); err != nil {
		return lazywriter.Status{}, err
	}
	return app.kind.ResetLazyWriter(ctx, swmr.GrainId(id))
}

// ListPersistedIds returns the ids of prefs grains the store holds. Grains that were never
// persisted are not listed.
func (app *App) ListPersistedIds(ctx context.Context) ([]string, error) {
	lister, ok := app.store.(storeprov.KeyLister)
	if !ok {
		return nil, kerror.Create("ListingUnsupported", "state store cannot list keys").WithErrorCode(kerror.EC_UNIMPLEMENTED)
	}
	prefix := app.kind.Name() + "/"
	keys, err := lister.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, prefix))
	}
	return ids, nil
}

// Nodes is the number of read replicas per grain.
func (app *App) Nodes() int {
	return app.kind.Config().ReplicaCount
}

func (app *App) Stats() swmr.KindStats {
	return app.kind.Stats()
}

func (app *App) RegisterGauges(r *metric.Registry) error {
	return app.kind.RegisterGauges(r)
}

// Stop flushes pending lazy writes and stops all actors.
func (app *App) Stop(ctx context.Context) {
	app.kind.Stop(ctx)
}
