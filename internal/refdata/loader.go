package refdata

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/promotoria/comisiones/internal/platform/cache"
)

// Source provides the raw directory tables.
type Source interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	ListPolicies(ctx context.Context) (map[string]int, error)
}

type snapshotPayload struct {
	Agents   []Agent        `json:"agents"`
	Policies map[string]int `json:"policies"`
}

// Loader builds snapshots, serving them from the versioned cache when warm.
// Concurrent loads share a single backend round trip.
type Loader struct {
	source Source
	cache  *cache.Versioned
	logger *slog.Logger
	group  singleflight.Group
}

// NewLoader constructs a Loader. cache may be nil.
func NewLoader(source Source, c *cache.Versioned, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, cache: c, logger: logger}
}

// Load returns the current reference data snapshot.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	resultChan := l.group.DoChan("snapshot", func() (any, error) {
		return l.load(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Invalidate drops cached snapshots so the next Load reads the tables again.
func (l *Loader) Invalidate(ctx context.Context) error {
	return l.cache.Bump(ctx)
}

func (l *Loader) load(ctx context.Context) (*Snapshot, error) {
	key, err := l.cache.BuildKey(ctx, "refdata", "snapshot")
	if err != nil {
		return nil, fmt.Errorf("refdata: cache key: %w", err)
	}
	var payload snapshotPayload
	hit, err := l.cache.FetchJSON(ctx, key, &payload, l.fetch)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("reference data loaded",
		slog.Bool("cache_hit", hit),
		slog.Int("agents", len(payload.Agents)),
		slog.Int("policies", len(payload.Policies)),
	)
	return NewSnapshot(payload.Agents, payload.Policies), nil
}

func (l *Loader) fetch(ctx context.Context) (any, error) {
	var payload snapshotPayload
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		agents, err := l.source.ListAgents(ctx)
		if err != nil {
			return err
		}
		payload.Agents = agents
		return nil
	})
	g.Go(func() error {
		policies, err := l.source.ListPolicies(ctx)
		if err != nil {
			return err
		}
		payload.Policies = policies
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refdata: load: %w", err)
	}
	return payload, nil
}
