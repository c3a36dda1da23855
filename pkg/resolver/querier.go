package resolver

import (
	"context"

	"github.com/ritzau/sbom-resolver/pkg/cache"
	"github.com/ritzau/sbom-resolver/pkg/sparql"
)

// Querier runs one parametrized query. *sparql.Client implements it.
type Querier interface {
	Execute(ctx context.Context, id sparql.TemplateID, params sparql.Params) ([]sparql.Binding, error)
}

// CachedQuerier memoizes query results in a cache owned by the caller
type CachedQuerier struct {
	next  Querier
	cache *cache.Cache[[]sparql.Binding]
}

// NewCachedQuerier wraps q so identical queries share results and in-flight calls
func NewCachedQuerier(q Querier, c *cache.Cache[[]sparql.Binding]) *CachedQuerier {
	return &CachedQuerier{next: q, cache: c}
}

func (c *CachedQuerier) Execute(ctx context.Context, id sparql.TemplateID, params sparql.Params) ([]sparql.Binding, error) {
	var versions []string
	if v, ok := params[sparql.ParamVersion]; ok {
		versions = append(versions, v)
	}
	key := cache.Key(string(id), params[sparql.ParamName], versions...)

	return c.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]sparql.Binding, error) {
		return c.next.Execute(ctx, id, params)
	})
}
