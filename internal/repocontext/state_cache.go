package repocontext

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"repostate/internal/config"
	"repostate/internal/giterr"
)

type cacheKind string

const (
	kindStatus         cacheKind = "status"
	kindHead           cacheKind = "head"
	kindBranches       cacheKind = "branches"
	kindRemoteBranches cacheKind = "remote_branches"
	kindTags           cacheKind = "tags"
	kindRemotes        cacheKind = "remotes"
	kindStashes        cacheKind = "stashes"
)

var allKinds = []cacheKind{
	kindStatus,
	kindHead,
	kindBranches,
	kindRemoteBranches,
	kindTags,
	kindRemotes,
	kindStashes,
}

// stateCache guarda um valor por tipo, cada um com TTL próprio. A geração
// de um tipo avança a cada invalidação; um fetch iniciado antes dela nunca
// grava o resultado.
type stateCache struct {
	mu    sync.Mutex
	items *gocache.Cache
	ttl   map[cacheKind]time.Duration
	gens  map[cacheKind]uint64
}

func newStateCache(settings config.CacheSettings) *stateCache {
	return &stateCache{
		// Sem janitor: itens expirados já contam como ausentes no Get.
		items: gocache.New(gocache.NoExpiration, 0),
		ttl: map[cacheKind]time.Duration{
			kindStatus:         settings.StatusTTL,
			kindHead:           settings.HeadTTL,
			kindBranches:       settings.BranchesTTL,
			kindRemoteBranches: settings.RemoteBranchesTTL,
			kindTags:           settings.TagsTTL,
			kindRemotes:        settings.RemotesTTL,
			kindStashes:        settings.StashesTTL,
		},
		gens: make(map[cacheKind]uint64, len(allKinds)),
	}
}

func (c *stateCache) get(kind cacheKind) (interface{}, bool) {
	return c.items.Get(string(kind))
}

func (c *stateCache) generation(kind cacheKind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[kind]
}

// store grava value somente se kind não foi invalidado desde gen.
func (c *stateCache) store(kind cacheKind, gen uint64, value interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[kind] != gen {
		return false
	}
	ttl := c.ttl[kind]
	if ttl <= 0 {
		return false
	}
	c.items.Set(string(kind), value, ttl)
	return true
}

func (c *stateCache) invalidate(kinds ...cacheKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, kind := range kinds {
		c.gens[kind]++
		c.items.Delete(string(kind))
	}
}

// signature identifica o conjunto atual de gerações; serve de chave para
// coalescer snapshots que enxergam o mesmo estado.
func (c *stateCache) signature() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]string, 0, len(allKinds))
	for _, kind := range allKinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, c.gens[kind]))
	}
	return strings.Join(parts, ",")
}

// flight executa fetch uma única vez por chave. O fetch não herda o
// cancelamento do primeiro chamador; cada chamador desiste sozinho pelo
// próprio ctx.
func flight[T any](ctx context.Context, group *singleflight.Group, key string, fetch func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := group.DoChan(key, func() (interface{}, error) {
		value, err := fetch(detached)
		return value, err
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	case <-ctx.Done():
		return zero, giterr.FromContext(ctx.Err(), "Leitura do repositório cancelada.")
	}
}

// cached devolve o valor em cache ou busca, coalescendo buscas concorrentes
// da mesma geração.
func cached[T any](ctx context.Context, c *Context, kind cacheKind, fetch func(context.Context) (T, error)) (T, error) {
	if value, ok := c.state.get(kind); ok {
		if typed, ok := value.(T); ok {
			return typed, nil
		}
	}

	gen := c.state.generation(kind)
	key := fmt.Sprintf("%s:%d", kind, gen)
	return flight(ctx, &c.flights, key, func(ctx context.Context) (T, error) {
		value, err := fetch(ctx)
		if err != nil {
			return value, err
		}
		c.state.store(kind, gen, value)
		return value, nil
	})
}
