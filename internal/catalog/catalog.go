package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKey = "catalog:items"

	// DefaultTTL is the base lifetime of the cached catalog
	DefaultTTL = 15 * time.Minute

	// maxJitterMinutes spreads expiry so replicas do not refetch together
	maxJitterMinutes = 5

	// fetchTimeout bounds a shared fetch, which outlives the request that started it
	fetchTimeout = 30 * time.Second
)

// ItemLister fetches the full catalog from upstream.
type ItemLister interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
}

type Service struct {
	upstream ItemLister
	cache    kv.Store
	baseTTL  time.Duration
	log      *logrus.Entry
	sfg      singleflight.Group // Prevents cache stampede

	jitter func() time.Duration
}

func NewService(upstream ItemLister, cache kv.Store, baseTTL time.Duration, log *logrus.Entry) *Service {
	if baseTTL <= 0 {
		baseTTL = DefaultTTL
	}
	return &Service{
		upstream: upstream,
		cache:    cache,
		baseTTL:  baseTTL,
		log:      log,
		jitter: func() time.Duration {
			return time.Duration(rand.Intn(maxJitterMinutes)) * time.Minute
		},
	}
}

// List returns the catalog, from cache when possible.
func (s *Service) List(ctx context.Context) ([]domain.Item, error) {
	v, err, _ := s.sfg.Do(cacheKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		items, err := s.cached(fetchCtx)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, kv.ErrKeyNotFound) {
			s.log.WithContext(ctx).WithError(err).Warn("catalog cache read failed")
		}

		items, err = s.upstream.ListItems(fetchCtx)
		if err != nil {
			return nil, err
		}

		if errSet := s.store(fetchCtx, items); errSet != nil {
			s.log.WithContext(ctx).WithError(errSet).Warn("catalog cache write failed")
		}
		return items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	items := v.([]domain.Item)
	out := make([]domain.Item, len(items))
	copy(out, items)
	return out, nil
}

// Get looks an item up by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Item, error) {
	items, err := s.List(ctx)
	if err != nil {
		return domain.Item{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
}

// Warm fetches the catalog from upstream and refreshes the cache.
func (s *Service) Warm(ctx context.Context) error {
	items, err := s.upstream.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("warm catalog: %w", err)
	}
	if err := s.store(ctx, items); err != nil {
		return fmt.Errorf("warm catalog: %w", err)
	}
	s.log.WithContext(ctx).WithField("items", len(items)).Info("catalog warmed")
	return nil
}

func (s *Service) cached(ctx context.Context) ([]domain.Item, error) {
	data, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal catalog failed: %w", err)
	}
	return items, nil
}

func (s *Service) store(ctx context.Context, items []domain.Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal catalog failed: %w", err)
	}
	return s.cache.Set(ctx, cacheKey, data, s.baseTTL+s.jitter())
}
