package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/clients"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// entityCountsKey — единственный ключ кэша: список счётчиков целиком.
const entityCountsKey = "catalog:entity_counts"

// CatalogCache кэширует агрегаты каталога, чтобы не сканировать коллекцию
// на каждый запрос списка сущностей.
type CatalogCache struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewCatalogCache(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *CatalogCache {
	return &CatalogCache{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetEntityCounts возвращает закэшированные счётчики.
// Промах кэша — nil без ошибки.
func (c *CatalogCache) GetEntityCounts(ctx context.Context) ([]domain.EntityCount, error) {
	data, err := c.client.Client.Get(ctx, entityCountsKey).Bytes()
	if err != nil {
		if errors.Is(err, r.Nil) {
			return nil, nil
		}

		c.logger.Warnf("Redis GET failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var counts []domain.EntityCount
	if err := json.Unmarshal(data, &counts); err != nil {
		c.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))

		// Битое значение вычищается, дальше обычный промах
		if delErr := c.client.Client.Del(context.Background(), entityCountsKey).Err(); delErr != nil {
			c.logger.Warnf("Redis DEL failed: %v", e.Wrap(whereami.WhereAmI(), delErr))
		}

		return nil, nil
	}

	return counts, nil
}

// SetEntityCounts кэширует счётчики с настроенным TTL.
func (c *CatalogCache) SetEntityCounts(ctx context.Context, counts []domain.EntityCount) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := c.client.Client.Set(ctx, entityCountsKey, data, c.cfg.CountsTTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// InvalidateEntityCounts сбрасывает кэш после мутации коллекции.
func (c *CatalogCache) InvalidateEntityCounts(ctx context.Context) error {
	if err := c.client.Client.Del(ctx, entityCountsKey).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
