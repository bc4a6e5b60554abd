package queue

import (
	"context"
	"fmt"

	"ecommerce-order-service/internal/config"
	"ecommerce-order-service/internal/repository"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Open builds the backend selected by QUEUE_BACKEND. The returned close
// function releases the backend's connections.
func Open(ctx context.Context, cfg config.Queue, redisCfg config.Redis, db *gorm.DB) (Queue, func() error, error) {
	policy := PolicyFromConfig(cfg)

	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", redisCfg.Addr, err)
		}
		log.WithField("addr", redisCfg.Addr).Info("notification queue: redis backend")
		return NewRedisQueue(client, redisCfg.KeyPrefix, policy), client.Close, nil

	case "db":
		log.Info("notification queue: database backend")
		return NewDBQueue(repository.NewNotificationJobRepository(db), policy), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
