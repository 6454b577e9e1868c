package store

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a Store from configuration. A nil logger is replaced with a
// no-op logger.
func New(cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "store"))

	switch cfg.Type {
	case StoreTypeMemory, "":
		log.Debug("using in-memory store")
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		log.Debug("using redis store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisStore(cfg.Redis)
	case StoreTypeDatabase:
		log.Debug("using database store", zap.String("driver", cfg.Database.Driver))
		return NewDBStore(cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
