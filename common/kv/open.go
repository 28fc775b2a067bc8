package kv

import (
	"database/sql"
	"fmt"

	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/redis"
	"github.com/rs/zerolog/log"
)

// Open builds the local and sync stores selected by cfg.Storage. redisClient
// may be nil when neither scope uses the redis backend.
func Open(cfg config.Config, redisClient *redis.RedisClient) (*Storage, error) {
	s := &Storage{}
	var sqliteDB *sql.DB

	build := func(backend string, scope Scope) (Store, error) {
		switch backend {
		case config.BackendMemory:
			return NewMemory(), nil
		case config.BackendRedis:
			if redisClient == nil {
				return nil, fmt.Errorf("%s scope: redis backend selected without a redis client", scope)
			}
			return NewRedisStore(redisClient, cfg.Storage.KeyPrefix, scope), nil
		case config.BackendSQLite:
			if sqliteDB == nil {
				db, err := OpenSQLite(cfg.Storage.SQLitePath)
				if err != nil {
					return nil, err
				}
				sqliteDB = db
				s.closers = append(s.closers, db.Close)
			}
			return NewSQLiteStore(sqliteDB, scope), nil
		default:
			return nil, fmt.Errorf("%w %q for %s scope", ErrUnknownBackend, backend, scope)
		}
	}

	local, err := build(cfg.Storage.LocalBackend, ScopeLocal)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	sync, err := build(cfg.Storage.SyncBackend, ScopeSync)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Local = local
	s.Sync = sync

	log.Info().
		Str("local", cfg.Storage.LocalBackend).
		Str("sync", cfg.Storage.SyncBackend).
		Msg("Key-value storage opened")

	return s, nil
}
