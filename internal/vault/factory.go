package vault

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kvconsole/internal/config"
	"kvconsole/internal/constants"
	"kvconsole/internal/crypto"
)

// NewStore builds the SecretStore selected by cfg.Driver. An unreachable
// Redis medium falls back to the in-memory store.
func NewStore(cfg config.VaultConfig, log zerolog.Logger) (SecretStore, error) {
	switch cfg.Driver {
	case "", constants.VaultDriverMemory:
		log.Info().Msg("💾 Using in-memory credential vault")
		return NewMemoryStore(), nil

	case constants.VaultDriverSealed:
		sealer, err := crypto.NewSealerFromHex(cfg.Key)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Using sealed in-memory credential vault")
		return NewSealedStore(sealer, newBlobMap(), log), nil

	case constants.VaultDriverRedis:
		sealer, err := crypto.NewSealerFromHex(cfg.Key)
		if err != nil {
			return nil, err
		}
		medium, err := NewRedisMedium(&redis.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.Prefix, cfg.TTL)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("⚠️  Redis vault connection failed, falling back to in-memory credential vault")
			return NewMemoryStore(), nil
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("💾 Using sealed Redis credential vault")
		return NewSealedStore(sealer, medium, log), nil

	default:
		return nil, fmt.Errorf("unsupported vault driver: %s", cfg.Driver)
	}
}
