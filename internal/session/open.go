package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
)

type Config struct {
	Type     string
	URI      string
	Database string
}

// ConfigFromEnv picks the backend: explicit SESSION_STORE_TYPE first, then
// mongo when MONGODB_URI is set, then postgres when the device datastore is
// postgres, otherwise memory.
func ConfigFromEnv() Config {
	cfg := Config{
		Type:     strings.ToLower(env.GetEnvStringOrDefault("SESSION_STORE_TYPE", "")),
		URI:      env.GetEnvStringOrDefault("SESSION_STORE_URI", ""),
		Database: env.GetEnvStringOrDefault("MONGODB_DATABASE", "whatsapp"),
	}
	mongoURI := env.GetEnvStringOrDefault("MONGODB_URI", "")
	datastoreType := strings.ToLower(env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", ""))
	datastoreURI := env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_URI", "")

	if cfg.Type == "" {
		switch {
		case mongoURI != "":
			cfg.Type = "mongo"
		case datastoreType == "postgres" || datastoreType == "pgx":
			cfg.Type = "postgres"
		default:
			cfg.Type = "memory"
		}
	}
	if cfg.URI == "" {
		switch cfg.Type {
		case "mongo", "mongodb":
			cfg.URI = mongoURI
		case "postgres", "pgx":
			cfg.URI = datastoreURI
		}
	}
	return cfg
}

func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "mongo", "mongodb":
		if cfg.URI == "" {
			return nil, fmt.Errorf("session store %q requires a uri", cfg.Type)
		}
		return OpenMongo(ctx, cfg.URI, cfg.Database)
	case "postgres", "pgx":
		if cfg.URI == "" {
			return nil, fmt.Errorf("session store %q requires a uri", cfg.Type)
		}
		return OpenPostgres(ctx, cfg.URI)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown session store type %q", cfg.Type)
	}
}
