package whatsapp

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
)

const (
	defaultDatastoreType = "sqlite"
	defaultDatastoreURI  = "file:whatsapp.db"
)

// OpenDatastore opens the whatsmeow device store configured by
// WHATSAPP_DATASTORE_TYPE and WHATSAPP_DATASTORE_URI and upgrades its schema.
func OpenDatastore(ctx context.Context) (*sqlstore.Container, error) {
	driver := normalizeDatastoreDriver(env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", defaultDatastoreType))
	dsn := normalizeDatastoreDSN(driver, env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_URI", defaultDatastoreURI))

	log.Print(nil).Info("Initializing WhatsApp datastore with driver=" + driver)

	container, err := sqlstore.New(ctx, driver, dsn, log.WhatsMeow("Database"))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp datastore: %w", err)
	}
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade operation failed: %w", err)
	}

	log.Print(nil).Info("database is ok")
	return container, nil
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	case "sqlite", "sqlite3", "":
		return "sqlite3"
	default:
		return strings.ToLower(driver)
	}
}

func normalizeDatastoreDSN(driver string, dsn string) string {
	switch driver {
	case "pgx":
		dsn = appendDSNParam(dsn, "prefer_simple_protocol", "true")
		dsn = appendDSNParam(dsn, "statement_cache_capacity", "0")
		dsn = appendDSNParam(dsn, "default_query_exec_mode", "simple_protocol")
	case "sqlite3":
		// whatsmeow refuses to run on sqlite without foreign keys
		dsn = appendDSNParam(dsn, "_foreign_keys", "on")
	}
	return dsn
}

func appendDSNParam(current string, key string, value string) string {
	if strings.Contains(current, key+"=") {
		return current
	}
	separator := "?"
	if strings.Contains(current, "?") {
		if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
			separator = ""
		} else {
			separator = "&"
		}
	}
	return current + separator + key + "=" + value
}
