// Package database provides the SQLite store behind register history.
//
// The connection runs in WAL mode with a single writer. Schema changes are
// embedded migration files applied by Migrate at startup; the migrations
// package registers them through MigrationsFS.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
