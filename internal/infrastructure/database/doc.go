// Package database provides SQLite connectivity for MQTT Desk.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations from an fs.FS (embedded in production)
//   - Connection lifecycle and health checks
//
// The store holds connection profiles and the connection history.
// Received messages are never persisted.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or have DEFAULT
// values, and each .up.sql file should ship with a matching .down.sql.
package database
