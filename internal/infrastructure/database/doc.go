// Package database provides SQLite connectivity for the SMS journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying versioned SQL migrations from an fs.FS
//   - Health checks and lifecycle
//
// The database file is created with 0600 permissions since the journal
// holds message bodies and phone numbers.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/airlink2mqtt.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are
// applied forward only. Each migration runs in its own transaction.
package database
