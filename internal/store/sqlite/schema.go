package sqlite

import "database/sql"

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT,
            event_time INTEGER,
            location TEXT,
            sender_name TEXT,
            keywords TEXT NOT NULL DEFAULT '',
            confidence REAL NOT NULL DEFAULT 0,
            context_pattern TEXT,
            dismiss_count INTEGER NOT NULL DEFAULT 0,
            reminder_time INTEGER,
            status TEXT NOT NULL DEFAULT 'discovered',
            message_id TEXT,
            creation_time TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_status_idx ON events(status);`,
		`CREATE INDEX IF NOT EXISTS events_event_time_idx ON events(event_time);`,
		`CREATE TABLE IF NOT EXISTS triggers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
            trigger_type TEXT NOT NULL,
            trigger_value TEXT NOT NULL,
            fired INTEGER NOT NULL DEFAULT 0,
            fire_count INTEGER NOT NULL DEFAULT 0,
            creation_time TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS triggers_fired_type_idx ON triggers(fired, trigger_type);`,
		`CREATE TABLE IF NOT EXISTS context_dismissals (
            event_id INTEGER PRIMARY KEY REFERENCES events(id) ON DELETE CASCADE,
            pattern TEXT NOT NULL,
            dismissed_until INTEGER NOT NULL,
            creation_time TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS context_dismissals_until_idx ON context_dismissals(dismissed_until);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
