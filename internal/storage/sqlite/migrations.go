package sqlite

import "database/sql"

// schema emulates a remote document store: documents with properties, shares
// and named tabs of positional rows. Row position is the rank of seq within
// its tab, so deleting a row shifts every later row up by one.
// IMPORTANT: files must be created BEFORE dependent tables due to foreign key constraints.
const schema = `
CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    owner TEXT NOT NULL,
    access TEXT NOT NULL DEFAULT 'restricted',
    content BLOB,
    created_at INTEGER NOT NULL,
    modified_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS file_properties (
    file_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (file_id, key),
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS file_shares (
    file_id TEXT NOT NULL,
    principal TEXT NOT NULL,
    role TEXT NOT NULL,
    PRIMARY KEY (file_id, principal),
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tabs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id TEXT NOT NULL,
    name TEXT NOT NULL,
    ord INTEGER NOT NULL,
    UNIQUE (file_id, name),
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tab_rows (
    tab_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    cells TEXT NOT NULL,
    PRIMARY KEY (tab_id, seq),
    FOREIGN KEY (tab_id) REFERENCES tabs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner);
CREATE INDEX IF NOT EXISTS idx_file_shares_principal ON file_shares(principal);
CREATE INDEX IF NOT EXISTS idx_tabs_file_id ON tabs(file_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
