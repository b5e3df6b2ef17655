package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 2

type DB struct {
	conn *sql.DB
	path string
}

type migrationError struct {
	backupPath string
	cause      error
}

func (e *migrationError) Error() string {
	return e.cause.Error()
}

func (e *migrationError) Unwrap() error {
	return e.cause
}

func NewSQLiteDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "buddy.db")
	// Pragmas in the DSN apply to every pooled connection. WAL plus a busy
	// timeout keeps concurrent sweep writers from tripping SQLITE_BUSY.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	database := &DB{conn: conn, path: dbPath}
	if err := database.initSchema(); err != nil {
		_ = conn.Close()

		var migrateErr *migrationError
		if errors.As(err, &migrateErr) && migrateErr.backupPath != "" {
			if rollbackErr := restoreFromBackup(migrateErr.backupPath, dbPath); rollbackErr != nil {
				return nil, fmt.Errorf("failed to init schema: %w; rollback from %s also failed: %v", migrateErr.cause, migrateErr.backupPath, rollbackErr)
			}
			return nil, fmt.Errorf("failed to init schema (rolled back from %s): %w", migrateErr.backupPath, migrateErr.cause)
		}
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return database, nil
}

func (d *DB) initSchema() error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}

	version, err := readSchemaVersion(tx)
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("db schema version %d is newer than runtime version %d", version, currentSchemaVersion)
	}

	var backupPath string
	if version > 0 && version < currentSchemaVersion {
		backupPath, err = d.createMigrationBackup()
		if err != nil {
			return fmt.Errorf("create migration backup: %w", err)
		}
	}

	if err := applyMigrations(tx, version); err != nil {
		if backupPath != "" {
			return &migrationError{backupPath: backupPath, cause: err}
		}
		return err
	}

	return tx.Commit()
}

func readSchemaVersion(tx *sql.Tx) (int, error) {
	var versionText string
	err := tx.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&versionText)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	version, parseErr := strconv.Atoi(versionText)
	if parseErr != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", versionText, parseErr)
	}
	if version < 0 {
		return 0, fmt.Errorf("invalid schema version %d", version)
	}
	return version, nil
}

func applyMigrations(tx *sql.Tx, version int) error {
	for version < currentSchemaVersion {
		nextVersion, err := applyNextMigration(tx, version)
		if err != nil {
			return err
		}
		if err := writeSchemaVersion(tx, nextVersion); err != nil {
			return err
		}
		version = nextVersion
	}
	return nil
}

func applyNextMigration(tx *sql.Tx, version int) (int, error) {
	switch version {
	case 0:
		if err := migrateToEntitySchema(tx); err != nil {
			return version, fmt.Errorf("migrate schema 0 -> 1: %w", err)
		}
		return 1, nil
	case 1:
		if err := migrateToNotificationConfig(tx); err != nil {
			return version, fmt.Errorf("migrate schema 1 -> 2: %w", err)
		}
		return 2, nil
	default:
		return version, fmt.Errorf("unsupported schema migration source version %d", version)
	}
}

func migrateToEntitySchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS people (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	relationship TEXT NOT NULL,
	custom_relation TEXT,
	priority INTEGER NOT NULL,
	birthday TEXT,
	phone TEXT,
	notes TEXT,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	due_date INTEGER,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	person_id TEXT,
	relation_type TEXT,
	is_missed INTEGER NOT NULL DEFAULT 0,
	missed_at INTEGER,
	next_remind_at INTEGER,
	remind_count INTEGER NOT NULL DEFAULT 0,
	is_dismissed INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS todos (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	is_completed INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL,
	person_id TEXT,
	relation_type TEXT,
	due_date INTEGER,
	is_recurring INTEGER NOT NULL DEFAULT 0,
	recurrence TEXT,
	is_missed INTEGER NOT NULL DEFAULT 0,
	missed_at INTEGER,
	next_remind_at INTEGER,
	remind_count INTEGER NOT NULL DEFAULT 0,
	is_dismissed INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	remind_at INTEGER NOT NULL,
	is_recurring INTEGER NOT NULL DEFAULT 0,
	recurrence TEXT,
	is_done INTEGER NOT NULL DEFAULT 0,
	person_id TEXT,
	relation_type TEXT,
	priority INTEGER NOT NULL,
	is_missed INTEGER NOT NULL DEFAULT 0,
	missed_at INTEGER,
	next_remind_at INTEGER,
	remind_count INTEGER NOT NULL DEFAULT 0,
	is_dismissed INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	session_date TEXT NOT NULL,
	title TEXT,
	summary TEXT,
	is_daily INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	message TEXT NOT NULL,
	message_type TEXT NOT NULL,
	action_type TEXT,
	action_payload TEXT,
	is_processed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(is_deleted, due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_due ON todos(is_deleted, due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_remind ON reminders(is_deleted, remind_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_date ON chat_sessions(session_date)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created ON chat_messages(session_id, created_at ASC)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateToNotificationConfig(tx *sql.Tx) error {
	createConfig := `
CREATE TABLE IF NOT EXISTS notification_config (
	id TEXT PRIMARY KEY,
	daily_notif_time TEXT NOT NULL,
	daily_notif_enabled INTEGER NOT NULL,
	birthday_notif_enabled INTEGER NOT NULL,
	task_notif_enabled INTEGER NOT NULL,
	reminder_notif_enabled INTEGER NOT NULL,
	missed_notif_enabled INTEGER NOT NULL,
	high_priority_days INTEGER NOT NULL,
	medium_priority_days INTEGER NOT NULL,
	low_priority_days INTEGER NOT NULL,
	missed_high_interval INTEGER NOT NULL,
	missed_medium_interval INTEGER NOT NULL,
	missed_low_interval INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`
	if _, err := tx.Exec(createConfig); err != nil {
		return err
	}
	return nil
}

func writeSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec(`
INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(version)); err != nil {
		return err
	}
	return nil
}

func (d *DB) createMigrationBackup() (string, error) {
	if _, err := d.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return "", fmt.Errorf("checkpoint wal: %w", err)
	}

	backupPath := fmt.Sprintf("%s.migration-%d.bak", d.path, time.Now().Unix())
	if err := copyFile(d.path, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

func restoreFromBackup(backupPath, dbPath string) error {
	if err := copyFile(backupPath, dbPath); err != nil {
		return err
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer target.Close()

	if _, err := io.Copy(target, source); err != nil {
		return err
	}
	return target.Sync()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) Close() error {
	return d.conn.Close()
}
