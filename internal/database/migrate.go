package database

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrSchemaTooNew means the file was written by a newer feedwatch.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every pending step in order, tracked by PRAGMA user_version.
func migrate(conn *sql.DB, log *zap.Logger) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	latest := latestVersion()
	switch {
	case current > latest:
		return fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, current, latest)
	case current == latest:
		return nil
	}

	log.Info("migrating schema", zap.Int("from", current), zap.Int("to", latest))
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(conn, m); err != nil {
			return err
		}
		log.Debug("migration applied", zap.Int("version", m.Version), zap.String("description", m.Description))
	}
	return nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	// modernc/sqlite ignores user_version inside a transaction; the DDL is
	// idempotent so a crash before this line only repeats the step.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
