package logging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const settingsPrefix = "logging."

// LoadSettings reads logging settings persisted in the settings table.
// Unset fields are zero; ok is false when nothing was stored.
func LoadSettings(ctx context.Context, db *sql.DB) (cfg Config, ok bool, err error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key LIKE 'logging.%'`)
	if err != nil {
		return Config{}, false, fmt.Errorf("reading logging settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Config{}, false, fmt.Errorf("scanning logging setting: %w", err)
		}
		ok = true
		switch k[len(settingsPrefix):] {
		case "level":
			if ValidLevel(v) {
				cfg.Level = v
			}
		case "format":
			if ValidFormat(v) {
				cfg.Format = v
			}
		case "file_path":
			cfg.FilePath = v
		case "file_max_size_mb":
			cfg.FileMaxSizeMB, _ = strconv.Atoi(v)
		case "file_max_files":
			cfg.FileMaxFiles, _ = strconv.Atoi(v)
		case "file_max_age_days":
			cfg.FileMaxAgeDays, _ = strconv.Atoi(v)
		}
	}
	return cfg, ok, rows.Err()
}

// SaveSettings persists cfg to the settings table in one transaction.
func SaveSettings(ctx context.Context, db *sql.DB, cfg Config) (err error) {
	now := time.Now().UTC().Format(time.RFC3339)
	values := map[string]string{
		"level":             cfg.Level,
		"format":            cfg.Format,
		"file_path":         cfg.FilePath,
		"file_max_size_mb":  strconv.Itoa(cfg.FileMaxSizeMB),
		"file_max_files":    strconv.Itoa(cfg.FileMaxFiles),
		"file_max_age_days": strconv.Itoa(cfg.FileMaxAgeDays),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for k, v := range values {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			settingsPrefix+k, v, now)
		if err != nil {
			return fmt.Errorf("persisting %s: %w", settingsPrefix+k, err)
		}
	}
	return tx.Commit()
}
