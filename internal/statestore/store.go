// Package statestore is the durable sqlite-backed collaborator: toggle
// persistence, moderation state, and the archive of recovered deletions.
package statestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-sentinel/internal/capture"
)

// Ban is one durable ban entry.
type Ban struct {
	JID      string
	Reason   string
	BannedAt time.Time
}

// Store wraps the sqlite database. Bounded in-memory caches never touch it;
// only operator-visible long-lived state lives here.
type Store struct {
	db  *sql.DB
	log waLog.Logger
}

// Open creates dir if needed and opens (or initializes) the state database.
// WAL mode with NORMAL sync, same as the session store.
func Open(dir string, log waLog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", filepath.Join(dir, "sentinel.db"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bans (
			jid TEXT PRIMARY KEY,
			reason TEXT,
			banned_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS warnings (
			jid TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deleted_archive (
			id TEXT PRIMARY KEY,
			subject TEXT,
			display_name TEXT,
			origin TEXT,
			kind TEXT,
			body TEXT,
			source TEXT,
			captured_at TIMESTAMP,
			deleted_at TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartCheckpointDaemon periodically flushes the WAL so data survives abrupt
// container stops. Runs until stop is closed.
func (s *Store) StartCheckpointDaemon(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
					s.log.Warnf("Periodic WAL checkpoint failed: %v", err)
				}
			case <-stop:
				s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
				return
			}
		}
	}()
}

// GetSetting implements settings.Persister.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutSetting implements settings.Persister.
func (s *Store) PutSetting(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	return err
}

// AddBan records a ban; re-banning overwrites the reason and timestamp.
func (s *Store) AddBan(jid, reason string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO bans (jid, reason, banned_at) VALUES (?, ?, ?)",
		jid, reason, time.Now(),
	)
	return err
}

// RemoveBan lifts a ban, reporting whether one existed.
func (s *Store) RemoveBan(jid string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM bans WHERE jid = ?", jid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsBanned checks for an active ban.
func (s *Store) IsBanned(jid string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM bans WHERE jid = ?", jid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListBans returns up to limit bans, most recent first.
func (s *Store) ListBans(limit int) ([]Ban, error) {
	rows, err := s.db.Query("SELECT jid, reason, banned_at FROM bans ORDER BY banned_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []Ban
	for rows.Next() {
		var b Ban
		var reason sql.NullString
		if err := rows.Scan(&b.JID, &reason, &b.BannedAt); err != nil {
			return nil, err
		}
		b.Reason = reason.String
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// IncrementWarning bumps a subject's warning counter and returns the new
// count.
func (s *Store) IncrementWarning(jid string) (int, error) {
	_, err := s.db.Exec(`
		INSERT INTO warnings (jid, count, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(jid) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`,
		jid, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return s.GetWarnings(jid)
}

// GetWarnings returns a subject's warning count, zero if never warned.
func (s *Store) GetWarnings(jid string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT count FROM warnings WHERE jid = ?", jid).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ArchiveDeleted implements capture.Archiver: a durable mirror of the capped
// in-memory deleted log.
func (s *Store) ArchiveDeleted(rec *capture.DeletedRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO deleted_archive
		(id, subject, display_name, origin, kind, body, source, captured_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SubjectID, rec.DisplayName, rec.Origin.String(), rec.Kind.String(),
		rec.Text, rec.Source, rec.CapturedAt, rec.DeletedAt,
	)
	return err
}

// CountArchived reports how many deletions have ever been archived.
func (s *Store) CountArchived() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM deleted_archive").Scan(&count)
	return count, err
}
