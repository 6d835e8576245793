package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/models"
	_ "modernc.org/sqlite"
)

const (
	exercisePrefix = "exercise/"
	settingsKey    = "settings/timer"
	onboardingKey  = "flags/onboarding_seen"
)

// Store is the local key-value backend: one JSON record per exercise keyed by
// name, one record for timer settings and one onboarding flag, per owner.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the SQLite database at dir/tulog.db.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}

	dsn := filepath.Join(dir, "tulog.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		owner      INTEGER NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, key)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		login        TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		last_seen    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating users table: %w", err)
	}

	// Single-user runs own id 1; tailnet users are numbered after it.
	_, err = db.Exec(`INSERT OR IGNORE INTO users (id, login, display_name) VALUES (1, 'local', 'Local Dev User')`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding local user: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListAll returns every exercise for owner ordered by name. A record that
// cannot be parsed is logged, replaced by an empty history and still listed.
func (s *Store) ListAll(ctx context.Context, owner int) ([]models.Exercise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE owner = ? AND key LIKE ? ORDER BY key`,
		owner, exercisePrefix+"%")
	if err != nil {
		return nil, trackerr.NewStorageUnavailable("sqlite", err)
	}

	type rawRecord struct{ key, value string }
	var raws []rawRecord
	for rows.Next() {
		var r rawRecord
		if err := rows.Scan(&r.key, &r.value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning exercise record: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, trackerr.NewStorageUnavailable("sqlite", err)
	}
	rows.Close()

	result := make([]models.Exercise, 0, len(raws))
	for _, r := range raws {
		name := strings.TrimPrefix(r.key, exercisePrefix)
		ex, err := decodeExercise(r.key, name, r.value)
		if err != nil {
			ex = s.recoverCorrupt(ctx, owner, name, err)
		}
		result = append(result, ex)
	}
	return result, nil
}

// Get returns one exercise. found is false when no record exists.
func (s *Store) Get(ctx context.Context, owner int, name string) (ex models.Exercise, found bool, err error) {
	key := exercisePrefix + name
	var value string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE owner = ? AND key = ?`, owner, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Exercise{}, false, nil
	}
	if err != nil {
		return models.Exercise{}, false, trackerr.NewStorageUnavailable("sqlite", err)
	}

	ex, err = decodeExercise(key, name, value)
	if err != nil {
		return s.recoverCorrupt(ctx, owner, name, err), true, nil
	}
	return ex, true, nil
}

// Upsert writes the full exercise record, replacing any previous one.
func (s *Store) Upsert(ctx context.Context, owner int, ex models.Exercise) error {
	if ex.Sessions == nil {
		ex.Sessions = []models.Session{}
	}
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("encoding exercise %q: %w", ex.Name, err)
	}
	return s.put(ctx, owner, exercisePrefix+ex.Name, string(data))
}

// Remove deletes an exercise and, with it, its sessions. Missing names are a no-op.
func (s *Store) Remove(ctx context.Context, owner int, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE owner = ? AND key = ?`, owner, exercisePrefix+name)
	if err != nil {
		return trackerr.NewStorageUnavailable("sqlite", err)
	}
	return nil
}

// LoadSettings returns the persisted timer settings, or defaults when none
// are stored or the stored record is unusable.
func (s *Store) LoadSettings(ctx context.Context, owner int) (models.TimerSettings, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE owner = ? AND key = ?`, owner, settingsKey).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.DefaultTimerSettings(), nil
	}
	if err != nil {
		return models.DefaultTimerSettings(), trackerr.NewStorageUnavailable("sqlite", err)
	}

	var settings models.TimerSettings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		s.log.Warn("discarding unreadable settings", "owner", owner, "error", trackerr.NewStorageCorrupt(settingsKey, err))
		return models.DefaultTimerSettings(), nil
	}
	if err := settings.Validate(); err != nil {
		s.log.Warn("discarding invalid settings", "owner", owner, "error", err)
		return models.DefaultTimerSettings(), nil
	}
	return settings, nil
}

// SaveSettings persists timer settings.
func (s *Store) SaveSettings(ctx context.Context, owner int, settings models.TimerSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return s.put(ctx, owner, settingsKey, string(data))
}

// OnboardingSeen reports whether the owner has dismissed onboarding.
func (s *Store) OnboardingSeen(ctx context.Context, owner int) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE owner = ? AND key = ?`, owner, onboardingKey).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, trackerr.NewStorageUnavailable("sqlite", err)
	}
	return value == "true", nil
}

// MarkOnboardingSeen records that onboarding was shown.
func (s *Store) MarkOnboardingSeen(ctx context.Context, owner int) error {
	return s.put(ctx, owner, onboardingKey, "true")
}

// GetOrCreateUser finds or creates a user by login and returns its ID.
func (s *Store) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (login, display_name)
		VALUES (?, ?)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = CURRENT_TIMESTAMP,
			    display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name)
		RETURNING id
	`, login, displayName).Scan(&id)
	if err != nil {
		return 0, trackerr.NewStorageUnavailable("sqlite", err)
	}
	return id, nil
}

func (s *Store) put(ctx context.Context, owner int, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (owner, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (owner, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		owner, key, value)
	if err != nil {
		return trackerr.NewStorageUnavailable("sqlite", err)
	}
	return nil
}

// recoverCorrupt replaces an unreadable exercise record with an empty one.
func (s *Store) recoverCorrupt(ctx context.Context, owner int, name string, cause error) models.Exercise {
	s.log.Warn("discarding unreadable exercise record", "owner", owner, "exercise", name, "error", cause)
	ex := models.Exercise{Name: name, Sessions: []models.Session{}}
	if err := s.Upsert(ctx, owner, ex); err != nil {
		s.log.Error("rewriting corrupt exercise record", "exercise", name, "error", err)
	}
	return ex
}

func decodeExercise(key, name, value string) (models.Exercise, error) {
	var ex models.Exercise
	if err := json.Unmarshal([]byte(value), &ex); err != nil {
		return models.Exercise{}, trackerr.NewStorageCorrupt(key, err)
	}
	// The key is authoritative for the name.
	ex.Name = name
	if ex.Sessions == nil {
		ex.Sessions = []models.Session{}
	}
	return ex, nil
}
