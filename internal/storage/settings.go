package storage

import (
	"context"
	stderrors "errors"

	"github.com/claude/tulog/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoadSettings returns the user's timer settings, or defaults when none are
// stored or the stored threshold is no longer allowed.
func (db *DB) LoadSettings(ctx context.Context, userID int) (models.TimerSettings, error) {
	var s models.TimerSettings
	err := db.Pool.QueryRow(ctx,
		`SELECT sound_enabled, countdown_threshold_seconds FROM user_settings WHERE user_id = $1`,
		userID).Scan(&s.SoundEnabled, &s.CountdownThresholdSeconds)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return models.DefaultTimerSettings(), nil
	}
	if err != nil {
		return models.DefaultTimerSettings(), classify("querying settings", err)
	}
	if s.Validate() != nil {
		return models.DefaultTimerSettings(), nil
	}
	return s, nil
}

// SaveSettings persists timer settings.
func (db *DB) SaveSettings(ctx context.Context, userID int, s models.TimerSettings) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, sound_enabled, countdown_threshold_seconds)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET sound_enabled = EXCLUDED.sound_enabled,
		     countdown_threshold_seconds = EXCLUDED.countdown_threshold_seconds`,
		userID, s.SoundEnabled, s.CountdownThresholdSeconds)
	return classify("saving settings", err)
}

// OnboardingSeen reports whether the user has dismissed onboarding.
func (db *DB) OnboardingSeen(ctx context.Context, userID int) (bool, error) {
	var seen bool
	err := db.Pool.QueryRow(ctx,
		`SELECT onboarding_seen FROM user_settings WHERE user_id = $1`, userID).Scan(&seen)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("querying onboarding flag", err)
	}
	return seen, nil
}

// MarkOnboardingSeen records that onboarding was shown.
func (db *DB) MarkOnboardingSeen(ctx context.Context, userID int) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, onboarding_seen) VALUES ($1, TRUE)
		 ON CONFLICT (user_id) DO UPDATE SET onboarding_seen = TRUE`,
		userID)
	return classify("saving onboarding flag", err)
}
