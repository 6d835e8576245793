package tracker

import (
	"context"
	"log/slog"
	"sync"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/models"
	"github.com/claude/tulog/internal/retry"
)

// Settings holds the live timer settings for one owner. Every mutation is
// applied in memory first and then persisted.
type Settings struct {
	mu      sync.Mutex
	current models.TimerSettings

	owner  int
	store  SettingsStore
	policy retry.Policy
	log    *slog.Logger
}

func newSettings(owner int, store SettingsStore, policy retry.Policy, log *slog.Logger) *Settings {
	return &Settings{
		current: models.DefaultTimerSettings(),
		owner:   owner,
		store:   store,
		policy:  policy,
		log:     log,
	}
}

// TimerSettings returns the current settings. The timer engine calls this on
// every tick.
func (s *Settings) TimerSettings() models.TimerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Load replaces the in-memory settings with the persisted ones. On failure
// the defaults stay in effect and the error is returned.
func (s *Settings) Load(ctx context.Context) error {
	var loaded models.TimerSettings
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		loaded, err = s.store.LoadSettings(ctx, s.owner)
		return err
	})
	if err != nil {
		return err
	}
	if loaded.Validate() != nil {
		loaded = models.DefaultTimerSettings()
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Update validates and applies next, then persists it.
func (s *Settings) Update(ctx context.Context, next models.TimerSettings) error {
	if err := next.Validate(); err != nil {
		return trackerr.NewInvalidRequest(err.Error())
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return s.persist(ctx, next)
}

// SetSoundEnabled toggles countdown cues.
func (s *Settings) SetSoundEnabled(ctx context.Context, enabled bool) error {
	next := s.TimerSettings()
	next.SoundEnabled = enabled
	return s.Update(ctx, next)
}

// SetThreshold changes the countdown threshold. Only AllowedThresholds are accepted.
func (s *Settings) SetThreshold(ctx context.Context, seconds int) error {
	next := s.TimerSettings()
	next.CountdownThresholdSeconds = seconds
	return s.Update(ctx, next)
}

// OnboardingSeen reports whether the owner has dismissed onboarding.
func (s *Settings) OnboardingSeen(ctx context.Context) (bool, error) {
	return s.store.OnboardingSeen(ctx, s.owner)
}

// MarkOnboardingSeen records that onboarding was shown.
func (s *Settings) MarkOnboardingSeen(ctx context.Context) error {
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.store.MarkOnboardingSeen(ctx, s.owner)
	})
}

func (s *Settings) persist(ctx context.Context, next models.TimerSettings) error {
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.store.SaveSettings(ctx, s.owner, next)
	})
	if err != nil {
		s.log.Warn("settings not persisted", "owner", s.owner, "error", err)
	}
	return err
}
