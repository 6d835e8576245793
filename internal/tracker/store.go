package tracker

import (
	"context"

	"github.com/claude/tulog/internal/localstore"
	"github.com/claude/tulog/internal/models"
	"github.com/claude/tulog/internal/storage"
)

// ExerciseStore is durable CRUD for exercises and their session history,
// scoped by owner. Upsert is idempotent by name and replaces the session
// list; Remove of a missing name is a no-op.
type ExerciseStore interface {
	ListAll(ctx context.Context, owner int) ([]models.Exercise, error)
	Get(ctx context.Context, owner int, name string) (models.Exercise, bool, error)
	Upsert(ctx context.Context, owner int, ex models.Exercise) error
	Remove(ctx context.Context, owner int, name string) error
}

// SettingsStore persists per-owner timer settings and the onboarding flag.
type SettingsStore interface {
	LoadSettings(ctx context.Context, owner int) (models.TimerSettings, error)
	SaveSettings(ctx context.Context, owner int, s models.TimerSettings) error
	OnboardingSeen(ctx context.Context, owner int) (bool, error)
	MarkOnboardingSeen(ctx context.Context, owner int) error
}

// Store is everything a Table persists.
type Store interface {
	ExerciseStore
	SettingsStore
}

var (
	_ Store = (*localstore.Store)(nil)
	_ Store = (*storage.DB)(nil)
)
