package mcp

import (
	"context"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/tracker"
)

// DataSource abstracts the exercise table for MCP tools. RegistrySource
// (in-process) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListExercises(ctx context.Context, userID int) ([]tracker.Row, error)
	GetExercise(ctx context.Context, userID int, name string) (tracker.Row, error)
	TimerStatus(ctx context.Context, userID int) (tracker.TimerView, error)
}

// TableSource hands out per-user exercise tables.
type TableSource interface {
	Table(ctx context.Context, owner int) (*tracker.Table, error)
}

// RegistrySource reads straight from the server's loaded tables.
type RegistrySource struct {
	tables TableSource
}

var (
	_ DataSource  = (*RegistrySource)(nil)
	_ TableSource = (*tracker.Registry)(nil)
)

// NewRegistrySource wraps tables as a DataSource.
func NewRegistrySource(tables TableSource) *RegistrySource {
	return &RegistrySource{tables: tables}
}

func (s *RegistrySource) ListExercises(ctx context.Context, userID int) ([]tracker.Row, error) {
	t, err := s.tables.Table(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.View(), nil
}

func (s *RegistrySource) GetExercise(ctx context.Context, userID int, name string) (tracker.Row, error) {
	t, err := s.tables.Table(ctx, userID)
	if err != nil {
		return tracker.Row{}, err
	}
	row, ok := t.Row(name)
	if !ok {
		return tracker.Row{}, trackerr.NewNotFound(name)
	}
	return row, nil
}

func (s *RegistrySource) TimerStatus(ctx context.Context, userID int) (tracker.TimerView, error) {
	t, err := s.tables.Table(ctx, userID)
	if err != nil {
		return tracker.TimerView{}, err
	}
	return t.TimerView(), nil
}
